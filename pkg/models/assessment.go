// Package models contains shared data models used across the healthreport codebase.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Variant tags one of the five assessment-record kinds.
type Variant string

const (
	VariantQuickScan         Variant = "quick_scan"
	VariantDeepDive          Variant = "deep_dive"
	VariantFlashAssessment   Variant = "flash_assessment"
	VariantGeneralAssessment Variant = "general_assessment"
	VariantGeneralDeepDive   Variant = "general_deep_dive"
)

// Variants lists every variant in wire order. Iterate over this instead of
// ranging a map so payloads and columns stay deterministic.
var Variants = [...]Variant{
	VariantQuickScan,
	VariantDeepDive,
	VariantFlashAssessment,
	VariantGeneralAssessment,
	VariantGeneralDeepDive,
}

// Valid reports whether v is one of the known variants.
func (v Variant) Valid() bool {
	return v.Index() >= 0
}

// Index returns the position of v in Variants, or -1.
func (v Variant) Index() int {
	for i, known := range Variants {
		if known == v {
			return i
		}
	}
	return -1
}

// WireKey is the field name used for this variant's id list in remote
// requests and in the report_analyses table.
func (v Variant) WireKey() string {
	return string(v) + "_ids"
}

// ParseVariant accepts either the variant tag or its wire key.
func ParseVariant(s string) (Variant, bool) {
	v := Variant(strings.TrimSuffix(strings.TrimSpace(s), "_ids"))
	return v, v.Valid()
}

// Urgency is the ordered severity tag attached to an assessment.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// Rank orders urgencies: low < medium < high < emergency.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyMedium:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyEmergency:
		return 3
	default:
		return 0
	}
}

// ParseUrgency normalizes the per-variant severity vocabularies
// (quick scans say "urgency_level", flash assessments say "severity", ...)
// into Urgency. Unknown values map to low.
func ParseUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emergency", "critical", "emergent":
		return UrgencyEmergency
	case "high", "severe", "urgent":
		return UrgencyHigh
	case "medium", "moderate":
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// AssessmentRecord is one previously completed health evaluation.
// Records are owned by the upstream workflows and are read-only here.
type AssessmentRecord struct {
	ID             string    `db:"id"             json:"id"`
	Variant        Variant   `db:"-"              json:"variant"`
	UserID         uuid.UUID `db:"user_id"        json:"user_id"`
	CreatedAt      time.Time `db:"created_at"     json:"created_at"`
	Classification string    `db:"classification" json:"classification"`
	Urgency        Urgency   `db:"urgency"        json:"urgency"`
	Summary        *string   `db:"summary"        json:"summary,omitempty"`
}
