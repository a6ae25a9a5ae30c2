package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReportType is the kind of report the generator should produce. A
// specialist report is recorded under the specialty tag itself.
type ReportType string

const (
	ReportSymptomTimeline   ReportType = "symptom_timeline"
	ReportMonthlySummary    ReportType = "monthly_summary"
	ReportAnnualSummary     ReportType = "annual_summary"
	ReportSpecialistFocused ReportType = "specialist_focused"
	ReportPrimaryCare       ReportType = "primary_care"
)

// SpecialtyReportType returns the report type recorded for a specialist report.
func SpecialtyReportType(sp Specialty) ReportType {
	if sp == SpecialtyPrimaryCare {
		return ReportPrimaryCare
	}
	return ReportType(sp)
}

// ParseReportType maps s to its canonical report type. Fixed types match
// case-insensitively and specialty tags go through ParseSpecialty, so
// "Infectious_Disease" becomes "infectious-disease".
func ParseReportType(s string) (ReportType, bool) {
	norm := ReportType(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case ReportSymptomTimeline, ReportMonthlySummary, ReportAnnualSummary,
		ReportSpecialistFocused, ReportPrimaryCare:
		return norm, true
	}
	sp, ok := ParseSpecialty(string(norm))
	if !ok {
		return "", false
	}
	return SpecialtyReportType(sp), true
}

// Valid reports whether t is already in canonical form.
func (t ReportType) Valid() bool {
	c, ok := ParseReportType(string(t))
	return ok && c == t
}

// TimeRange bounds the assessments a report covers.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ReportConfig is the small structured blob stored alongside an analysis record.
type ReportConfig struct {
	TimeRange    TimeRange `json:"time_range"`
	PrimaryFocus string    `json:"primary_focus,omitempty"`
	Specialty    Specialty `json:"specialty,omitempty"`
	Symptoms     []string  `json:"symptoms,omitempty"`
}

// AnalysisRecord is the durable, immutable record of exactly what was
// requested. Rows are inserted once and never updated.
type AnalysisRecord struct {
	ID                   uuid.UUID    `db:"id"                     json:"id"`
	UserID               uuid.UUID    `db:"user_id"                json:"user_id"`
	CreatedAt            time.Time    `db:"created_at"             json:"created_at"`
	Purpose              string       `db:"purpose"                json:"purpose"`
	RecommendedType      ReportType   `db:"recommended_type"       json:"recommended_type"`
	Confidence           float64      `db:"confidence"             json:"confidence"`
	ReportConfig         ReportConfig `db:"report_config"          json:"report_config"`
	QuickScanIDs         []string     `db:"quick_scan_ids"         json:"quick_scan_ids"`
	DeepDiveIDs          []string     `db:"deep_dive_ids"          json:"deep_dive_ids"`
	FlashAssessmentIDs   []string     `db:"flash_assessment_ids"   json:"flash_assessment_ids"`
	GeneralAssessmentIDs []string     `db:"general_assessment_ids" json:"general_assessment_ids"`
	GeneralDeepDiveIDs   []string     `db:"general_deep_dive_ids"  json:"general_deep_dive_ids"`
}

// IDs returns the id list stored for v.
func (r *AnalysisRecord) IDs(v Variant) []string {
	switch v {
	case VariantQuickScan:
		return r.QuickScanIDs
	case VariantDeepDive:
		return r.DeepDiveIDs
	case VariantFlashAssessment:
		return r.FlashAssessmentIDs
	case VariantGeneralAssessment:
		return r.GeneralAssessmentIDs
	case VariantGeneralDeepDive:
		return r.GeneralDeepDiveIDs
	}
	return nil
}

// SetIDs assigns the id list for v. Only used while building a record
// before it is written.
func (r *AnalysisRecord) SetIDs(v Variant, ids []string) {
	switch v {
	case VariantQuickScan:
		r.QuickScanIDs = ids
	case VariantDeepDive:
		r.DeepDiveIDs = ids
	case VariantFlashAssessment:
		r.FlashAssessmentIDs = ids
	case VariantGeneralAssessment:
		r.GeneralAssessmentIDs = ids
	case VariantGeneralDeepDive:
		r.GeneralDeepDiveIDs = ids
	}
}
