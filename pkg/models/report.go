package models

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// GeneratedReport is the terminal artifact returned by the report service.
// ReportData is passed through untouched.
type GeneratedReport struct {
	ReportID        string          `json:"report_id"`
	ReportType      ReportType      `json:"report_type"`
	ReportData      json.RawMessage `json:"report_data"`
	ConfidenceScore float64         `json:"confidence_score"`
}

// TriageRequest is sent to the triage service. IDs only carries non-empty lists.
type TriageRequest struct {
	UserID         uuid.UUID
	IDs            map[Variant][]string
	PrimaryConcern string
	Symptoms       []string
}

// ReportRequest is sent to the report-generation service. IDs only carries
// non-empty lists.
type ReportRequest struct {
	AnalysisID  uuid.UUID
	UserID      uuid.UUID
	ReportType  ReportType
	IDs         map[Variant][]string
	ExtraParams map[string]any
}

// Triager is the remote triage service. Never call a concrete backend
// directly; always inject this interface.
type Triager interface {
	Triage(ctx context.Context, req TriageRequest) (TriageResult, error)
	// Name returns the backend identifier (e.g., "http", "openai").
	Name() string
}

// ReportGenerator is the remote report-generation service.
type ReportGenerator interface {
	Generate(ctx context.Context, req ReportRequest) (GeneratedReport, error)
	Name() string
}
