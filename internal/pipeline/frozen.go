package pipeline

import (
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// GenerateParams are the caller-supplied inputs of a manual report request.
type GenerateParams struct {
	Purpose    string
	ReportType models.ReportType
	Config     models.ReportConfig
	Extra      map[string]any
}

// FrozenRequest is built once when the pipeline leaves the select step. It
// is the only source of truth for the write, verify and dispatch steps.
type FrozenRequest struct {
	UserID     uuid.UUID
	Purpose    string
	ReportType models.ReportType
	Confidence float64
	Config     models.ReportConfig
	Selection  selection.Snapshot
	Extra      map[string]any
}

const manualConfidence = 1.0

// normalize canonicalizes the report type and drops blank focus and symptom
// entries. An unrecognized report type is left as given for the writer to
// reject.
func (p GenerateParams) normalize() GenerateParams {
	if p.ReportType == "" {
		p.ReportType = models.ReportSymptomTimeline
	} else if rt, ok := models.ParseReportType(string(p.ReportType)); ok {
		p.ReportType = rt
	}
	p.Purpose = strings.TrimSpace(p.Purpose)
	if p.Purpose == "" {
		p.Purpose = "Report: " + string(p.ReportType)
	}
	p.Config.PrimaryFocus = strings.TrimSpace(p.Config.PrimaryFocus)
	var symptoms []string
	for _, s := range p.Config.Symptoms {
		if s = strings.TrimSpace(s); s != "" {
			symptoms = append(symptoms, s)
		}
	}
	p.Config.Symptoms = symptoms
	return p
}

func freezeManual(userID uuid.UUID, snap selection.Snapshot, p GenerateParams) FrozenRequest {
	return FrozenRequest{
		UserID:     userID,
		Purpose:    p.Purpose,
		ReportType: p.ReportType,
		Confidence: manualConfidence,
		Config:     p.Config,
		Selection:  snap,
		Extra:      maps.Clone(p.Extra),
	}
}

func specialistPurpose(sp models.Specialty) string {
	return "Specialist report: " + string(sp)
}

func hasInput(snap selection.Snapshot, cfg models.ReportConfig) bool {
	return !snap.IsEmpty() || cfg.PrimaryFocus != "" || len(cfg.Symptoms) > 0
}
