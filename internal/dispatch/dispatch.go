// Package dispatch asks the report-generation service to build a report for
// a verified analysis record.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

var ErrMissingAnalysisID = errors.New("analysis id is required")

// Error wraps a report-generation failure. The analysis record is kept, so
// the caller may dispatch again.
type Error struct {
	AnalysisID uuid.UUID
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatching report for analysis %s: %v", e.AnalysisID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Request carries everything dispatch needs. Selection must be the snapshot
// that was written into the analysis record.
type Request struct {
	AnalysisID uuid.UUID
	UserID     uuid.UUID
	ReportType models.ReportType
	Selection  selection.Snapshot
	Extra      map[string]any
}

type Dispatcher struct {
	generator models.ReportGenerator
	timeout   time.Duration
}

func NewDispatcher(g models.ReportGenerator, timeout time.Duration) *Dispatcher {
	return &Dispatcher{generator: g, timeout: timeout}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*models.GeneratedReport, error) {
	if req.AnalysisID == uuid.Nil {
		return nil, &Error{Err: ErrMissingAnalysisID}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := d.generator.Generate(ctx, models.ReportRequest{
		AnalysisID:  req.AnalysisID,
		UserID:      req.UserID,
		ReportType:  req.ReportType,
		IDs:         req.Selection.NonEmpty(),
		ExtraParams: req.Extra,
	})
	if err != nil {
		slog.Error("report generation failed", "analysis_id", req.AnalysisID, "user_id", req.UserID, "error", err)
		return nil, &Error{AnalysisID: req.AnalysisID, Retryable: true, Err: err}
	}
	if report.ReportType == "" {
		report.ReportType = req.ReportType
	}

	slog.Info("report generated",
		"analysis_id", req.AnalysisID,
		"report_id", report.ReportID,
		"report_type", report.ReportType,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &report, nil
}
