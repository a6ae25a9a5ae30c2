// Package analysis writes analysis records and confirms them on read-back
// before anything downstream may reference them.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// Inserter is the part of store.Store the writer needs.
type Inserter interface {
	CreateAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error
}

// WriteParams are the inputs of one write.
type WriteParams struct {
	UserID          uuid.UUID
	Purpose         string
	RecommendedType models.ReportType
	Confidence      float64
	Config          models.ReportConfig
	Selection       selection.Snapshot
}

// Writer mints the record id locally so it is known before the insert is
// acknowledged.
type Writer struct {
	store Inserter
	newID func() uuid.UUID
	now   func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithIDGenerator overrides uuid.New.
func WithIDGenerator(fn func() uuid.UUID) WriterOption {
	return func(w *Writer) { w.newID = fn }
}

// WithClock overrides time.Now.
func WithClock(fn func() time.Time) WriterOption {
	return func(w *Writer) { w.now = fn }
}

func NewWriter(st Inserter, opts ...WriterOption) *Writer {
	w := &Writer{store: st, newID: uuid.New, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write performs exactly one insert.
func (w *Writer) Write(ctx context.Context, p WriteParams) (uuid.UUID, error) {
	id := w.newID()

	if err := validate(p); err != nil {
		return uuid.Nil, &WriteError{ID: id, Err: err}
	}

	rec := &models.AnalysisRecord{
		ID:              id,
		UserID:          p.UserID,
		CreatedAt:       w.now().UTC(),
		Purpose:         p.Purpose,
		RecommendedType: p.RecommendedType,
		Confidence:      p.Confidence,
		ReportConfig:    p.Config,
	}
	p.Selection.Apply(rec)

	if err := w.store.CreateAnalysisRecord(ctx, rec); err != nil {
		slog.Error("analysis record insert failed", "analysis_id", id, "user_id", p.UserID, "error", err)
		return uuid.Nil, &WriteError{ID: id, Err: err}
	}

	slog.Info("analysis record written",
		"analysis_id", id,
		"user_id", p.UserID,
		"recommended_type", p.RecommendedType,
		"assessments", p.Selection.Total(),
	)
	return id, nil
}

func validate(p WriteParams) error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRecord)
	}
	if !p.RecommendedType.Valid() {
		return fmt.Errorf("%w: unknown report type %q", ErrInvalidRecord, p.RecommendedType)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalidRecord, p.Confidence)
	}
	return nil
}
