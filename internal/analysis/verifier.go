package analysis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/internal/store"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// Reader is the part of store.Store the verifier needs.
type Reader interface {
	GetAnalysisRecord(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error)
}

// Verifier does a point read of a just-written record.
type Verifier struct {
	store Reader
}

func NewVerifier(st Reader) *Verifier {
	return &Verifier{store: st}
}

// Verify returns the stored record. Zero rows is fatal, never a default record.
func (v *Verifier) Verify(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error) {
	rec, err := v.store.GetAnalysisRecord(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		slog.Error("analysis record not visible after write", "analysis_id", id)
		return nil, &VerifyError{ID: id, Reason: ReasonNotFound, Err: err}
	}
	if err != nil {
		return nil, &VerifyError{ID: id, Reason: ReasonUnavailable, Err: err}
	}
	if rec == nil {
		return nil, &VerifyError{ID: id, Reason: ReasonNotFound, Err: store.ErrNotFound}
	}
	return rec, nil
}

// VerifySelection is Verify plus a check that the stored id lists equal want.
func (v *Verifier) VerifySelection(ctx context.Context, id uuid.UUID, want selection.Snapshot) (*models.AnalysisRecord, error) {
	rec, err := v.Verify(ctx, id)
	if err != nil {
		return nil, err
	}
	if !selection.FromRecord(rec).Equal(want) {
		slog.Error("analysis record selection mismatch", "analysis_id", id)
		return nil, &VerifyError{ID: id, Reason: ReasonMismatch, Err: ErrMismatch}
	}
	return rec, nil
}
