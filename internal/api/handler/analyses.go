package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/api/response"
	"github.com/kiranshivaraju/healthreport/internal/store"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

const (
	defaultAnalysesLimit = 20
	maxAnalysesLimit     = 100
)

// AnalysisReader is the audit view over written analysis records.
type AnalysisReader interface {
	GetAnalysisRecord(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error)
	ListAnalysisRecords(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AnalysisRecord, error)
}

// NewListAnalysesHandler returns GET /api/v1/analyses.
func NewListAnalysesHandler(s AnalysisReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userFrom(w, r)
		if !ok {
			return
		}

		limit := queryLimit(r, defaultAnalysesLimit, maxAnalysesLimit)
		recs, err := s.ListAnalysisRecords(r.Context(), userID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if recs == nil {
			recs = []*models.AnalysisRecord{}
		}

		response.Collection(w, recs, response.PaginationMeta{
			Page:    1,
			Limit:   limit,
			Total:   len(recs),
			HasNext: len(recs) == limit,
		})
	}
}

// NewGetAnalysisHandler returns GET /api/v1/analyses/{analysisID}. Records
// of other users are reported as missing.
func NewGetAnalysisHandler(s AnalysisReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "analysisID", "INVALID_ANALYSIS_ID")
		if !ok {
			return
		}

		rec, err := s.GetAnalysisRecord(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && rec.UserID != userID) {
			response.Error(w, http.StatusNotFound, "ANALYSIS_NOT_FOUND", "Analysis record not found", nil)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		response.JSON(w, rec)
	}
}
