package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/api/response"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// AssessmentLister is the read side of the source catalog.
type AssessmentLister interface {
	ListAssessments(ctx context.Context, userID uuid.UUID, variant models.Variant) ([]*models.AssessmentRecord, error)
	ListAll(ctx context.Context, userID uuid.UUID) ([]*models.AssessmentRecord, error)
}

// NewListAssessmentsHandler returns GET /api/v1/assessments. With ?variant=
// it lists one variant, otherwise the merged timeline.
func NewListAssessmentsHandler(c AssessmentLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userFrom(w, r)
		if !ok {
			return
		}

		var (
			recs []*models.AssessmentRecord
			err  error
		)
		if raw := r.URL.Query().Get("variant"); raw != "" {
			v, valid := models.ParseVariant(raw)
			if !valid {
				response.Error(w, http.StatusBadRequest, "UNKNOWN_VARIANT", "Unknown assessment variant", nil)
				return
			}
			recs, err = c.ListAssessments(r.Context(), userID, v)
		} else {
			recs, err = c.ListAll(r.Context(), userID)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if recs == nil {
			recs = []*models.AssessmentRecord{}
		}

		response.Collection(w, recs, response.PaginationMeta{Page: 1, Limit: len(recs), Total: len(recs)})
	}
}
