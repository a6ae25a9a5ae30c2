package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/healthreport/internal/analysis"
	"github.com/kiranshivaraju/healthreport/internal/api/response"
	"github.com/kiranshivaraju/healthreport/internal/catalog"
	"github.com/kiranshivaraju/healthreport/internal/dispatch"
	"github.com/kiranshivaraju/healthreport/internal/pipeline"
	"github.com/kiranshivaraju/healthreport/internal/triage"
)

// apiError is the HTTP rendering of a domain error.
type apiError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// classify maps the pipeline error taxonomy onto status codes.
func classify(err error) apiError {
	var (
		triageErr   *triage.Error
		writeErr    *analysis.WriteError
		verifyErr   *analysis.VerifyError
		dispatchErr *dispatch.Error
	)

	switch {
	case errors.Is(err, triage.ErrInsufficientInput), errors.Is(err, pipeline.ErrInsufficientInput):
		return apiError{http.StatusBadRequest, "INSUFFICIENT_INPUT", err.Error(), nil}
	case errors.Is(err, pipeline.ErrAlreadyInProgress):
		return apiError{http.StatusConflict, "ALREADY_IN_PROGRESS", "Another step of this pipeline is still running", nil}
	case errors.Is(err, pipeline.ErrCompleted):
		return apiError{http.StatusConflict, "PIPELINE_COMPLETED", "Pipeline is complete; start a new one", nil}
	case errors.Is(err, pipeline.ErrNoTriageOutcome):
		return apiError{http.StatusConflict, "NO_TRIAGE_OUTCOME", "Run triage before accepting a recommendation", nil}
	case errors.Is(err, pipeline.ErrNothingToRetry):
		return apiError{http.StatusConflict, "NOTHING_TO_RETRY", "No failed report generation to retry", nil}
	case errors.Is(err, pipeline.ErrNotFound):
		return apiError{http.StatusNotFound, "PIPELINE_NOT_FOUND", "Pipeline not found", nil}
	case errors.Is(err, triage.ErrUnknownSpecialty):
		return apiError{http.StatusBadRequest, "UNKNOWN_SPECIALTY", "Specialty was not recommended by triage", nil}
	case errors.Is(err, catalog.ErrUnknownVariant):
		return apiError{http.StatusBadRequest, "UNKNOWN_VARIANT", err.Error(), nil}
	case errors.Is(err, catalog.ErrUnknownAssessment):
		return apiError{http.StatusBadRequest, "UNKNOWN_ASSESSMENT", err.Error(), nil}
	case errors.Is(err, analysis.ErrInvalidRecord):
		return apiError{http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil}
	case errors.As(err, &triageErr):
		return apiError{http.StatusBadGateway, "TRIAGE_FAILED", "Triage service failed; retry or continue without triage",
			map[string]any{"retryable": triageErr.Retryable}}
	case errors.As(err, &writeErr):
		return apiError{http.StatusInternalServerError, "WRITE_FAILED", "Failed to record the analysis request", nil}
	case errors.As(err, &verifyErr):
		return apiError{http.StatusInternalServerError, "VERIFY_FAILED", "Analysis record could not be confirmed",
			map[string]any{"analysis_id": verifyErr.ID.String(), "reason": string(verifyErr.Reason)}}
	case errors.As(err, &dispatchErr):
		return apiError{http.StatusBadGateway, "DISPATCH_FAILED", "Report generation failed; the analysis record was kept",
			map[string]any{"analysis_id": dispatchErr.AnalysisID.String(), "retryable": dispatchErr.Retryable}}
	default:
		return apiError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil}
	}
}

func writeError(w http.ResponseWriter, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		slog.Error("request failed", "code", e.Code, "error", err)
	}
	var details any
	if e.Details != nil {
		details = e.Details
	}
	response.Error(w, e.Status, e.Code, e.Message, details)
}
