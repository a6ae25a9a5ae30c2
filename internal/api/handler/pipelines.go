package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/api/response"
	"github.com/kiranshivaraju/healthreport/internal/pipeline"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// PipelineRegistry holds the caller's live pipelines.
type PipelineRegistry interface {
	Create(userID uuid.UUID) *pipeline.Pipeline
	Get(userID, id uuid.UUID) (*pipeline.Pipeline, error)
	Delete(userID, id uuid.UUID) error
	List(userID uuid.UUID) []*pipeline.Pipeline
}

type pipelineResponse struct {
	ID               string                  `json:"id"`
	State            pipeline.State          `json:"state"`
	InFlight         bool                    `json:"in_flight"`
	Selection        map[string][]string     `json:"selection"`
	Triage           *models.TriageResult    `json:"triage,omitempty"`
	AnalysisID       *string                 `json:"analysis_id,omitempty"`
	Report           *models.GeneratedReport `json:"report,omitempty"`
	LastError        *apiError               `json:"last_error,omitempty"`
	CanRetryDispatch bool                    `json:"can_retry_dispatch"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func toPipelineResponse(v pipeline.View) pipelineResponse {
	out := pipelineResponse{
		ID:               v.ID.String(),
		State:            v.State,
		InFlight:         v.InFlight,
		Selection:        selectionJSON(v.Selection),
		Triage:           v.Triage,
		Report:           v.Report,
		CanRetryDispatch: v.CanRetry,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
	if v.AnalysisID != nil {
		id := v.AnalysisID.String()
		out.AnalysisID = &id
	}
	if v.LastError != nil {
		e := classify(v.LastError)
		out.LastError = &e
	}
	return out
}

// withPipeline resolves {pipelineID} for the authenticated user.
func withPipeline(reg PipelineRegistry, fn func(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "pipelineID", "INVALID_PIPELINE_ID")
		if !ok {
			return
		}
		p, err := reg.Get(userID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		fn(w, r, p)
	}
}

// NewCreatePipelineHandler returns POST /api/v1/pipelines. An optional body
// seeds the selection.
func NewCreatePipelineHandler(reg PipelineRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userFrom(w, r)
		if !ok {
			return
		}

		var req struct {
			Selection map[string][]string `json:"selection"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		seed, err := parseSelection(req.Selection)
		if err != nil {
			writeError(w, err)
			return
		}

		p := reg.Create(userID)
		if len(seed) > 0 {
			if _, err := p.Replace(r.Context(), seed); err != nil {
				writeError(w, err)
				return
			}
		}
		response.Created(w, toPipelineResponse(p.View()))
	}
}

// NewListPipelinesHandler returns GET /api/v1/pipelines.
func NewListPipelinesHandler(reg PipelineRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userFrom(w, r)
		if !ok {
			return
		}
		ps := reg.List(userID)
		out := make([]pipelineResponse, len(ps))
		for i, p := range ps {
			out[i] = toPipelineResponse(p.View())
		}
		response.JSON(w, out)
	}
}

// NewGetPipelineHandler returns GET /api/v1/pipelines/{pipelineID}.
func NewGetPipelineHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, _ *http.Request, p *pipeline.Pipeline) {
		response.JSON(w, toPipelineResponse(p.View()))
	})
}

// NewDeletePipelineHandler returns DELETE /api/v1/pipelines/{pipelineID}.
func NewDeletePipelineHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, _ *http.Request, p *pipeline.Pipeline) {
		if err := reg.Delete(p.UserID(), p.ID()); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
	})
}

// NewStartOverHandler returns POST /api/v1/pipelines/{pipelineID}/start-over.
func NewStartOverHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, _ *http.Request, p *pipeline.Pipeline) {
		if err := p.StartOver(); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, toPipelineResponse(p.View()))
	})
}

// NewToggleHandler returns POST /api/v1/pipelines/{pipelineID}/selection/toggle.
func NewToggleHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
		var req struct {
			Variant string `json:"variant"`
			ID      string `json:"id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		v, ok := models.ParseVariant(req.Variant)
		if !ok {
			response.Error(w, http.StatusBadRequest, "UNKNOWN_VARIANT", "Unknown assessment variant", nil)
			return
		}
		if strings.TrimSpace(req.ID) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "id is required", nil)
			return
		}

		selected, err := p.Toggle(r.Context(), v, req.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]any{
			"selected":  selected,
			"selection": selectionJSON(p.Selection()),
		})
	})
}

// NewReplaceSelectionHandler returns PUT /api/v1/pipelines/{pipelineID}/selection.
// Variants missing from the body are cleared.
func NewReplaceSelectionHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
		var req map[string][]string
		if !decodeBody(w, r, &req) {
			return
		}
		byVariant, err := parseSelection(req)
		if err != nil {
			writeError(w, err)
			return
		}

		dropped, err := p.Replace(r.Context(), byVariant)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]any{
			"dropped":   dropped,
			"selection": selectionJSON(p.Selection()),
		})
	})
}

// NewTriageHandler returns POST /api/v1/pipelines/{pipelineID}/triage.
func NewTriageHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
		var req struct {
			PrimaryConcern string   `json:"primary_concern"`
			Symptoms       []string `json:"symptoms"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		outcome, err := p.Triage(r.Context(), req.PrimaryConcern, req.Symptoms)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]any{
			"triage":   outcome.Result,
			"based_on": selectionJSON(outcome.Basis),
			"pipeline": toPipelineResponse(p.View()),
		})
	})
}

// NewAcceptTriageHandler returns POST /api/v1/pipelines/{pipelineID}/triage/accept.
func NewAcceptTriageHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
		var req struct {
			Specialty   string         `json:"specialty"`
			ExtraParams map[string]any `json:"extra_params"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		var sp models.Specialty
		if req.Specialty != "" {
			parsed, ok := models.ParseSpecialty(req.Specialty)
			if !ok {
				response.Error(w, http.StatusBadRequest, "UNKNOWN_SPECIALTY", "Unknown specialty", nil)
				return
			}
			sp = parsed
		}

		if _, err := p.AcceptTriage(r.Context(), sp, req.ExtraParams); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, toPipelineResponse(p.View()))
	})
}

type generateRequest struct {
	Purpose      string         `json:"purpose"`
	ReportType   string         `json:"report_type"`
	TimeRange    *timeRangeJSON `json:"time_range"`
	PrimaryFocus string         `json:"primary_focus"`
	Specialty    string         `json:"specialty"`
	Symptoms     []string       `json:"symptoms"`
	ExtraParams  map[string]any `json:"extra_params"`
}

type timeRangeJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (req generateRequest) params() (pipeline.GenerateParams, string) {
	out := pipeline.GenerateParams{
		Purpose: strings.TrimSpace(req.Purpose),
		Config: models.ReportConfig{
			PrimaryFocus: strings.TrimSpace(req.PrimaryFocus),
			Symptoms:     req.Symptoms,
		},
		Extra: req.ExtraParams,
	}
	if req.ReportType != "" {
		rt, ok := models.ParseReportType(req.ReportType)
		if !ok {
			return out, "unknown report_type"
		}
		out.ReportType = rt
	}
	if req.Specialty != "" {
		sp, ok := models.ParseSpecialty(req.Specialty)
		if !ok {
			return out, "unknown specialty"
		}
		out.Config.Specialty = sp
	}
	if req.TimeRange != nil {
		if req.TimeRange.End.Before(req.TimeRange.Start) {
			return out, "time_range.end must not be before time_range.start"
		}
		out.Config.TimeRange = models.TimeRange{Start: req.TimeRange.Start, End: req.TimeRange.End}
	}
	return out, ""
}

// NewGenerateHandler returns POST /api/v1/pipelines/{pipelineID}/generate.
// It blocks until the pipeline completes or fails.
func NewGenerateHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
		var req generateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		params, problem := req.params()
		if problem != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", problem, nil)
			return
		}

		if _, err := p.Generate(r.Context(), params); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, toPipelineResponse(p.View()))
	})
}

// NewRetryDispatchHandler returns POST /api/v1/pipelines/{pipelineID}/generate/retry.
func NewRetryDispatchHandler(reg PipelineRegistry) http.HandlerFunc {
	return withPipeline(reg, func(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
		if _, err := p.RetryDispatch(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, toPipelineResponse(p.View()))
	})
}
