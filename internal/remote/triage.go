package remote

import (
	"context"

	"github.com/kiranshivaraju/healthreport/internal/config"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

const triagePath = "/specialty-triage"

// TriageClient calls the HTTP triage service.
type TriageClient struct {
	http *httpClient
}

func NewTriageClient(cfg config.RemoteConfig) *TriageClient {
	return &TriageClient{http: newHTTPClient(cfg)}
}

func (c *TriageClient) Name() string { return "http" }

// Triage sends one request. Empty id lists, concern and symptoms are left
// out of the body entirely because the service reads key presence as intent.
func (c *TriageClient) Triage(ctx context.Context, req models.TriageRequest) (models.TriageResult, error) {
	body := map[string]any{"user_id": req.UserID.String()}
	for v, ids := range req.IDs {
		if len(ids) > 0 {
			body[v.WireKey()] = ids
		}
	}
	if req.PrimaryConcern != "" {
		body["primary_concern"] = req.PrimaryConcern
	}
	if len(req.Symptoms) > 0 {
		body["symptoms"] = req.Symptoms
	}

	var resp triageResponse
	if err := c.http.postJSON(ctx, triagePath, body, &resp); err != nil {
		return models.TriageResult{}, err
	}
	return resp.toResult(), nil
}

type triageResponse struct {
	PrimarySpecialty     string               `json:"primary_specialty"`
	Confidence           float64              `json:"confidence"`
	Reasoning            string               `json:"reasoning"`
	Urgency              string               `json:"urgency"`
	RedFlags             []string             `json:"red_flags"`
	SecondarySpecialties []secondarySpecialty `json:"secondary_specialties"`
	RecommendedTiming    string               `json:"recommended_timing"`
	BasedOn              map[string][]string  `json:"based_on"`
}

type secondarySpecialty struct {
	Specialty  string  `json:"specialty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// toResult copies the wire shape without validating specialties; the
// coordinator owns normalization.
func (r triageResponse) toResult() models.TriageResult {
	out := models.TriageResult{
		PrimarySpecialty:  models.Specialty(r.PrimarySpecialty),
		Confidence:        r.Confidence,
		Reasoning:         r.Reasoning,
		Urgency:           models.TriageUrgency(r.Urgency),
		RedFlags:          r.RedFlags,
		RecommendedTiming: r.RecommendedTiming,
	}
	for _, s := range r.SecondarySpecialties {
		out.SecondarySpecialties = append(out.SecondarySpecialties, models.SpecialtyRecommendation{
			Specialty:  models.Specialty(s.Specialty),
			Confidence: s.Confidence,
			Reason:     s.Reason,
		})
	}
	if r.BasedOn != nil {
		out.BasisIDs = make(map[models.Variant][]string, len(r.BasedOn))
		for key, ids := range r.BasedOn {
			if v, ok := models.ParseVariant(key); ok {
				out.BasisIDs[v] = ids
			}
		}
	}
	return out
}

var _ models.Triager = (*TriageClient)(nil)
