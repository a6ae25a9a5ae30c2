package remote

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/healthreport/internal/config"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

const reportPath = "/generate-report"

// ReportClient calls the HTTP report-generation service.
type ReportClient struct {
	http *httpClient
}

func NewReportClient(cfg config.RemoteConfig) *ReportClient {
	return &ReportClient{http: newHTTPClient(cfg)}
}

func (c *ReportClient) Name() string { return "http" }

func (c *ReportClient) Generate(ctx context.Context, req models.ReportRequest) (models.GeneratedReport, error) {
	body := map[string]any{
		"analysis_id": req.AnalysisID.String(),
		"user_id":     req.UserID.String(),
	}
	if req.ReportType != "" {
		body["report_type"] = string(req.ReportType)
	}
	for v, ids := range req.IDs {
		if len(ids) > 0 {
			body[v.WireKey()] = ids
		}
	}
	if len(req.ExtraParams) > 0 {
		body["extra_params"] = req.ExtraParams
	}

	var report models.GeneratedReport
	if err := c.http.postJSON(ctx, reportPath, body, &report); err != nil {
		return models.GeneratedReport{}, err
	}
	if report.ReportID == "" {
		return models.GeneratedReport{}, fmt.Errorf("%w: missing report_id", ErrInvalidResponse)
	}
	return report, nil
}

var _ models.ReportGenerator = (*ReportClient)(nil)
