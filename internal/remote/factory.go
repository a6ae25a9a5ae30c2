package remote

import (
	"fmt"

	"github.com/kiranshivaraju/healthreport/internal/config"
	"github.com/kiranshivaraju/healthreport/internal/remote/openai"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// NewTriager constructs the triage backend selected by config.
// Called once at server startup.
func NewTriager(cfg config.TriageConfig) (models.Triager, error) {
	switch cfg.Provider {
	case "http":
		return NewTriageClient(cfg.HTTP), nil
	case "openai":
		return openai.NewTriager(cfg.OpenAI, cfg.HTTP.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown triage provider %q: must be one of http, openai", cfg.Provider)
	}
}

// NewReportGenerator constructs the report-generation client.
func NewReportGenerator(cfg config.ReportsConfig) models.ReportGenerator {
	return NewReportClient(cfg.HTTP)
}
