package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/api"
	"github.com/kiranshivaraju/healthreport/internal/cache"
	"github.com/kiranshivaraju/healthreport/internal/config"
	"github.com/kiranshivaraju/healthreport/internal/remote/mock"
	"github.com/kiranshivaraju/healthreport/internal/store"
	"github.com/kiranshivaraju/healthreport/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *testStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *testStore) ListAssessments(_ context.Context, _ store.AssessmentFilter) ([]*models.AssessmentRecord, error) {
	return nil, nil
}
func (s *testStore) CreateAnalysisRecord(_ context.Context, _ *models.AnalysisRecord) error {
	return nil
}
func (s *testStore) GetAnalysisRecord(_ context.Context, _ uuid.UUID) (*models.AnalysisRecord, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListAnalysisRecords(_ context.Context, _ uuid.UUID, _ int) ([]*models.AnalysisRecord, error) {
	return nil, nil
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ ...string) error                      { return nil }
func (c *testCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestsPerMinute: 60},
		Triage: config.TriageConfig{Provider: "http", HTTP: config.RemoteConfig{Timeout: 5 * time.Second}},
		Reports: config.ReportsConfig{
			HTTP: config.RemoteConfig{Timeout: 90 * time.Second},
		},
		Pipeline: config.PipelineConfig{SessionTTL: time.Minute, CatalogCacheTTL: time.Minute},
	}
}

func testDependencies(s *testStore, c *testCache) api.Dependencies {
	return newDependencies(testConfig(), s, c, mock.NewTriager(models.SpecialtyCardiology, 0.8), mock.NewGenerator())
}

// ─── wiring tests ────────────────────────────────────────────────────────────

func TestNewDependencies_EveryHandlerWired(t *testing.T) {
	deps := testDependencies(&testStore{}, &testCache{})

	v := reflect.ValueOf(deps)
	handlerType := reflect.TypeOf(http.HandlerFunc(nil))
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		if field.Type != handlerType {
			continue
		}
		assert.False(t, v.Field(i).IsNil(), "%s is not wired", field.Name)
	}
	assert.NotNil(t, deps.Auth)
	assert.NotNil(t, deps.RateLimit)
}

// ─── health tests ────────────────────────────────────────────────────────────

func serveHealth(t *testing.T, s *testStore, c *testCache) *httptest.ResponseRecorder {
	t.Helper()
	router := api.NewRouter(testDependencies(s, c))

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth_AllOK(t *testing.T) {
	w := serveHealth(t, &testStore{}, &testCache{})

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealth_DatabaseDegraded(t *testing.T) {
	w := serveHealth(t, &testStore{pingErr: errors.New("connection refused")}, &testCache{})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, "degraded", details["database"])
	assert.Equal(t, "ok", details["cache"])
}

func TestHealth_CacheDegraded(t *testing.T) {
	w := serveHealth(t, &testStore{}, &testCache{pingErr: errors.New("redis down")})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "TRIAGE_BASE_URL", "REPORTS_BASE_URL", "TRIAGE_PROVIDER",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("TRIAGE_PROVIDER", "http")
	t.Setenv("TRIAGE_BASE_URL", "http://localhost:9001")
	t.Setenv("REPORTS_BASE_URL", "http://localhost:9002")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── timeouts ───────────────────────────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}

func TestWriteTimeout_OutlastsReportGeneration(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 90*time.Second+writeSlack, writeTimeout(cfg))
	assert.Greater(t, writeTimeout(cfg), cfg.Reports.HTTP.Timeout)
}
