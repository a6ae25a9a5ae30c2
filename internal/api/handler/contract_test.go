package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/healthreport/internal/analysis"
	"github.com/kiranshivaraju/healthreport/internal/api"
	"github.com/kiranshivaraju/healthreport/internal/api/handler"
	mw "github.com/kiranshivaraju/healthreport/internal/api/middleware"
	"github.com/kiranshivaraju/healthreport/internal/cache"
	"github.com/kiranshivaraju/healthreport/internal/catalog"
	"github.com/kiranshivaraju/healthreport/internal/dispatch"
	"github.com/kiranshivaraju/healthreport/internal/pipeline"
	"github.com/kiranshivaraju/healthreport/internal/remote"
	"github.com/kiranshivaraju/healthreport/internal/remote/mock"
	"github.com/kiranshivaraju/healthreport/internal/store"
	"github.com/kiranshivaraju/healthreport/internal/triage"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

var (
	testUserID    = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	otherUserID   = uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	testRawKey    = "hrk_adminkey_contract_1234567890"
	readOnlyKey   = "hrk_userkey_contract_1234567890"
	otherUserKey  = "hrk_otherkey_contract_1234567890"
	testRecordAge = 24 * time.Hour
)

func hashKey(raw string) string {
	h, _ := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	return string(h)
}

// ─── mock store ──────────────────────────────────────────────────────────────

type mockStore struct {
	mu       sync.Mutex
	keys     []*models.APIKey
	analyses map[uuid.UUID]models.AnalysisRecord
}

func newMockStore() *mockStore {
	key := func(raw string, user uuid.UUID, scopes ...string) *models.APIKey {
		return &models.APIKey{
			ID:        uuid.New(),
			UserID:    user,
			Name:      raw[:mw.KeyPrefixLen],
			KeyHash:   hashKey(raw),
			KeyPrefix: raw[:mw.KeyPrefixLen],
			Scopes:    scopes,
		}
	}
	return &mockStore{
		keys: []*models.APIKey{
			key(testRawKey, testUserID, "read", "write", "admin"),
			key(readOnlyKey, testUserID, "read", "write"),
			key(otherUserKey, otherUserID, "read", "write"),
		},
		analyses: make(map[uuid.UUID]models.AnalysisRecord),
	}
}

func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.UserID == key.UserID && k.Name == key.Name && k.DeletedAt == nil {
			return store.ErrDuplicateKey
		}
	}
	s.keys = append(s.keys, key)
	return nil
}

func (s *mockStore) ListAPIKeys(_ context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.UserID == userID && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) RevokeAPIKey(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id && k.UserID == userID && k.DeletedAt == nil {
			now := time.Now()
			k.DeletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *mockStore) CreateAnalysisRecord(_ context.Context, rec *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[rec.ID] = *rec
	return nil
}

func (s *mockStore) GetAnalysisRecord(_ context.Context, id uuid.UUID) (*models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.analyses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *mockStore) ListAnalysisRecords(_ context.Context, userID uuid.UUID, limit int) ([]*models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AnalysisRecord
	for _, rec := range s.analyses {
		if rec.UserID == userID {
			rec := rec
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) analysisCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.analyses)
}

func (s *mockStore) onlyAnalysis(t *testing.T) models.AnalysisRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.analyses, 1)
	for _, rec := range s.analyses {
		return rec
	}
	return models.AnalysisRecord{}
}

// ─── mock catalog ────────────────────────────────────────────────────────────

type mockCatalog struct{}

func (mockCatalog) records(userID uuid.UUID) []*models.AssessmentRecord {
	if userID != testUserID {
		return nil
	}
	now := time.Now().UTC()
	return []*models.AssessmentRecord{
		{ID: "A", Variant: models.VariantQuickScan, UserID: userID, CreatedAt: now.Add(-testRecordAge), Classification: "tension headache", Urgency: models.UrgencyLow},
		{ID: "B", Variant: models.VariantQuickScan, UserID: userID, CreatedAt: now.Add(-2 * testRecordAge), Classification: "migraine", Urgency: models.UrgencyMedium},
		{ID: "D", Variant: models.VariantDeepDive, UserID: userID, CreatedAt: now.Add(-3 * testRecordAge), Classification: "sleep disturbance", Urgency: models.UrgencyLow},
	}
}

func (c mockCatalog) ListAssessments(_ context.Context, userID uuid.UUID, v models.Variant) ([]*models.AssessmentRecord, error) {
	var out []*models.AssessmentRecord
	for _, r := range c.records(userID) {
		if r.Variant == v {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c mockCatalog) ListAll(_ context.Context, userID uuid.UUID) ([]*models.AssessmentRecord, error) {
	return c.records(userID), nil
}

func (c mockCatalog) Index(_ context.Context, userID uuid.UUID) (*catalog.Index, error) {
	byVariant := make(map[models.Variant][]string)
	for _, r := range c.records(userID) {
		byVariant[r.Variant] = append(byVariant[r.Variant], r.ID)
	}
	return catalog.NewIndex(byVariant), nil
}

// ─── mock cache ──────────────────────────────────────────────────────────────

type mockCache struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMockCache() *mockCache {
	return &mockCache{counters: make(map[string]int64)}
}

func (c *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *mockCache) Delete(_ context.Context, _ ...string) error                      { return nil }
func (c *mockCache) Ping(_ context.Context) error                                     { return nil }
func (c *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*mockCache)(nil)

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server    *httptest.Server
	store     *mockStore
	triager   *mock.Triager
	generator *mock.Generator
	registry  *pipeline.Registry
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithLimit(t, 1000)
}

func newTestServerWithLimit(t *testing.T, perMinute int) *testServer {
	t.Helper()

	ms := newMockStore()
	mc := newMockCache()
	tr := mock.NewTriager(models.SpecialtyNeurology, 0.85)
	gen := mock.NewGenerator()

	reg := pipeline.NewRegistry(&pipeline.Deps{
		Catalog:    mockCatalog{},
		Triage:     triage.NewCoordinator(tr, 0),
		Writer:     analysis.NewWriter(ms),
		Verifier:   analysis.NewVerifier(ms),
		Dispatcher: dispatch.NewDispatcher(gen, 0),
	}, time.Hour)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(mc, perMinute),

		HealthHandler:   handler.NewHealthHandler(ms, mc),
		ListAssessments: handler.NewListAssessmentsHandler(mockCatalog{}),

		CreatePipeline:   handler.NewCreatePipelineHandler(reg),
		ListPipelines:    handler.NewListPipelinesHandler(reg),
		GetPipeline:      handler.NewGetPipelineHandler(reg),
		DeletePipeline:   handler.NewDeletePipelineHandler(reg),
		StartOver:        handler.NewStartOverHandler(reg),
		ToggleSelection:  handler.NewToggleHandler(reg),
		ReplaceSelection: handler.NewReplaceSelectionHandler(reg),
		RunTriage:        handler.NewTriageHandler(reg),
		AcceptTriage:     handler.NewAcceptTriageHandler(reg),
		Generate:         handler.NewGenerateHandler(reg),
		RetryDispatch:    handler.NewRetryDispatchHandler(reg),

		ListAnalyses: handler.NewListAnalysesHandler(ms),
		GetAnalysis:  handler.NewGetAnalysisHandler(ms),

		CreateKeyHandler: handler.NewCreateKeyHandler(ms),
		ListKeysHandler:  handler.NewListKeysHandler(ms),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(ms),
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms, triager: tr, generator: gen, registry: reg}
}

func (ts *testServer) requestWithKey(key, method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, ts.server.URL+path, &buf)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (ts *testServer) authRequest(method, path string, body any) *http.Request {
	return ts.requestWithKey(testRawKey, method, path, body)
}

func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %v", body)
	return data
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func (ts *testServer) createPipeline(t *testing.T, selection map[string][]string) string {
	t.Helper()
	var body any
	if selection != nil {
		body = map[string]any{"selection": selection}
	}
	resp, out := ts.do(t, ts.authRequest("POST", "/api/v1/pipelines", body))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", out)
	return dataOf(t, out)["id"].(string)
}

func pipelinePath(id, suffix string) string {
	return "/api/v1/pipelines/" + id + suffix
}

// ─── health ──────────────────────────────────────────────────────────────────

func TestHealth_200_AllOK(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.requestWithKey("", "GET", "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", dataOf(t, body)["status"])
}

// ─── assessments ─────────────────────────────────────────────────────────────

func TestListAssessments_200_Timeline(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/assessments", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 3)
	assert.NotNil(t, body["meta"])
}

func TestListAssessments_200_FilteredByVariant(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/assessments?variant=deep_dive", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recs := body["data"].([]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "D", recs[0].(map[string]any)["id"])
}

func TestListAssessments_400_UnknownVariant(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/assessments?variant=xray", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_VARIANT", errorCode(body))
}

// ─── pipelines ───────────────────────────────────────────────────────────────

func TestCreatePipeline_201_EmptySelection(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/pipelines", nil))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := dataOf(t, body)
	assert.Equal(t, "select", data["state"])
	assert.Equal(t, false, data["in_flight"])
	sel := data["selection"].(map[string]any)
	assert.Len(t, sel, len(models.Variants))
	assert.Empty(t, sel["quick_scan_ids"])
}

func TestCreatePipeline_201_SeededSelectionDropsUnknownIDs(t *testing.T) {
	ts := newTestServer(t)

	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A", "ZZZ"}})

	_, body := ts.do(t, ts.authRequest("GET", pipelinePath(id, ""), nil))
	sel := dataOf(t, body)["selection"].(map[string]any)
	assert.Equal(t, []any{"A"}, sel["quick_scan_ids"])
}

func TestGetPipeline_404_OtherUser(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)

	resp, body := ts.do(t, ts.requestWithKey(otherUserKey, "GET", pipelinePath(id, ""), nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "PIPELINE_NOT_FOUND", errorCode(body))
}

func TestGetPipeline_400_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", pipelinePath("not-a-uuid", ""), nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_PIPELINE_ID", errorCode(body))
}

func TestListPipelines_OnlyCallersPipelines(t *testing.T) {
	ts := newTestServer(t)
	ts.createPipeline(t, nil)
	ts.createPipeline(t, nil)

	_, body := ts.do(t, ts.authRequest("GET", "/api/v1/pipelines", nil))
	assert.Len(t, body["data"], 2)

	_, body = ts.do(t, ts.requestWithKey(otherUserKey, "GET", "/api/v1/pipelines", nil))
	assert.Len(t, body["data"], 0)
}

func TestDeletePipeline_204(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)

	resp, _ := ts.do(t, ts.authRequest("DELETE", pipelinePath(id, ""), nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.do(t, ts.authRequest("GET", pipelinePath(id, ""), nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestToggle_AddsThenRemoves(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)
	toggle := map[string]string{"variant": "quick_scan", "id": "A"}

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/selection/toggle"), toggle))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, body)
	assert.Equal(t, true, data["selected"])
	assert.Equal(t, []any{"A"}, data["selection"].(map[string]any)["quick_scan_ids"])

	_, body = ts.do(t, ts.authRequest("POST", pipelinePath(id, "/selection/toggle"), toggle))
	data = dataOf(t, body)
	assert.Equal(t, false, data["selected"])
	assert.Empty(t, data["selection"].(map[string]any)["quick_scan_ids"])
}

func TestToggle_400_UnknownAssessment(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/selection/toggle"),
		map[string]string{"variant": "quick_scan", "id": "ZZZ"}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_ASSESSMENT", errorCode(body))
}

func TestToggle_400_UnknownVariant(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/selection/toggle"),
		map[string]string{"variant": "xray", "id": "A"}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_VARIANT", errorCode(body))
}

func TestReplaceSelection_ReportsDropped(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	resp, body := ts.do(t, ts.authRequest("PUT", pipelinePath(id, "/selection"),
		map[string][]string{"deep_dive_ids": {"D", "gone"}}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataOf(t, body)
	assert.Equal(t, float64(1), data["dropped"])
	sel := data["selection"].(map[string]any)
	assert.Empty(t, sel["quick_scan_ids"])
	assert.Equal(t, []any{"D"}, sel["deep_dive_ids"])
}

func TestTriage_400_InsufficientInput(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/triage"), nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_INPUT", errorCode(body))
	assert.Equal(t, 0, ts.triager.Calls())
}

func TestTriage_502_RemoteFailureKeepsSelection(t *testing.T) {
	ts := newTestServer(t)
	ts.triager.TriageFunc = func(context.Context, models.TriageRequest) (models.TriageResult, error) {
		return models.TriageResult{}, remote.ErrServiceError
	}
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/triage"), map[string]any{"primary_concern": "headache"}))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "TRIAGE_FAILED", errorCode(body))

	_, body = ts.do(t, ts.authRequest("GET", pipelinePath(id, ""), nil))
	data := dataOf(t, body)
	assert.Equal(t, "select", data["state"])
	assert.Equal(t, []any{"A"}, data["selection"].(map[string]any)["quick_scan_ids"])
	assert.Equal(t, "TRIAGE_FAILED", data["last_error"].(map[string]any)["code"])
}

func TestAcceptTriage_409_WithoutOutcome(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/triage/accept"), nil))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "NO_TRIAGE_OUTCOME", errorCode(body))
	assert.Equal(t, 0, ts.store.analysisCount())
}

func TestTriageThenAccept_CompletesPipeline(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/triage"), map[string]any{"primary_concern": "headache"}))
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)
	data := dataOf(t, body)
	assert.Equal(t, "neurology", data["triage"].(map[string]any)["primary_specialty"])
	assert.Equal(t, []any{"A"}, data["based_on"].(map[string]any)["quick_scan_ids"])
	assert.Equal(t, "triage", data["pipeline"].(map[string]any)["state"])

	resp, body = ts.do(t, ts.authRequest("POST", pipelinePath(id, "/triage/accept"), nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)
	data = dataOf(t, body)
	assert.Equal(t, "complete", data["state"])
	require.NotNil(t, data["analysis_id"])
	require.NotNil(t, data["report"])

	analysisID := data["analysis_id"].(string)
	assert.Equal(t, "rep-"+analysisID, data["report"].(map[string]any)["report_id"])

	resp, body = ts.do(t, ts.authRequest("GET", "/api/v1/analyses/"+analysisID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := dataOf(t, body)
	assert.Equal(t, "neurology", rec["recommended_type"])
	assert.Equal(t, []any{"A"}, rec["quick_scan_ids"])

	// A completed pipeline rejects further steps.
	resp, body = ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate"), map[string]any{"primary_focus": "again"}))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "PIPELINE_COMPLETED", errorCode(body))
}

func TestAcceptTriage_400_UnofferedSpecialty(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	resp, _ := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/triage"), map[string]any{"primary_concern": "headache"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/triage/accept"), map[string]any{"specialty": "dermatology"}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_SPECIALTY", errorCode(body))
	assert.Equal(t, 0, ts.generator.Calls())
}

func TestGenerate_ManualReport(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A", "B"}, "deep_dive_ids": {"D"}})

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate"), map[string]any{
		"report_type": "monthly_summary",
		"time_range": map[string]string{
			"start": "2026-09-01T00:00:00Z",
			"end":   "2026-09-30T23:59:59Z",
		},
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)

	data := dataOf(t, body)
	assert.Equal(t, "complete", data["state"])
	assert.Equal(t, "monthly_summary", data["report"].(map[string]any)["report_type"])

	reqs := ts.generator.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"A", "B"}, reqs[0].IDs[models.VariantQuickScan])
	assert.Equal(t, []string{"D"}, reqs[0].IDs[models.VariantDeepDive])
}

func TestGenerate_CanonicalReportType(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate"), map[string]any{
		"report_type": "Infectious_Disease",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)

	rec := ts.store.onlyAnalysis(t)
	assert.Equal(t, models.ReportType("infectious-disease"), rec.RecommendedType)

	reqs := ts.generator.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.ReportType("infectious-disease"), reqs[0].ReportType)
}

func TestGenerate_400_InvalidBody(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	cases := []map[string]any{
		{"report_type": "weekly_digest"},
		{"specialty": "astrology"},
		{"time_range": map[string]string{"start": "2026-09-30T00:00:00Z", "end": "2026-09-01T00:00:00Z"}},
	}
	for _, c := range cases {
		resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate"), c))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_REQUEST", errorCode(body))
	}
	assert.Equal(t, 0, ts.store.analysisCount())
}

func TestGenerate_400_NothingToReportOn(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate"), nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_INPUT", errorCode(body))
	assert.Equal(t, 0, ts.store.analysisCount())
}

func TestGenerate_DispatchFailureThenRetry(t *testing.T) {
	ts := newTestServer(t)
	okGenerate := ts.generator.GenerateFunc
	ts.generator.GenerateFunc = func(context.Context, models.ReportRequest) (models.GeneratedReport, error) {
		return models.GeneratedReport{}, remote.ErrServiceError
	}
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate"), nil))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "DISPATCH_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	analysisID := details["analysis_id"].(string)

	_, body = ts.do(t, ts.authRequest("GET", pipelinePath(id, ""), nil))
	data := dataOf(t, body)
	assert.Equal(t, "select", data["state"])
	assert.Equal(t, true, data["can_retry_dispatch"])

	ts.generator.GenerateFunc = okGenerate
	resp, body = ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate/retry"), nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)
	data = dataOf(t, body)
	assert.Equal(t, "complete", data["state"])
	assert.Equal(t, analysisID, data["analysis_id"])
	assert.Equal(t, 1, ts.store.analysisCount())
}

func TestRetryDispatch_409_NothingToRetry(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate/retry"), nil))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "NOTHING_TO_RETRY", errorCode(body))
}

func TestStartOver_ClearsSelection(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})

	resp, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/start-over"), nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, body)
	assert.Equal(t, "select", data["state"])
	assert.Empty(t, data["selection"].(map[string]any)["quick_scan_ids"])
}

func TestPipeline_400_MalformedJSON(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, nil)

	req, _ := http.NewRequest("POST", ts.server.URL+pipelinePath(id, "/selection/toggle"), bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	resp, body := ts.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorCode(body))
}

// ─── analyses ────────────────────────────────────────────────────────────────

func TestGetAnalysis_404_OtherUsersRecord(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})
	_, body := ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate"), nil))
	analysisID := dataOf(t, body)["analysis_id"].(string)

	resp, body := ts.do(t, ts.requestWithKey(otherUserKey, "GET", "/api/v1/analyses/"+analysisID, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ANALYSIS_NOT_FOUND", errorCode(body))
}

func TestListAnalyses_200(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createPipeline(t, map[string][]string{"quick_scan_ids": {"A"}})
	ts.do(t, ts.authRequest("POST", pipelinePath(id, "/generate"), nil))

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/analyses?limit=5", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, float64(5), body["meta"].(map[string]any)["limit"])
}

// ─── keys ────────────────────────────────────────────────────────────────────

func TestCreateKey_201_WithRawKey(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{"name": "frontend"}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := dataOf(t, body)
	raw := data["key"].(string)
	assert.Len(t, raw, len("hrk_")+48)
	assert.Equal(t, raw[:mw.KeyPrefixLen], data["key_prefix"])
	assert.Equal(t, []any{"read", "write"}, data["scopes"])

	// The new key authenticates.
	resp, _ = ts.do(t, ts.requestWithKey(raw, "GET", "/api/v1/pipelines", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateKey_409_Duplicate(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{"name": "dup"}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{"name": "dup"}))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_KEY", errorCode(body))
}

func TestCreateKey_400_UnknownScope(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{"name": "x", "scopes": []string{"root"}}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorCode(body))
}

func TestListKeys_DoesNotExposeRawKey(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/admin/keys", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, k := range body["data"].([]any) {
		key := k.(map[string]any)
		assert.NotContains(t, key, "key")
		assert.NotContains(t, key, "key_hash")
	}
}

func TestRevokeKey_404_Unknown(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("DELETE", "/api/v1/admin/keys/"+uuid.New().String(), nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "KEY_NOT_FOUND", errorCode(body))
}

// ─── auth and rate limiting ──────────────────────────────────────────────────

func TestAuth_InvalidBearerToken(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.requestWithKey("hrk_wrongkey_000000000000", "GET", "/api/v1/pipelines", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", errorCode(body))
}

func TestAdminEndpoints_403_WithoutAdminScope(t *testing.T) {
	ts := newTestServer(t)

	for _, ep := range []struct{ method, path string }{
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
		{"DELETE", "/api/v1/admin/keys/" + uuid.New().String()},
	} {
		resp, body := ts.do(t, ts.requestWithKey(readOnlyKey, ep.method, ep.path, map[string]any{"name": "x"}))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, ep.method+" "+ep.path)
		assert.Equal(t, "FORBIDDEN", errorCode(body))
	}
}

func TestRateLimit_429_Exceeded(t *testing.T) {
	ts := newTestServerWithLimit(t, 2)

	for i := 0; i < 2; i++ {
		resp, _ := ts.do(t, ts.authRequest("GET", "/api/v1/pipelines", nil))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	}

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/pipelines", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(body))
}
