// Package mock provides programmable fakes for the remote triage and
// report-generation services.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kiranshivaraju/healthreport/pkg/models"
)

var ErrRemoteTimeout = errors.New("mock remote timed out")

// Triager satisfies models.Triager for testing.
type Triager struct {
	Name_      string
	TriageFunc func(ctx context.Context, req models.TriageRequest) (models.TriageResult, error)

	calls atomic.Int32
	mu    sync.Mutex
	last  models.TriageRequest
}

func (m *Triager) Name() string { return m.Name_ }

func (m *Triager) Triage(ctx context.Context, req models.TriageRequest) (models.TriageResult, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.last = req
	m.mu.Unlock()
	if m.TriageFunc != nil {
		return m.TriageFunc(ctx, req)
	}
	return models.TriageResult{}, nil
}

// Calls returns how many times Triage was invoked.
func (m *Triager) Calls() int { return int(m.calls.Load()) }

// LastRequest returns the most recent request received.
func (m *Triager) LastRequest() models.TriageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// NewTriager returns a Triager that recommends sp with the given confidence.
func NewTriager(sp models.Specialty, confidence float64) *Triager {
	return &Triager{
		Name_: "mock",
		TriageFunc: func(_ context.Context, _ models.TriageRequest) (models.TriageResult, error) {
			return models.TriageResult{
				PrimarySpecialty:  sp,
				Confidence:        confidence,
				Reasoning:         "Simulated triage from mock backend",
				Urgency:           models.TriageRoutine,
				RecommendedTiming: "within 2 weeks",
			}, nil
		},
	}
}

// NewFailingTriager returns a Triager that always returns err.
func NewFailingTriager(err error) *Triager {
	return &Triager{
		Name_: "mock-failing",
		TriageFunc: func(_ context.Context, _ models.TriageRequest) (models.TriageResult, error) {
			return models.TriageResult{}, err
		},
	}
}

// Generator satisfies models.ReportGenerator for testing.
type Generator struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.ReportRequest) (models.GeneratedReport, error)

	calls atomic.Int32
	mu    sync.Mutex
	reqs  []models.ReportRequest
}

func (m *Generator) Name() string { return m.Name_ }

func (m *Generator) Generate(ctx context.Context, req models.ReportRequest) (models.GeneratedReport, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return models.GeneratedReport{}, nil
}

// Calls returns how many times Generate was invoked.
func (m *Generator) Calls() int { return int(m.calls.Load()) }

// Requests returns a copy of every request received, in order.
func (m *Generator) Requests() []models.ReportRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ReportRequest(nil), m.reqs...)
}

// NewGenerator returns a Generator that answers with a fixed report.
func NewGenerator() *Generator {
	return &Generator{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.ReportRequest) (models.GeneratedReport, error) {
			return models.GeneratedReport{
				ReportID:        "rep-" + req.AnalysisID.String(),
				ReportType:      req.ReportType,
				ReportData:      json.RawMessage(`{"summary":"mock report"}`),
				ConfidenceScore: 0.9,
			}, nil
		},
	}
}

// NewFailingGenerator returns a Generator that always returns err.
func NewFailingGenerator(err error) *Generator {
	return &Generator{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.ReportRequest) (models.GeneratedReport, error) {
			return models.GeneratedReport{}, err
		},
	}
}

// NewBlockingGenerator returns a Generator that blocks until release is
// closed or ctx is done. started receives one value per call.
func NewBlockingGenerator(started chan<- struct{}, release <-chan struct{}) *Generator {
	g := NewGenerator()
	answer := g.GenerateFunc
	g.GenerateFunc = func(ctx context.Context, req models.ReportRequest) (models.GeneratedReport, error) {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
			return answer(ctx, req)
		case <-ctx.Done():
			return models.GeneratedReport{}, ErrRemoteTimeout
		}
	}
	return g
}

var (
	_ models.Triager         = (*Triager)(nil)
	_ models.ReportGenerator = (*Generator)(nil)
)
