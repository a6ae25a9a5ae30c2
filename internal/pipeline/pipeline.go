// Package pipeline drives one report request from selection to a generated
// report: Select → (Triage) → Analyzing → Generating → Complete.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/analysis"
	"github.com/kiranshivaraju/healthreport/internal/catalog"
	"github.com/kiranshivaraju/healthreport/internal/dispatch"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/internal/triage"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// IndexLoader returns the ids a user may select. *catalog.Catalog implements it.
type IndexLoader interface {
	Index(ctx context.Context, userID uuid.UUID) (*catalog.Index, error)
}

// indexRefresher is implemented by loaders that cache. A miss is retried
// once after Invalidate so assessments created since the last load are seen.
type indexRefresher interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Deps are shared by every pipeline instance. Catalog may be nil, in which
// case selected ids are not checked against the user's assessments.
type Deps struct {
	Catalog    IndexLoader
	Triage     *triage.Coordinator
	Writer     *analysis.Writer
	Verifier   *analysis.Verifier
	Dispatcher *dispatch.Dispatcher
}

// Pipeline is one report request. Instances share no mutable state. The
// mutex only guards fields; it is never held across a remote call.
type Pipeline struct {
	id     uuid.UUID
	userID uuid.UUID
	deps   *Deps

	mu        sync.Mutex
	state     State
	inFlight  bool
	removed   bool
	set       *selection.Set
	outcome   *triageRun
	lastErr   error
	frozen    *FrozenRequest
	record    *models.AnalysisRecord
	report    *models.GeneratedReport
	retry     *pendingDispatch
	createdAt time.Time
	updatedAt time.Time
}

type triageRun struct {
	outcome  *triage.Outcome
	concern  string
	symptoms []string
}

// pendingDispatch is a verified record whose dispatch failed.
type pendingDispatch struct {
	analysisID uuid.UUID
	frozen     FrozenRequest
}

func New(userID uuid.UUID, deps *Deps) *Pipeline {
	now := time.Now().UTC()
	return &Pipeline{
		id:        uuid.New(),
		userID:    userID,
		deps:      deps,
		state:     StateSelect,
		set:       selection.New(),
		createdAt: now,
		updatedAt: now,
	}
}

func (p *Pipeline) ID() uuid.UUID     { return p.id }
func (p *Pipeline) UserID() uuid.UUID { return p.userID }

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Selection returns the current, mutable selection as a snapshot.
func (p *Pipeline) Selection() selection.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set.Snapshot()
}

func (p *Pipeline) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Report returns the generated report once the pipeline is complete.
func (p *Pipeline) Report() *models.GeneratedReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report
}

// Toggle flips id in or out of the selection and reports whether it is now
// selected. It is allowed while a step is in flight; the in-flight step
// works from its own frozen snapshot.
func (p *Pipeline) Toggle(ctx context.Context, v models.Variant, id string) (bool, error) {
	if err := p.checkKnown(ctx, v, id); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.editableLocked(); err != nil {
		return false, err
	}
	selected := p.set.Toggle(v, id)
	p.discardOutcomeLocked()
	p.touchLocked()
	return selected, nil
}

// Replace swaps the whole selection. Unknown ids are dropped; the number
// dropped is returned.
func (p *Pipeline) Replace(ctx context.Context, byVariant map[models.Variant][]string) (int, error) {
	kept, dropped, err := p.filterKnown(ctx, byVariant)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.editableLocked(); err != nil {
		return 0, err
	}
	p.set.ReplaceAll(kept)
	p.discardOutcomeLocked()
	p.touchLocked()
	return dropped, nil
}

// StartOver discards the selection and any triage outcome. It is refused
// once analysis has begun, because a written record cannot be retracted.
func (p *Pipeline) StartOver() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.editableLocked(); err != nil {
		return err
	}
	if p.inFlight {
		return ErrAlreadyInProgress
	}
	p.set.Clear()
	p.outcome = nil
	p.lastErr = nil
	p.retry = nil
	p.state = StateSelect
	p.touchLocked()
	return nil
}

// Triage runs the advisory triage step on the current selection. On
// success the pipeline waits in StateTriage for AcceptTriage.
func (p *Pipeline) Triage(ctx context.Context, concern string, symptoms []string) (*triage.Outcome, error) {
	p.mu.Lock()
	if err := p.enterLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	snap := p.set.Snapshot()
	prev := p.state
	p.state = StateTriage
	p.mu.Unlock()

	outcome, err := p.deps.Triage.Run(ctx, p.userID, snap, concern, symptoms)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	p.touchLocked()
	if errors.Is(err, triage.ErrInsufficientInput) {
		p.state = prev
		return nil, err
	}
	if err != nil {
		p.failLocked(err)
		return nil, err
	}
	p.outcome = &triageRun{outcome: outcome, concern: strings.TrimSpace(concern), symptoms: symptoms}
	p.lastErr = nil
	return outcome, nil
}

// AcceptTriage takes sp (the primary recommendation when empty), replaces
// the selection with the ids triage credited, and proceeds straight into
// analysis with sp as the report type.
func (p *Pipeline) AcceptTriage(ctx context.Context, sp models.Specialty, extra map[string]any) (*models.GeneratedReport, error) {
	p.mu.Lock()
	run := p.outcome
	p.mu.Unlock()
	if run == nil {
		return nil, ErrNoTriageOutcome
	}

	if sp == "" {
		sp = run.outcome.Result.PrimarySpecialty
	}
	acc, err := run.outcome.Accept(sp)
	if err != nil {
		return nil, err
	}
	kept, dropped, err := p.filterKnown(ctx, acc.Basis.NonEmpty())
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		slog.Warn("dropped unknown ids credited by triage", "pipeline_id", p.id, "dropped", dropped)
	}

	p.mu.Lock()
	if err := p.enterLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.outcome != run {
		p.inFlight = false
		p.mu.Unlock()
		return nil, ErrNoTriageOutcome
	}
	p.set.ReplaceAll(kept)
	frozen := FrozenRequest{
		UserID:     p.userID,
		Purpose:    specialistPurpose(acc.Specialty),
		ReportType: acc.ReportType,
		Confidence: acc.Confidence,
		Config: models.ReportConfig{
			PrimaryFocus: run.concern,
			Specialty:    acc.Specialty,
			Symptoms:     run.symptoms,
		},
		Selection: p.set.Snapshot(),
		Extra:     extra,
	}
	p.outcome = nil
	p.beginAnalysisLocked(frozen)
	p.mu.Unlock()

	return p.run(ctx, frozen)
}

// Generate freezes the current selection with params and runs
// write → verify → dispatch.
func (p *Pipeline) Generate(ctx context.Context, params GenerateParams) (*models.GeneratedReport, error) {
	params = params.normalize()

	p.mu.Lock()
	if err := p.enterLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	snap := p.set.Snapshot()
	if !hasInput(snap, params.Config) {
		p.inFlight = false
		p.mu.Unlock()
		return nil, ErrInsufficientInput
	}
	frozen := freezeManual(p.userID, snap, params)
	p.outcome = nil
	p.beginAnalysisLocked(frozen)
	p.mu.Unlock()

	return p.run(ctx, frozen)
}

// RetryDispatch re-sends the last failed dispatch for its already verified
// record. No new record is written.
func (p *Pipeline) RetryDispatch(ctx context.Context) (*models.GeneratedReport, error) {
	p.mu.Lock()
	if err := p.enterLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	pending := p.retry
	if pending == nil {
		p.inFlight = false
		p.mu.Unlock()
		return nil, ErrNothingToRetry
	}
	p.retry = nil
	p.state = StateGenerating
	p.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	return p.dispatch(ctx, pending.analysisID, pending.frozen)
}

// run is strictly sequential. Cancellation of ctx is ignored once the
// write has been issued.
func (p *Pipeline) run(ctx context.Context, frozen FrozenRequest) (*models.GeneratedReport, error) {
	ctx = context.WithoutCancel(ctx)

	analysisID, err := p.deps.Writer.Write(ctx, analysis.WriteParams{
		UserID:          frozen.UserID,
		Purpose:         frozen.Purpose,
		RecommendedType: frozen.ReportType,
		Confidence:      frozen.Confidence,
		Config:          frozen.Config,
		Selection:       frozen.Selection,
	})
	if err != nil {
		return nil, p.fail(err)
	}

	rec, err := p.deps.Verifier.VerifySelection(ctx, analysisID, frozen.Selection)
	if err != nil {
		return nil, p.fail(err)
	}

	p.mu.Lock()
	p.record = rec
	p.state = StateGenerating
	p.touchLocked()
	p.mu.Unlock()

	return p.dispatch(ctx, analysisID, frozen)
}

func (p *Pipeline) dispatch(ctx context.Context, analysisID uuid.UUID, frozen FrozenRequest) (*models.GeneratedReport, error) {
	report, err := p.deps.Dispatcher.Dispatch(ctx, dispatch.Request{
		AnalysisID: analysisID,
		UserID:     frozen.UserID,
		ReportType: frozen.ReportType,
		Selection:  frozen.Selection,
		Extra:      frozen.Extra,
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	p.touchLocked()
	if err != nil {
		p.retry = &pendingDispatch{analysisID: analysisID, frozen: frozen}
		p.failLocked(err)
		return nil, err
	}
	p.report = report
	p.lastErr = nil
	p.state = StateComplete
	slog.Info("pipeline completed", "pipeline_id", p.id, "analysis_id", analysisID, "user_id", p.userID)
	return report, nil
}

func (p *Pipeline) fail(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	p.touchLocked()
	p.failLocked(err)
	return err
}

func (p *Pipeline) failLocked(err error) {
	slog.Warn("pipeline step failed", "pipeline_id", p.id, "state", p.state, "error", err)
	p.lastErr = err
	p.state = StateSelect
}

func (p *Pipeline) editableLocked() error {
	if p.removed {
		return ErrNotFound
	}
	if p.state.Terminal() {
		return ErrCompleted
	}
	return nil
}

// enterLocked claims the in-flight flag.
func (p *Pipeline) enterLocked() error {
	if err := p.editableLocked(); err != nil {
		return err
	}
	if p.inFlight {
		return ErrAlreadyInProgress
	}
	p.inFlight = true
	return nil
}

func (p *Pipeline) beginAnalysisLocked(frozen FrozenRequest) {
	p.frozen = &frozen
	p.retry = nil
	p.record = nil
	p.lastErr = nil
	p.state = StateAnalyzing
	p.touchLocked()
}

// discardOutcomeLocked drops a pending triage outcome once the user edits
// the selection it was based on.
func (p *Pipeline) discardOutcomeLocked() {
	if p.outcome != nil && !p.inFlight {
		p.outcome = nil
		p.state = StateSelect
	}
}

// retire marks the pipeline removed so callers still holding it cannot
// start another step. It fails while a step is in flight.
func (p *Pipeline) retire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return ErrAlreadyInProgress
	}
	p.removed = true
	return nil
}

func (p *Pipeline) touchLocked() {
	p.updatedAt = time.Now().UTC()
}

func (p *Pipeline) checkKnown(ctx context.Context, v models.Variant, id string) error {
	if !v.Valid() {
		return catalog.ErrUnknownVariant
	}
	if p.deps.Catalog == nil {
		return nil
	}
	ix, err := p.deps.Catalog.Index(ctx, p.userID)
	if err != nil {
		return err
	}
	err = ix.Check(v, id)
	if !errors.Is(err, catalog.ErrUnknownAssessment) {
		return err
	}
	fresh, ok, rerr := p.reloadIndex(ctx)
	if rerr != nil || !ok {
		return err
	}
	return fresh.Check(v, id)
}

func (p *Pipeline) filterKnown(ctx context.Context, byVariant map[models.Variant][]string) (map[models.Variant][]string, int, error) {
	if p.deps.Catalog == nil {
		return byVariant, 0, nil
	}
	ix, err := p.deps.Catalog.Index(ctx, p.userID)
	if err != nil {
		return nil, 0, err
	}
	kept, dropped := ix.Filter(byVariant)
	if dropped == 0 {
		return kept, 0, nil
	}
	fresh, ok, rerr := p.reloadIndex(ctx)
	if rerr != nil || !ok {
		return kept, dropped, nil
	}
	kept, dropped = fresh.Filter(byVariant)
	return kept, dropped, nil
}

// reloadIndex invalidates the cached catalog and loads it again. ok is
// false when the loader does not cache.
func (p *Pipeline) reloadIndex(ctx context.Context) (*catalog.Index, bool, error) {
	r, ok := p.deps.Catalog.(indexRefresher)
	if !ok {
		return nil, false, nil
	}
	if err := r.Invalidate(ctx, p.userID); err != nil {
		slog.Warn("catalog invalidate failed", "pipeline_id", p.id, "error", err)
		return nil, false, err
	}
	ix, err := p.deps.Catalog.Index(ctx, p.userID)
	if err != nil {
		slog.Warn("catalog reload failed", "pipeline_id", p.id, "error", err)
		return nil, false, err
	}
	return ix, true, nil
}
