package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// View is a consistent read of a pipeline at one instant.
type View struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	State      State
	InFlight   bool
	Selection  selection.Snapshot
	Triage     *models.TriageResult
	Frozen     *FrozenRequest
	AnalysisID *uuid.UUID
	Report     *models.GeneratedReport
	LastError  error
	CanRetry   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (p *Pipeline) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{
		ID:        p.id,
		UserID:    p.userID,
		State:     p.state,
		InFlight:  p.inFlight,
		Selection: p.set.Snapshot(),
		Report:    p.report,
		LastError: p.lastErr,
		CanRetry:  p.retry != nil,
		CreatedAt: p.createdAt,
		UpdatedAt: p.updatedAt,
	}
	if p.outcome != nil {
		r := p.outcome.outcome.Result
		v.Triage = &r
	}
	if p.frozen != nil {
		f := *p.frozen
		v.Frozen = &f
	}
	switch {
	case p.record != nil:
		id := p.record.ID
		v.AnalysisID = &id
	case p.retry != nil:
		id := p.retry.analysisID
		v.AnalysisID = &id
	}
	return v
}
