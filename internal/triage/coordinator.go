// Package triage runs the advisory specialty-recommendation step.
package triage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// Coordinator calls the triage backend and normalizes what comes back.
type Coordinator struct {
	triager models.Triager
	timeout time.Duration
}

// NewCoordinator creates a Coordinator. A zero timeout leaves the caller's
// deadline in charge.
func NewCoordinator(t models.Triager, timeout time.Duration) *Coordinator {
	return &Coordinator{triager: t, timeout: timeout}
}

// Outcome is one successful triage run.
type Outcome struct {
	Result models.TriageResult
	// Sent is the selection that went out in the request.
	Sent selection.Snapshot
	// Basis is what the decision was credited to: the echoed ids when the
	// service returned them, otherwise Sent.
	Basis selection.Snapshot
}

// Acceptance is what the pipeline needs to proceed with an accepted specialty.
type Acceptance struct {
	Specialty  models.Specialty
	ReportType models.ReportType
	Confidence float64
	Basis      selection.Snapshot
}

// Accept picks sp from the outcome's recommendations.
func (o *Outcome) Accept(sp models.Specialty) (Acceptance, error) {
	if !o.Result.Offers(sp) {
		return Acceptance{}, ErrUnknownSpecialty
	}
	return Acceptance{
		Specialty:  sp,
		ReportType: models.SpecialtyReportType(sp),
		Confidence: o.Result.ConfidenceFor(sp),
		Basis:      o.Basis,
	}, nil
}

// AcceptPrimary accepts the primary recommendation.
func (o *Outcome) AcceptPrimary() Acceptance {
	a, _ := o.Accept(o.Result.PrimarySpecialty)
	return a
}

// Run makes exactly one call to the triage backend. snap is sent as-is with
// empty variants omitted.
func (c *Coordinator) Run(ctx context.Context, userID uuid.UUID, snap selection.Snapshot, concern string, symptoms []string) (*Outcome, error) {
	concern = strings.TrimSpace(concern)
	symptoms = compact(symptoms)
	if snap.IsEmpty() && concern == "" && len(symptoms) == 0 {
		return nil, ErrInsufficientInput
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.triager.Triage(ctx, models.TriageRequest{
		UserID:         userID,
		IDs:            snap.NonEmpty(),
		PrimaryConcern: concern,
		Symptoms:       symptoms,
	})
	if err != nil {
		slog.Warn("triage call failed", "user_id", userID, "backend", c.triager.Name(), "error", err)
		return nil, &Error{Retryable: true, Err: err}
	}

	result = normalize(result)
	out := &Outcome{Result: result, Sent: snap, Basis: snap}
	if result.BasisIDs != nil {
		out.Basis = selection.FromMap(result.BasisIDs)
	}

	slog.Info("triage completed",
		"user_id", userID,
		"backend", c.triager.Name(),
		"specialty", result.PrimarySpecialty,
		"confidence", result.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// normalize coerces specialties into the known set and clamps confidences.
func normalize(r models.TriageResult) models.TriageResult {
	primary, ok := models.ParseSpecialty(string(r.PrimarySpecialty))
	if !ok {
		slog.Warn("unknown triage specialty, using primary care", "specialty", r.PrimarySpecialty)
	}
	r.PrimarySpecialty = primary
	r.Confidence = clamp(r.Confidence)
	r.Urgency = models.ParseTriageUrgency(string(r.Urgency))

	seen := map[models.Specialty]bool{primary: true}
	secondary := make([]models.SpecialtyRecommendation, 0, len(r.SecondarySpecialties))
	for _, s := range r.SecondarySpecialties {
		sp, _ := models.ParseSpecialty(string(s.Specialty))
		if seen[sp] {
			continue
		}
		seen[sp] = true
		s.Specialty = sp
		s.Confidence = clamp(s.Confidence)
		secondary = append(secondary, s)
	}
	r.SecondarySpecialties = secondary
	return r
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
