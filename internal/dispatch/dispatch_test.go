package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/healthreport/internal/remote/mock"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

func TestDispatch_SendsOnlyNonEmptyLists(t *testing.T) {
	gen := mock.NewGenerator()
	d := NewDispatcher(gen, 0)

	snap := selection.FromMap(map[models.Variant][]string{
		models.VariantQuickScan: {"A"},
		models.VariantDeepDive:  {},
	})
	id := uuid.New()
	rep, err := d.Dispatch(context.Background(), Request{
		AnalysisID: id,
		UserID:     uuid.New(),
		ReportType: models.ReportSymptomTimeline,
		Selection:  snap,
		Extra:      map[string]any{"tone": "brief"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rep-"+id.String(), rep.ReportID)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[models.Variant][]string{models.VariantQuickScan: {"A"}}, reqs[0].IDs)
	assert.Equal(t, "brief", reqs[0].ExtraParams["tone"])
}

func TestDispatch_FailureIsRetryable(t *testing.T) {
	boom := errors.New("503 from generator")
	d := NewDispatcher(mock.NewFailingGenerator(boom), 0)

	id := uuid.New()
	_, err := d.Dispatch(context.Background(), Request{AnalysisID: id})
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.True(t, derr.Retryable)
	assert.Equal(t, id, derr.AnalysisID)
	assert.ErrorIs(t, err, boom)
}

func TestDispatch_RequiresAnalysisID(t *testing.T) {
	gen := mock.NewGenerator()
	_, err := NewDispatcher(gen, 0).Dispatch(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMissingAnalysisID)
	assert.Equal(t, 0, gen.Calls())
}

func TestDispatch_FillsMissingReportType(t *testing.T) {
	gen := &mock.Generator{GenerateFunc: func(_ context.Context, _ models.ReportRequest) (models.GeneratedReport, error) {
		return models.GeneratedReport{ReportID: "r1"}, nil
	}}
	rep, err := NewDispatcher(gen, 0).Dispatch(context.Background(), Request{AnalysisID: uuid.New(), ReportType: models.ReportAnnualSummary})
	require.NoError(t, err)
	assert.Equal(t, models.ReportAnnualSummary, rep.ReportType)
}
