package selection_test

import (
	"math/rand"
	"testing"

	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggle_InsertThenRemove(t *testing.T) {
	s := selection.New()

	assert.True(t, s.Toggle(models.VariantQuickScan, "A"))
	assert.True(t, s.Contains(models.VariantQuickScan, "A"))
	assert.False(t, s.Contains(models.VariantDeepDive, "A"), "variants are independent")

	assert.False(t, s.Toggle(models.VariantQuickScan, "A"))
	assert.False(t, s.Contains(models.VariantQuickScan, "A"))
	assert.True(t, s.IsEmpty())
}

func TestToggle_UnknownVariantIsNoop(t *testing.T) {
	s := selection.New()
	assert.False(t, s.Toggle(models.Variant("photo"), "A"))
	assert.False(t, s.Toggle(models.VariantQuickScan, ""))
	assert.True(t, s.IsEmpty())
}

func TestToggle_Involution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d", "e"}

	for round := 0; round < 200; round++ {
		s := selection.New()
		for i := 0; i < rng.Intn(20); i++ {
			s.Toggle(models.Variants[rng.Intn(len(models.Variants))], ids[rng.Intn(len(ids))])
		}
		before := s.Snapshot()

		v := models.Variants[rng.Intn(len(models.Variants))]
		id := ids[rng.Intn(len(ids))]
		s.Toggle(v, id)
		s.Toggle(v, id)

		after := s.Snapshot()
		for _, variant := range models.Variants {
			assert.ElementsMatch(t, before.IDs(variant), after.IDs(variant),
				"round %d variant %s", round, variant)
		}
	}
}

func TestToggle_RemoveKeepsInsertionOrder(t *testing.T) {
	s := selection.New()
	for _, id := range []string{"A", "B", "C", "D"} {
		s.Toggle(models.VariantQuickScan, id)
	}

	s.Toggle(models.VariantQuickScan, "B")
	assert.Equal(t, 3, s.Len(models.VariantQuickScan))
	assert.Equal(t, []string{"A", "C", "D"}, s.Snapshot().IDs(models.VariantQuickScan))

	// A re-selected id goes to the back.
	s.Toggle(models.VariantQuickScan, "B")
	s.Toggle(models.VariantQuickScan, "A")
	s.Toggle(models.VariantQuickScan, "C")
	assert.Equal(t, []string{"D", "B"}, s.Snapshot().IDs(models.VariantQuickScan))

	s.Toggle(models.VariantQuickScan, "D")
	s.Toggle(models.VariantQuickScan, "B")
	assert.True(t, s.IsEmpty())
	assert.Empty(t, s.Snapshot().IDs(models.VariantQuickScan))
}

func TestReplaceAll_ClearsOmittedVariants(t *testing.T) {
	s := selection.New()
	s.Toggle(models.VariantQuickScan, "A")
	s.Toggle(models.VariantDeepDive, "D1")
	s.Toggle(models.VariantFlashAssessment, "F1")

	s.ReplaceAll(map[models.Variant][]string{
		models.VariantQuickScan: {"B", "C"},
	})

	snap := s.Snapshot()
	assert.Equal(t, []string{"B", "C"}, snap.IDs(models.VariantQuickScan))
	assert.Empty(t, snap.IDs(models.VariantDeepDive))
	assert.Empty(t, snap.IDs(models.VariantFlashAssessment))
}

func TestReplaceAll_DropsDuplicatesAndBlanks(t *testing.T) {
	s := selection.New()
	s.ReplaceAll(map[models.Variant][]string{
		models.VariantGeneralAssessment: {"x", "", "y", "x"},
	})
	assert.Equal(t, []string{"x", "y"}, s.Snapshot().IDs(models.VariantGeneralAssessment))
	assert.Equal(t, 2, s.Len(models.VariantGeneralAssessment))
}

func TestReplaceAll_NilClearsEverything(t *testing.T) {
	s := selection.New()
	s.Toggle(models.VariantGeneralDeepDive, "G")
	s.ReplaceAll(nil)
	assert.True(t, s.IsEmpty())
}

func TestSnapshot_IsolatedFromLaterMutation(t *testing.T) {
	s := selection.New()
	s.Toggle(models.VariantQuickScan, "A")
	snap := s.Snapshot()

	s.Toggle(models.VariantQuickScan, "B")
	s.Toggle(models.VariantQuickScan, "A")
	s.Clear()

	assert.Equal(t, []string{"A"}, snap.IDs(models.VariantQuickScan))
}

func TestSnapshot_AccessorsReturnCopies(t *testing.T) {
	s := selection.New()
	s.Toggle(models.VariantDeepDive, "D1")
	snap := s.Snapshot()

	ids := snap.IDs(models.VariantDeepDive)
	ids[0] = "tampered"
	nonEmpty := snap.NonEmpty()
	nonEmpty[models.VariantDeepDive][0] = "tampered"

	assert.Equal(t, []string{"D1"}, snap.IDs(models.VariantDeepDive))
}

func TestSnapshot_NonEmptyOmitsEmptyLists(t *testing.T) {
	s := selection.New()
	s.Toggle(models.VariantQuickScan, "A")

	got := s.Snapshot().NonEmpty()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"A"}, got[models.VariantQuickScan])
	_, present := got[models.VariantDeepDive]
	assert.False(t, present)
}

func TestSnapshot_EqualAndTotal(t *testing.T) {
	a := selection.FromMap(map[models.Variant][]string{models.VariantQuickScan: {"A", "B"}})
	b := selection.FromMap(map[models.Variant][]string{models.VariantQuickScan: {"A", "B"}})
	c := selection.FromMap(map[models.Variant][]string{models.VariantDeepDive: {"A", "B"}})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, 2, a.Total())
	assert.True(t, selection.Snapshot{}.IsEmpty())
}

func TestSnapshot_ApplyAndFromRecord(t *testing.T) {
	snap := selection.FromMap(map[models.Variant][]string{
		models.VariantQuickScan:       {"A"},
		models.VariantGeneralDeepDive: {"G1", "G2"},
	})

	var rec models.AnalysisRecord
	snap.Apply(&rec)

	assert.Equal(t, []string{"A"}, rec.QuickScanIDs)
	assert.Equal(t, []string{}, rec.DeepDiveIDs)
	assert.Equal(t, []string{"G1", "G2"}, rec.GeneralDeepDiveIDs)
	assert.True(t, snap.Equal(selection.FromRecord(&rec)))
}
