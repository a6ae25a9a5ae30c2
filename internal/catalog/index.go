package catalog

import (
	"fmt"

	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// Index is the set of assessment ids known to exist for one user, per variant.
type Index struct {
	known [len(models.Variants)]map[string]bool
}

// NewIndex builds an Index directly from per-variant id lists.
func NewIndex(byVariant map[models.Variant][]string) *Index {
	ix := &Index{}
	for i, v := range models.Variants {
		ix.known[i] = make(map[string]bool, len(byVariant[v]))
		for _, id := range byVariant[v] {
			ix.known[i][id] = true
		}
	}
	return ix
}

// Contains reports whether id is a record of variant v.
func (ix *Index) Contains(v models.Variant, id string) bool {
	i := v.Index()
	return i >= 0 && ix.known[i][id]
}

// Check returns ErrUnknownAssessment if id does not exist under v.
func (ix *Index) Check(v models.Variant, id string) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
	if !ix.Contains(v, id) {
		return fmt.Errorf("%w: %s %q", ErrUnknownAssessment, v, id)
	}
	return nil
}

// Filter keeps only ids that exist under their variant and reports how many
// were dropped.
func (ix *Index) Filter(byVariant map[models.Variant][]string) (map[models.Variant][]string, int) {
	kept := make(map[models.Variant][]string, len(byVariant))
	dropped := 0
	for v, ids := range byVariant {
		for _, id := range ids {
			if ix.Contains(v, id) {
				kept[v] = append(kept[v], id)
			} else {
				dropped++
			}
		}
	}
	return kept, dropped
}
