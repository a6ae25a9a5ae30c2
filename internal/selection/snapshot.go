package selection

import (
	"slices"

	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// Snapshot is a frozen selection. Its lists are never exposed directly;
// every accessor hands out a copy, so a Snapshot can be passed by value
// through the pipeline without anyone being able to alter it.
type Snapshot struct {
	ids [len(models.Variants)][]string
}

// FromMap builds a Snapshot from per-variant lists, dropping empty ids and
// duplicates and ignoring unknown variants.
func FromMap(byVariant map[models.Variant][]string) Snapshot {
	s := New()
	s.ReplaceAll(byVariant)
	return s.Snapshot()
}

// FromRecord rebuilds the Snapshot stored in an analysis record.
func FromRecord(r *models.AnalysisRecord) Snapshot {
	m := make(map[models.Variant][]string, len(models.Variants))
	for _, v := range models.Variants {
		m[v] = r.IDs(v)
	}
	return FromMap(m)
}

// IDs returns a copy of the ids selected under v, never nil.
func (s Snapshot) IDs(v models.Variant) []string {
	i := v.Index()
	if i < 0 || len(s.ids[i]) == 0 {
		return []string{}
	}
	return slices.Clone(s.ids[i])
}

// NonEmpty returns only the variants that have ids. Remote services treat
// the presence of a list as an inclusion signal, so empty lists are omitted.
func (s Snapshot) NonEmpty() map[models.Variant][]string {
	out := make(map[models.Variant][]string)
	for i, v := range models.Variants {
		if len(s.ids[i]) > 0 {
			out[v] = slices.Clone(s.ids[i])
		}
	}
	return out
}

// IsEmpty is true iff no ids are selected.
func (s Snapshot) IsEmpty() bool {
	return s.Total() == 0
}

// Total counts ids across all variants.
func (s Snapshot) Total() int {
	n := 0
	for i := range s.ids {
		n += len(s.ids[i])
	}
	return n
}

// Equal compares two snapshots list by list, order included.
func (s Snapshot) Equal(o Snapshot) bool {
	for i := range s.ids {
		if !slices.Equal(s.ids[i], o.ids[i]) {
			return false
		}
	}
	return true
}

// Apply copies every list into rec.
func (s Snapshot) Apply(rec *models.AnalysisRecord) {
	for _, v := range models.Variants {
		rec.SetIDs(v, s.IDs(v))
	}
}
