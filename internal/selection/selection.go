// Package selection tracks which assessment records are chosen for a report
// request and freezes that choice into an immutable Snapshot.
package selection

import (
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// idList is an insertion-ordered set of ids. Order is kept so that the
// frozen lists written to the store match what is sent on the wire.
// Removal leaves an empty slot in order; slots are compacted once they
// outnumber live ids, which keeps add and remove O(1) amortized.
type idList struct {
	order []string
	index map[string]int
	dead  int
}

func (l *idList) contains(id string) bool {
	_, ok := l.index[id]
	return ok
}

func (l *idList) len() int { return len(l.index) }

func (l *idList) add(id string) {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if _, ok := l.index[id]; ok {
		return
	}
	l.index[id] = len(l.order)
	l.order = append(l.order, id)
}

func (l *idList) remove(id string) {
	pos, ok := l.index[id]
	if !ok {
		return
	}
	l.order[pos] = ""
	delete(l.index, id)
	l.dead++
	if l.dead > len(l.index) {
		l.compact()
	}
}

func (l *idList) compact() {
	if len(l.index) == 0 {
		l.order = nil
		l.dead = 0
		return
	}
	live := l.order[:0]
	for _, id := range l.order {
		if id == "" {
			continue
		}
		l.index[id] = len(live)
		live = append(live, id)
	}
	clear(l.order[len(live):])
	l.order = live
	l.dead = 0
}

// ids returns a fresh slice of the live ids in insertion order.
func (l *idList) ids() []string {
	out := make([]string, 0, len(l.index))
	for _, id := range l.order {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Set is the mutable selection owned by one pipeline. It is not safe for
// concurrent use; the owning pipeline serializes access.
type Set struct {
	lists [len(models.Variants)]idList
}

// New returns an empty Set.
func New() *Set {
	return &Set{}
}

// Toggle inserts id if absent and removes it if present. It reports whether
// id is selected afterwards. Unknown variants are ignored.
func (s *Set) Toggle(v models.Variant, id string) bool {
	i := v.Index()
	if i < 0 || id == "" {
		return false
	}
	l := &s.lists[i]
	if l.contains(id) {
		l.remove(id)
		return false
	}
	l.add(id)
	return true
}

// ReplaceAll swaps every list at once. Variants missing from byVariant are
// cleared so triage-chosen and hand-picked ids never mix.
func (s *Set) ReplaceAll(byVariant map[models.Variant][]string) {
	var next [len(models.Variants)]idList
	for i, v := range models.Variants {
		for _, id := range byVariant[v] {
			if id != "" {
				next[i].add(id)
			}
		}
	}
	s.lists = next
}

// Clear empties every list.
func (s *Set) Clear() {
	s.lists = [len(models.Variants)]idList{}
}

// Contains reports whether id is selected under v.
func (s *Set) Contains(v models.Variant, id string) bool {
	i := v.Index()
	return i >= 0 && s.lists[i].contains(id)
}

// Len returns the number of ids selected under v.
func (s *Set) Len(v models.Variant) int {
	i := v.Index()
	if i < 0 {
		return 0
	}
	return s.lists[i].len()
}

// IsEmpty is true iff all five lists are empty.
func (s *Set) IsEmpty() bool {
	for i := range s.lists {
		if s.lists[i].len() > 0 {
			return false
		}
	}
	return true
}

// Snapshot returns an immutable copy of the current selection.
func (s *Set) Snapshot() Snapshot {
	var snap Snapshot
	for i := range s.lists {
		if s.lists[i].len() > 0 {
			snap.ids[i] = s.lists[i].ids()
		}
	}
	return snap
}
