package pipeline

import (
	"slices"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Registry holds live pipelines in memory. A pipeline idle for longer than
// the TTL is evicted; a step already running keeps its own reference and
// finishes normally.
type Registry struct {
	deps  *Deps
	items *gocache.Cache
}

func NewRegistry(deps *Deps, ttl time.Duration) *Registry {
	return &Registry{
		deps:  deps,
		items: gocache.New(ttl, ttl/2),
	}
}

// Create starts a fresh pipeline for userID.
func (r *Registry) Create(userID uuid.UUID) *Pipeline {
	p := New(userID, r.deps)
	r.items.SetDefault(p.ID().String(), p)
	return p
}

// Get returns the pipeline if it exists and belongs to userID, and resets
// its idle timer.
func (r *Registry) Get(userID, id uuid.UUID) (*Pipeline, error) {
	item, ok := r.items.Get(id.String())
	if !ok {
		return nil, ErrNotFound
	}
	p := item.(*Pipeline)
	if p.UserID() != userID {
		return nil, ErrNotFound
	}
	r.items.SetDefault(id.String(), p)
	return p, nil
}

// Delete removes a pipeline. A pipeline with a step in flight cannot be
// removed, and one that is removed accepts no further steps.
func (r *Registry) Delete(userID, id uuid.UUID) error {
	p, err := r.Get(userID, id)
	if err != nil {
		return err
	}
	if err := p.retire(); err != nil {
		return err
	}
	r.items.Delete(id.String())
	return nil
}

// List returns the caller's live pipelines, newest first.
func (r *Registry) List(userID uuid.UUID) []*Pipeline {
	var out []*Pipeline
	for _, item := range r.items.Items() {
		if p, ok := item.Object.(*Pipeline); ok && p.UserID() == userID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *Pipeline) int {
		return b.createdAt.Compare(a.createdAt)
	})
	return out
}

// Len is the number of live pipelines across all users.
func (r *Registry) Len() int {
	return r.items.ItemCount()
}
