// Package catalog provides read-only access to a user's assessment records.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/internal/cache"
	"github.com/kiranshivaraju/healthreport/internal/store"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

var (
	ErrUnknownVariant    = errors.New("unknown assessment variant")
	ErrUnknownAssessment = errors.New("assessment not found in catalog")
)

// Lister is the slice of store.Store the catalog reads from.
type Lister interface {
	ListAssessments(ctx context.Context, filter store.AssessmentFilter) ([]*models.AssessmentRecord, error)
}

// Catalog lists assessments per variant, caching each list for a short TTL.
// A nil cache disables caching.
type Catalog struct {
	src   Lister
	cache cache.Cache
	ttl   time.Duration
}

func New(src Lister, c cache.Cache, ttl time.Duration) *Catalog {
	return &Catalog{src: src, cache: c, ttl: ttl}
}

// ListAssessments returns the user's records of one variant, newest first.
func (c *Catalog) ListAssessments(ctx context.Context, userID uuid.UUID, variant models.Variant) ([]*models.AssessmentRecord, error) {
	if !variant.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}

	key := cache.CatalogKey(userID, string(variant))
	if recs, ok := c.cached(ctx, key); ok {
		return recs, nil
	}

	recs, err := c.src.ListAssessments(ctx, store.AssessmentFilter{UserID: userID, Variant: variant})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", variant, err)
	}
	for _, r := range recs {
		r.Variant = variant
	}

	c.remember(ctx, key, recs)
	return recs, nil
}

// ListAll merges every variant into one timeline, newest first. An id is
// only ever reported once per variant.
func (c *Catalog) ListAll(ctx context.Context, userID uuid.UUID) ([]*models.AssessmentRecord, error) {
	var all []*models.AssessmentRecord
	for _, v := range models.Variants {
		recs, err := c.ListAssessments(ctx, userID, v)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(recs))
		for _, r := range recs {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			all = append(all, r)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if all == nil {
		all = []*models.AssessmentRecord{}
	}
	return all, nil
}

// Index loads every variant and returns the set of ids that exist for the user.
func (c *Catalog) Index(ctx context.Context, userID uuid.UUID) (*Index, error) {
	ix := &Index{}
	for i, v := range models.Variants {
		recs, err := c.ListAssessments(ctx, userID, v)
		if err != nil {
			return nil, err
		}
		ix.known[i] = make(map[string]bool, len(recs))
		for _, r := range recs {
			ix.known[i][r.ID] = true
		}
	}
	return ix, nil
}

// Invalidate drops the cached lists for a user.
func (c *Catalog) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if c.cache == nil {
		return nil
	}
	keys := make([]string, 0, len(models.Variants))
	for _, v := range models.Variants {
		keys = append(keys, cache.CatalogKey(userID, string(v)))
	}
	return c.cache.Delete(ctx, keys...)
}

func (c *Catalog) cached(ctx context.Context, key string) ([]*models.AssessmentRecord, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("catalog cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var recs []*models.AssessmentRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		slog.Warn("catalog cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return recs, true
}

func (c *Catalog) remember(ctx context.Context, key string, recs []*models.AssessmentRecord) {
	if c.cache == nil || c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		slog.Warn("catalog cache write failed", "key", key, "error", err)
	}
}
