package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// CatalogKey caches one variant's assessment list for a user.
func CatalogKey(userID uuid.UUID, variant string) string {
	return fmt.Sprintf("catalog:%s:%s", userID, variant)
}

// RateLimitKey is the per-user request counter for the current window.
func RateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}
