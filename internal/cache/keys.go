package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// RequestStatusKey is scoped to the owner: a poll for someone else's request
// misses the cache and falls through to the store's ownership check.
func RequestStatusKey(ownerID, requestID uuid.UUID) string {
	return fmt.Sprintf("request:%s:%s", ownerID, requestID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
