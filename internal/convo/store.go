// Package convo holds short-lived conversation state for the slot-filling
// capture flow. The store is best-effort: a miss or an error just means the
// conversation starts over.
package convo

import (
	"context"
	"time"
)

// Store persists JSON-serializable values under a key with a TTL.
type Store interface {
	// Set writes value (JSON-encoded) under key, expiring after ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get decodes the value for key into out. The boolean reports whether a
	// live (non-expired) entry was found.
	Get(ctx context.Context, key string, out any) (bool, error)
}

// TodoKey is the conversation key for a capture session.
func TodoKey(conversationID string) string {
	return "todo:" + conversationID
}
