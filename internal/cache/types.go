// Package cache implements the content-addressed analysis cache: prior
// tool/LLM analysis results are stored keyed by a digest of their inputs
// so identical work is never repeated within the entry's lifetime.
package cache

import "time"

// Entry is a single cached analysis result.
type Entry struct {
	Key        string    `json:"key"`
	Analysis   string    `json:"analysis"`
	Producer   string    `json:"producer"`
	TokenCount int       `json:"token_count"`
	ProducedAt time.Time `json:"produced_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
