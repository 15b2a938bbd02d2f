package config

import "time"

// RuntimeTimeouts centralizes every timeout the core runtime depends on.
// A single shortest-timeout-wins chain is easy to get wrong across
// packages, so every component takes its timeout from one of these fields
// instead of hardcoding a duration.
type RuntimeTimeouts struct {
	// ToolCallTimeout bounds a single tool invocation end to end (send,
	// await response, permission check excluded).
	ToolCallTimeout time.Duration `json:"tool_call_timeout"`

	// StdioFrameReadTimeout bounds a single frame read on the stdio
	// transport; a tool process that stops writing frames entirely is
	// detected here rather than hanging the caller forever.
	StdioFrameReadTimeout time.Duration `json:"stdio_frame_read_timeout"`

	// HealthCheckTimeout bounds a transport connectivity probe.
	HealthCheckTimeout time.Duration `json:"health_check_timeout"`

	// SessionLoadTimeout bounds a single encrypted session load, including
	// decrypt and JSON decode.
	SessionLoadTimeout time.Duration `json:"session_load_timeout"`

	// RetryBackoffBase is the base duration for exponential backoff
	// between tool-call retries.
	RetryBackoffBase time.Duration `json:"retry_backoff_base"`

	// RetryBackoffMax caps the backoff duration.
	RetryBackoffMax time.Duration `json:"retry_backoff_max"`

	// MaxRetries is the default maximum number of attempts, the first
	// call included, for a transiently failed tool call.
	MaxRetries int `json:"max_retries"`

	// CacheEntryTTL is the default time-to-live for an analysis cache
	// entry before it is considered stale on read.
	CacheEntryTTL time.Duration `json:"cache_entry_ttl"`
}

// DefaultTimeouts returns the timeouts used outside of tests.
func DefaultTimeouts() RuntimeTimeouts {
	return RuntimeTimeouts{
		ToolCallTimeout:       30 * time.Second,
		StdioFrameReadTimeout: 60 * time.Second,
		HealthCheckTimeout:    5 * time.Second,
		SessionLoadTimeout:    10 * time.Second,
		RetryBackoffBase:      200 * time.Millisecond,
		RetryBackoffMax:       5 * time.Second,
		MaxRetries:            3,
		CacheEntryTTL:         24 * time.Hour,
	}
}

// FastTimeouts returns shortened timeouts suitable for tests that exercise
// timeout and retry paths without waiting on the production defaults.
func FastTimeouts() RuntimeTimeouts {
	return RuntimeTimeouts{
		ToolCallTimeout:       2 * time.Second,
		StdioFrameReadTimeout: 2 * time.Second,
		HealthCheckTimeout:    500 * time.Millisecond,
		SessionLoadTimeout:    1 * time.Second,
		RetryBackoffBase:      10 * time.Millisecond,
		RetryBackoffMax:       100 * time.Millisecond,
		MaxRetries:            2,
		CacheEntryTTL:         time.Minute,
	}
}

var globalTimeouts = DefaultTimeouts()

// GetTimeouts returns the process-wide timeout configuration.
func GetTimeouts() RuntimeTimeouts {
	return globalTimeouts
}

// SetTimeouts replaces the process-wide timeout configuration. Call early
// during startup, before any component reads GetTimeouts.
func SetTimeouts(t RuntimeTimeouts) {
	globalTimeouts = t
}
