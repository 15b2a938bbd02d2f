package config

import "fmt"

// CoreLimits enforces system-wide resource constraints referenced by the
// scheduler, executor, cache, and session store.
type CoreLimits struct {
	MaxConcurrentTasks  int `yaml:"max_concurrent_tasks" json:"max_concurrent_tasks"`     // parallelism cap for a scheduler phase
	MaxConcurrentTools  int `yaml:"max_concurrent_tools" json:"max_concurrent_tools"`     // parallelism cap for execute_parallel
	MaxMessagesPerTurn  int `yaml:"max_messages_per_turn" json:"max_messages_per_turn"`   // session message cap
	MaxCacheEntries     int `yaml:"max_cache_entries" json:"max_cache_entries"`           // analysis cache size cap
	MaxEventSubscribers int `yaml:"max_event_subscribers" json:"max_event_subscribers"`   // event bus fan-out cap
	EventBufferSize     int `yaml:"event_buffer_size" json:"event_buffer_size"`           // per-subscriber channel buffer
}

// Validate checks that core limits are within acceptable ranges.
func (c *Config) Validate() error {
	if c.CoreLimits.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max_concurrent_tasks must be >= 1")
	}
	if c.CoreLimits.MaxConcurrentTools < 1 {
		return fmt.Errorf("max_concurrent_tools must be >= 1")
	}
	if c.CoreLimits.MaxMessagesPerTurn < 1 {
		return fmt.Errorf("max_messages_per_turn must be >= 1")
	}
	if c.CoreLimits.MaxCacheEntries < 1 {
		return fmt.Errorf("max_cache_entries must be >= 1")
	}
	if c.CoreLimits.EventBufferSize < 1 {
		return fmt.Errorf("event_buffer_size must be >= 1")
	}
	return nil
}
