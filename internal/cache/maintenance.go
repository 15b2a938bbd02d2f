package cache

import (
	"os"
	"path/filepath"
	"time"
)

// Exists reports whether a live (non-expired) entry is held for key.
func (c *Cache) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	return !el.Value.(*Entry).Expired(time.Now())
}

// Invalidate removes key unconditionally, in memory and on disk,
// reporting whether an entry existed.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	_, existed := c.entries[key]
	c.removeLocked(key)
	c.mu.Unlock()

	if c.dir != "" {
		_ = os.Remove(filepath.Join(c.dir, key+".json"))
	}
	return existed
}

// CleanupExpired sweeps every expired entry out of memory and disk,
// returning how many were removed.
func (c *Cache) CleanupExpired() int {
	now := time.Now()

	c.mu.Lock()
	var expired []string
	for key, el := range c.entries {
		if el.Value.(*Entry).Expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeLocked(key)
	}
	c.mu.Unlock()

	if c.dir != "" {
		for _, key := range expired {
			_ = os.Remove(filepath.Join(c.dir, key+".json"))
		}
	}
	return len(expired)
}
