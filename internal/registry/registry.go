package registry

import (
	"sort"
	"strings"
	"sync"

	"rice/internal/logging"
)

// Registry holds the live set of tool descriptors. It is thread-safe
// and mutable only through Register/Unregister.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]*Descriptor
	byCategory map[Category][]*Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID:       make(map[string]*Descriptor),
		byCategory: make(map[Category][]*Descriptor),
	}
}

// Register validates and stores a descriptor. It is idempotent: a second
// call with the same id replaces the first registration entirely.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromCategoryLocked(d.ID)
	r.byID[d.ID] = d
	r.byCategory[d.Category] = append(r.byCategory[d.Category], d)

	logging.Get(logging.CategoryRegistry).Debug("registered tool %s (category=%s)", d.ID, d.Category)
	return nil
}

// Unregister removes a descriptor by id, returning it if it was present.
func (r *Registry) Unregister(id string) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	r.removeFromCategoryLocked(id)

	logging.Get(logging.CategoryRegistry).Debug("unregistered tool %s", id)
	return d
}

// removeFromCategoryLocked drops any existing entry for id from
// byCategory. Callers must hold r.mu.
func (r *Registry) removeFromCategoryLocked(id string) {
	existing, ok := r.byID[id]
	if !ok {
		return
	}
	list := r.byCategory[existing.Category]
	for i, d := range list {
		if d.ID == id {
			r.byCategory[existing.Category] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Lookup returns the descriptor registered under id, or nil.
func (r *Registry) Lookup(id string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// List returns every registered descriptor, sorted by id for deterministic
// output.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ListByCategory returns every descriptor in a category, sorted by id.
func (r *Registry) ListByCategory(cat Category) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byCategory[cat]
	result := make([]*Descriptor, len(list))
	copy(result, list)
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Search returns descriptors whose id or description contains substr,
// case-insensitively.
func (r *Registry) Search(substr string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(substr)
	var result []*Descriptor
	for _, d := range r.byID {
		if strings.Contains(strings.ToLower(d.ID), needle) || strings.Contains(strings.ToLower(d.Description), needle) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of registered descriptors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
