package controller

import (
	"errors"
	"sync"
	"time"

	"samsar/server/internal/models"
)

var ErrUnknownSection = errors.New("unknown section")

// CatalogFunc returns the categories of a section, nil when it does not exist.
type CatalogFunc func(section string) []models.CategoryMeta

// Registry keeps one controller per visitor and section.
type Registry struct {
	catalog CatalogFunc
	deps    Deps

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewRegistry(catalog CatalogFunc, deps Deps) *Registry {
	return &Registry{
		catalog:     catalog,
		deps:        deps,
		controllers: make(map[string]*Controller),
	}
}

func registryKey(visitorID, section string) string {
	return visitorID + "|" + section
}

// Get returns the visitor's controller for section, creating it on first use.
func (r *Registry) Get(visitorID, section string) (*Controller, error) {
	key := registryKey(visitorID, section)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[key]; ok {
		return c, nil
	}

	catalog := r.catalog(section)
	if len(catalog) == 0 {
		return nil, ErrUnknownSection
	}
	c := NewController(section, visitorID, catalog, r.deps)
	r.controllers[key] = c
	return c, nil
}

// Lookup returns the visitor's controller for section without creating one.
func (r *Registry) Lookup(visitorID, section string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[registryKey(visitorID, section)]
	return c, ok
}

// Sweep drops controllers idle for longer than idle and returns how many
// were removed. Controllers with a running load are kept.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, c := range r.controllers {
		if c.LastUsed().Before(cutoff) && !c.Loading() {
			delete(r.controllers, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}
