package backends

import (
	"sort"
	"sync"

	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/models"
)

// Registry holds the closed set of connectors known to the dispatcher.
// Registration happens at wiring time; lookups are concurrent-safe.
type Registry struct {
	mu         sync.RWMutex
	connectors map[models.BackendID]Connector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[models.BackendID]Connector),
	}
}

// Register adds a connector. Registering a duplicate identity is a wiring
// bug and returns an error rather than silently replacing.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.ID()
	if _, exists := r.connectors[id]; exists {
		return errors.Newf(errors.CodeInternal, "backend %q already registered", id)
	}
	r.connectors[id] = c
	return nil
}

// Get returns the connector for the given identity.
func (r *Registry) Get(id models.BackendID) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	return c, ok
}

// IDs returns the registered identities, sorted.
func (r *Registry) IDs() []models.BackendID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]models.BackendID, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered connectors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connectors)
}

// Close closes every registered connector, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, c := range r.connectors {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
