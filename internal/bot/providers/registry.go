package providers

import (
	"fmt"

	"github.com/dmitrijs2005/debatekeeper/internal/common"
)

// Registry is a pure identifier-to-strategy mapping. Registration order is
// preserved and defines the participant order in debates. Registered
// strategies are never replaced.
type Registry struct {
	order []string
	byID  map[string]Caller
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Caller)}
}

// Register adds a new strategy. Registering the same identifier twice is a
// programming error.
func (r *Registry) Register(c Caller) error {
	if _, ok := r.byID[c.Name()]; ok {
		return fmt.Errorf("provider %s already registered", c.Name())
	}
	r.byID[c.Name()] = c
	r.order = append(r.order, c.Name())
	return nil
}

// Lookup returns the strategy for the identifier, or common.ErrUnknownProvider.
func (r *Registry) Lookup(id string) (Caller, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownProvider, id)
	}
	return c, nil
}

// Names returns the registered identifiers in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultRegistry registers the built-in providers in their canonical order.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(NewGemini())
	_ = r.Register(NewGroq())
	_ = r.Register(NewAnthropic())
	_ = r.Register(NewDeepSeek())
	return r
}
