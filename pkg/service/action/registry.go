// Package action maps action types to the handlers that perform their side
// effects.
package action

import (
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// Registration is a handler and its retry classification
type Registration struct {
	Handler interfaces.ActionHandler
	// Retryable handlers are retried with backoff before the row is marked failed
	Retryable bool
}

type RegisterOption func(*Registration)

// Retryable marks the handler as safe to call again after a failure
func Retryable() RegisterOption {
	return func(r *Registration) {
		r.Retryable = true
	}
}

// Registry is safe for concurrent use
type Registry struct {
	mu      sync.RWMutex
	entries map[types.ActionType]Registration
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[types.ActionType]Registration),
	}
}

// Register sets the handler for t, replacing any previous one
func (r *Registry) Register(t types.ActionType, h interfaces.ActionHandler, opts ...RegisterOption) error {
	if !t.IsValid() {
		return goerr.Wrap(model.ErrValidation, "cannot register handler for invalid action type", goerr.V("action_type", t))
	}
	if h == nil {
		return goerr.Wrap(model.ErrValidation, "handler is nil", goerr.V("action_type", t))
	}

	reg := Registration{Handler: h}
	for _, opt := range opts {
		opt(&reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t] = reg
	return nil
}

func (r *Registry) Lookup(t types.ActionType) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[t]
	return reg, ok
}

// Types returns the registered action types in sorted order
func (r *Registry) Types() []types.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]types.ActionType, 0, len(r.entries))
	for t := range r.entries {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
