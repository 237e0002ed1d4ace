package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrMalformedIdentifier = errors.New("malformed entity identifier")
	ErrUnknownEntityType   = errors.New("unknown entity type")
	ErrMultipleResults     = errors.New("lookup returned multiple results")
	ErrUnknownLookupField  = errors.New("unknown lookup field")
)

// Publishable entities can be sent to subscribers.
type Publishable interface {
	WebhookPayload() any
}

// LookupFunc finds all entities of one type whose field equals value.
type LookupFunc func(ctx context.Context, field string, value string) ([]any, error)

// Lookup adapts a typed finder into a LookupFunc.
func Lookup[T any](find func(ctx context.Context, field string, value string) ([]T, error)) LookupFunc {
	return func(ctx context.Context, field string, value string) ([]any, error) {
		found, err := find(ctx, field, value)
		if err != nil {
			return nil, err
		}
		entities := make([]any, len(found))
		for i := range found {
			entities[i] = found[i]
		}
		return entities, nil
	}
}

func NewRegistry() *Registry {
	return &Registry{
		lookups: map[string]LookupFunc{},
	}
}

// Registry maps entity type tags like "courses.Course" to their lookup.
type Registry struct {
	mu      sync.RWMutex
	lookups map[string]LookupFunc
}

func (r *Registry) Register(entityType string, lookup LookupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[entityType] = lookup
}

// Resolve validates entityType and returns the short type name with its lookup.
func (r *Registry) Resolve(entityType string) (string, LookupFunc, error) {
	namespace, name, ok := strings.Cut(entityType, ".")
	if !ok || namespace == "" || name == "" || strings.Contains(name, ".") {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedIdentifier, entityType)
	}

	r.mu.RLock()
	lookup, ok := r.lookups[entityType]
	r.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	return name, lookup, nil
}
