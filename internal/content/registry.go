package content

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Body is the rendered content an adapter supplies for one object.
type Body struct {
	HTML string
	Text string
}

// Adapter declares how instances of one content type are mailed.
type Adapter struct {
	// IntegerKeys declares that the type's primary key is an integer, so
	// references carry the indexed integer shadow of the object id.
	IntegerKeys bool

	// Subject computes the email subject for an object. Defaults to the
	// object's display form.
	Subject func(obj any) string

	// Render supplies the message body for an object. Optional.
	Render func(ctx context.Context, obj any) (Body, error)

	// Lookup fetches objects of this type. Used when callers resolve a
	// reference without passing their own lookup.
	Lookup Lookup
}

// SubjectFor returns the adapter subject for obj.
func (a Adapter) SubjectFor(obj any) string {
	if a.Subject != nil {
		return a.Subject(obj)
	}
	return displayOf(obj)
}

// BodyFor returns the adapter body for obj, or an empty body when the
// adapter does not render.
func (a Adapter) BodyFor(ctx context.Context, obj any) (Body, error) {
	if a.Render == nil {
		return Body{}, nil
	}
	return a.Render(ctx, obj)
}

// Registry maps content type identifiers to adapters. It is safe for
// concurrent use, so registration may race with dispatch calls.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter for contentType. Returns ErrAlreadyRegistered
// if the type is already present.
func (r *Registry) Register(contentType string, adapter Adapter) error {
	if err := validateType(contentType); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[contentType]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, contentType)
	}
	r.adapters[contentType] = adapter
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(contentType string, adapter Adapter) {
	if err := r.Register(contentType, adapter); err != nil {
		panic(err)
	}
}

// Unregister removes contentType. Returns ErrNotRegistered if absent.
func (r *Registry) Unregister(contentType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[contentType]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, contentType)
	}
	delete(r.adapters, contentType)
	return nil
}

// IsRegistered reports whether contentType has an adapter.
func (r *Registry) IsRegistered(contentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[contentType]
	return ok
}

// Adapter returns the adapter for contentType.
func (r *Registry) Adapter(contentType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[contentType]
	if !ok {
		return Adapter{}, fmt.Errorf("%w: %s", ErrNotRegistered, contentType)
	}
	return a, nil
}

// RegisteredTypes returns a sorted snapshot of the registered types.
// Later registrations are not reflected in the returned slice.
func (r *Registry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Content types are used as the prefix of reference keys and of token
// payloads, so neither separator may appear in them.
func validateType(contentType string) error {
	if strings.TrimSpace(contentType) == "" || strings.Contains(contentType, keySep) || strings.Contains(contentType, "\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidType, contentType)
	}
	return nil
}
