package content

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ignite/dispatch/internal/domain"
)

const keySep = ":"

// Lookup fetches a live object by content type and id. Implementations
// return ErrObjectNotFound (or a nil object) when it no longer exists.
type Lookup interface {
	Fetch(ctx context.Context, contentType, objectID string) (any, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, contentType, objectID string) (any, error)

// Fetch calls f.
func (f LookupFunc) Fetch(ctx context.Context, contentType, objectID string) (any, error) {
	return f(ctx, contentType, objectID)
}

// Encode builds a reference to objectID of contentType. The integer
// shadow is populated only when the adapter declares integer keys, and
// integer ids are stored in canonical decimal form.
func (r *Registry) Encode(contentType, objectID string) (domain.Reference, error) {
	adapter, err := r.Adapter(contentType)
	if err != nil {
		return domain.Reference{}, err
	}
	if objectID == "" {
		return domain.Reference{}, fmt.Errorf("%w: empty", ErrInvalidObjectID)
	}
	if strings.Contains(objectID, "\x00") {
		return domain.Reference{}, fmt.Errorf("%w: contains NUL", ErrInvalidObjectID)
	}

	ref := domain.Reference{ContentType: contentType, ObjectID: objectID}
	if adapter.IntegerKeys {
		n, err := strconv.ParseInt(objectID, 10, 64)
		if err != nil {
			return domain.Reference{}, fmt.Errorf("%w: %q is not an integer key for %s", ErrInvalidObjectID, objectID, contentType)
		}
		// "007" and "+7" name the same row as "7".
		ref.ObjectID = strconv.FormatInt(n, 10)
		ref.ObjectIDInt = &n
	}
	return ref, nil
}

// Key serializes a reference as "content-type:object-id".
func Key(ref domain.Reference) string {
	return ref.ContentType + keySep + ref.ObjectID
}

// Decode parses a key produced by Key and re-encodes it against the
// registry, so the integer shadow matches the current adapter.
func (r *Registry) Decode(key string) (domain.Reference, error) {
	contentType, objectID, ok := strings.Cut(key, keySep)
	if !ok {
		return domain.Reference{}, fmt.Errorf("%w: malformed reference key %q", ErrInvalidObjectID, key)
	}
	return r.Encode(contentType, objectID)
}

// Resolve fetches the object a reference points at. When lookup is nil the
// adapter's own Lookup is used. A missing object yields ErrObjectNotFound;
// the owning dispatch record is not touched.
func (r *Registry) Resolve(ctx context.Context, ref domain.Reference, lookup Lookup) (any, error) {
	if lookup == nil {
		adapter, err := r.Adapter(ref.ContentType)
		if err != nil {
			return nil, err
		}
		if adapter.Lookup == nil {
			return nil, fmt.Errorf("no lookup configured for %s", ref.ContentType)
		}
		lookup = adapter.Lookup
	}

	obj, err := lookup.Fetch(ctx, ref.ContentType, ref.ObjectID)
	if errors.Is(err, ErrObjectNotFound) || (err == nil && obj == nil) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return obj, nil
}

// Display returns the referenced object's display form, or the reference
// placeholder when it cannot be resolved.
func (r *Registry) Display(ctx context.Context, ref domain.Reference, lookup Lookup) string {
	obj, err := r.Resolve(ctx, ref, lookup)
	if err != nil {
		return ref.String()
	}
	return displayOf(obj)
}

func displayOf(obj any) string {
	if s, ok := obj.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(obj)
}

// MapLookup is an in-memory Lookup keyed by content type and object id.
type MapLookup struct {
	mu      sync.RWMutex
	objects map[string]any
}

// NewMapLookup returns an empty MapLookup.
func NewMapLookup() *MapLookup {
	return &MapLookup{objects: make(map[string]any)}
}

// Put stores obj under (contentType, objectID).
func (m *MapLookup) Put(contentType, objectID string, obj any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[contentType+keySep+objectID] = obj
}

// Delete removes the object stored under (contentType, objectID).
func (m *MapLookup) Delete(contentType, objectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, contentType+keySep+objectID)
}

// Fetch implements Lookup.
func (m *MapLookup) Fetch(_ context.Context, contentType, objectID string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[contentType+keySep+objectID]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return obj, nil
}
