package content

import "errors"

// Sentinel errors for the content registry and references.
var (
	ErrAlreadyRegistered = errors.New("content type already registered")
	ErrNotRegistered     = errors.New("content type not registered")
	ErrObjectNotFound    = errors.New("referenced object not found")
	ErrInvalidObjectID   = errors.New("invalid object id")
	ErrInvalidType       = errors.New("invalid content type")
)
