package dispatch

import "errors"

// Sentinel errors for the dispatch service layer.
var (
	ErrNotFound          = errors.New("dispatch record not found")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrInvalidTransition = errors.New("invalid status transition")
)
