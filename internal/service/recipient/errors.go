package recipient

import "errors"

// Sentinel errors for the recipient service layer.
var (
	ErrNotFound     = errors.New("recipient not found")
	ErrListNotFound = errors.New("mailing list not found")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidToken = errors.New("invalid unsubscribe token")
	ErrInvalidName  = errors.New("mailing list name is required")
	ErrNameTooLong  = errors.New("recipient name is too long")
)
