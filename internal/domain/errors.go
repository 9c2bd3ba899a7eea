package domain

import "errors"

// ErrStorageConflict is returned by repositories when a write violates a
// unique constraint (for example a second recipient with the same email).
var ErrStorageConflict = errors.New("storage conflict")
