package common

import "errors"

// User-visible, recoverable errors. These never mutate state and never
// terminate the process; callers are expected to compare with errors.Is.
var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrKeyNotFound  = errors.New("key not found")
	ErrClosed       = errors.New("database closed")
	ErrFieldTooLong = errors.New("field exceeds maximum length")
)
