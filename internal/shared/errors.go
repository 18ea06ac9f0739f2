package shared

import "errors"

var (
	// ErrNotFound indicates the entity is absent or in the wrong lifecycle
	// state for the requested operation.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates no acting principal could be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidReference indicates a referenced user or permission id does not resolve.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrConcurrencyConflict indicates a lost update detected at commit.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrFailed indicates a persistence failure that was rolled back.
	ErrFailed = errors.New("operation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
