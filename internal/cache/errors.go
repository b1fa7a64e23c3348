package cache

import "errors"

var (
	// ErrEntryTooLarge indicates a single serialized value exceeds the byte budget.
	ErrEntryTooLarge = errors.New("cache: entry exceeds size budget")
	// ErrQuotaExceeded indicates the durable key space rejected a write for lack of space.
	ErrQuotaExceeded = errors.New("cache: durable storage quota exceeded")
	// ErrNoStore indicates persistence was requested without a durable store.
	ErrNoStore = errors.New("cache: durable store not configured")
	// ErrNilFetch indicates an operation that must fetch was given no fetch function.
	ErrNilFetch = errors.New("cache: fetch function is required")
	// ErrInvalidPattern indicates an invalidation pattern failed to compile.
	ErrInvalidPattern = errors.New("cache: invalid pattern")
)
