package storage

import "errors"

// Error kinds per §7 of the engine's error-handling design. Callers use
// errors.Is against these sentinels; wrapping with fmt.Errorf("...: %w", ...)
// at each layer boundary keeps them matchable.
var (
	// ErrNotFound is returned when a memory or ledger id does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyResolved is returned when resolving an already-closed ledger entry.
	ErrAlreadyResolved = errors.New("storage: contradiction already resolved")

	// ErrDanglingReference is returned when recording a contradiction that
	// references a memory id that does not exist in the store.
	ErrDanglingReference = errors.New("storage: dangling memory reference")

	// ErrValidation is returned for malformed input (empty text, out-of-range confidence).
	ErrValidation = errors.New("storage: validation failed")
)
