package memory

import "github.com/pkg/errors"

// Memory errors
var (
	// ErrOutOfMemory indicates no free block can satisfy the request
	ErrOutOfMemory = errors.New("sample pool exhausted")

	// ErrZeroSize indicates a zero or negative allocation request
	ErrZeroSize = errors.New("allocation size must be positive")

	// ErrCorrupted indicates the block list violates a pool invariant
	ErrCorrupted = errors.New("sample pool corrupted")

	// ErrInvalidConfig indicates invalid pool or manager configuration
	ErrInvalidConfig = errors.New("invalid memory configuration")
)
