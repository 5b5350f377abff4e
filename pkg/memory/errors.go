// Package memory provides the core memory subsystem of the assistant:
// dual-store persistence (vector index + metadata store), hybrid search with
// score fusion, conversation context windows, and configuration.
package memory

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrValidation indicates invalid input (bad category, mismatched batch
	// lengths, missing required alternative fields).
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCategory indicates a category outside the configured set.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrEmbedding indicates that embedding generation failed.
	ErrEmbedding = errors.New("embedding generation failed")

	// ErrStore indicates that a vector index or metadata store operation failed.
	ErrStore = errors.New("store operation failed")

	// ErrNotFound indicates that a requested memory was not found.
	//
	// Most read paths return (nil, nil) for absent memories by convention;
	// this sentinel is reserved for paths where absence is a hard failure.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// MemoryError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "StoreMemory",
//	    Err: ErrEmbedding,
//	}
//	// Error() returns: "memory: StoreMemory: embedding generation failed"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "memory: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("StoreMemory", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "StoreMemory", "SearchByContent")
//   - err: The underlying error to wrap
//
// Returns a MemoryError, or nil if err is nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}
