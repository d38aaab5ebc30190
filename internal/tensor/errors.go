package tensor

import "errors"

// Recoverable coherence failures, matched with errors.Is.
var (
	// ErrUninitialized reports a read of a tensor that has no fresh copy
	// anywhere, i.e. it was never written.
	ErrUninitialized = errors.New("tensor: uninitialized memory")

	// ErrShapeMismatch reports data sized for a different shape or element
	// type than the tensor's.
	ErrShapeMismatch = errors.New("tensor: shape mismatch")
)
