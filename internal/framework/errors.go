package framework

import "errors"

// Recoverable framework-level failures. Callers match them with errors.Is
// and may retry on another device or fall back to the native framework.
var (
	// ErrNoSuchHardware reports a hardware selection containing a
	// descriptor the framework did not enumerate.
	ErrNoSuchHardware = errors.New("framework: no such hardware")

	// ErrDriver reports a failure inside the underlying driver. The
	// affected device context is considered unusable afterwards.
	ErrDriver = errors.New("framework: driver error")

	// ErrAllocation reports device memory exhaustion.
	ErrAllocation = errors.New("framework: allocation failure")

	// ErrNoTransferRoute reports that a direct device-to-device copy is not
	// available for a pair of devices. The coherence engine treats it as a
	// cue to stage the transfer through host memory.
	ErrNoTransferRoute = errors.New("framework: no direct transfer route")
)
