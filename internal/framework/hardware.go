package framework

import "fmt"

// HardwareKind is the general class of a compute unit.
type HardwareKind int

// Supported hardware kinds.
const (
	CPU HardwareKind = iota
	GPU
	Accelerator
)

// String returns a human-readable kind name.
func (k HardwareKind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	case Accelerator:
		return "accelerator"
	default:
		return "unknown"
	}
}

// Hardware describes one physical compute unit as seen by its framework.
// Descriptors are created at enumeration time and never mutated; backends
// and tensors hold non-owning copies.
type Hardware struct {
	// ID is unique within the enumerating framework.
	ID int
	// Framework is the name of the framework that enumerated this unit.
	Framework string
	// Kind classifies the unit.
	Kind HardwareKind
	// Name is the device name as reported by the driver.
	Name string
	// Memory is the memory capacity in bytes, 0 if unknown.
	Memory uint64
	// ComputeUnits is the number of parallel compute units, 0 if unknown.
	ComputeUnits int
}

// String formats the descriptor for logs and error messages.
func (h Hardware) String() string {
	return fmt.Sprintf("%s/%d %s (%s)", h.Framework, h.ID, h.Name, h.Kind)
}
