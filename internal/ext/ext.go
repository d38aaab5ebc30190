// Package ext defines the extension-package protocol: how bundles of named
// operations plug their per-framework implementations into a backend.
//
// A package is a static table. It contributes entries keyed by operation
// name and (framework, hardware kind) at backend construction time; the
// core never enumerates package internals, it only queries by name.
package ext

import (
	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/tensor"
)

// Operand is one input or output of an operation invocation. By the time
// an implementation sees it, the memory is guaranteed valid on the call's
// device.
type Operand struct {
	Memory framework.Memory
	Shape  tensor.Shape
	DType  tensor.DataType
}

// Call carries everything an operation implementation needs: the device it
// runs on, materialized operands, and operation-specific scalar parameters.
type Call struct {
	Device  framework.Device
	Inputs  []Operand
	Outputs []Operand
	Params  any
}

// Implementation executes one operation on already-synchronized memory.
// Errors are kernel-level failures, reported to the caller unchanged.
type Implementation func(call *Call) error

// Key selects an accelerated implementation: the framework it is compiled
// for and the hardware class it targets.
type Key struct {
	Framework string
	Hardware  framework.HardwareKind
}

// Package is a named, immutable bundle of operations. Ops holds
// accelerated implementations by key; Fallback holds framework-agnostic
// software implementations used when no accelerated entry matches the
// active framework.
type Package struct {
	Name     string
	Ops      map[string]map[Key]Implementation
	Fallback map[string]Implementation

	// Accumulating names operations that read their outputs as well as
	// write them (axpy, gemm with beta, ...). The dispatcher synchronizes
	// such outputs like inputs before invoking the implementation instead
	// of treating them as fully overwritten.
	Accumulating map[string]bool
}

// Resolve returns the implementation of op for the given key, falling back
// to the software path. The second result reports whether any
// implementation exists.
func (p *Package) Resolve(op string, key Key) (Implementation, bool) {
	if impls, ok := p.Ops[op]; ok {
		if impl, ok := impls[key]; ok {
			return impl, true
		}
	}
	if impl, ok := p.Fallback[op]; ok {
		return impl, true
	}
	return nil, false
}

// Operations returns the names of all operations the package provides, in
// no particular order.
func (p *Package) Operations() []string {
	seen := make(map[string]struct{}, len(p.Ops)+len(p.Fallback))
	for name := range p.Ops {
		seen[name] = struct{}{}
	}
	for name := range p.Fallback {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names
}

// HostCall is the host-staged view of a Call handed to software fallback
// kernels: inputs copied out to host bytes, outputs as host scratch
// buffers that are copied back in afterwards.
type HostCall struct {
	Inputs  [][]byte
	Outputs [][]byte
	In      []Operand
	Out     []Operand
	Params  any
}

// Software adapts a pure host kernel into an Implementation that works on
// any framework: it copies every input out of device memory, runs the
// kernel on host bytes, and copies every output back in. This is the
// guaranteed-portable path; accelerated implementations exist to avoid
// exactly these transfers.
func Software(kernel func(hc *HostCall) error) Implementation {
	return func(call *Call) error {
		hc := &HostCall{
			Inputs:  make([][]byte, len(call.Inputs)),
			Outputs: make([][]byte, len(call.Outputs)),
			In:      call.Inputs,
			Out:     call.Outputs,
			Params:  call.Params,
		}
		for i, op := range call.Inputs {
			data, err := call.Device.CopyOut(op.Memory)
			if err != nil {
				return err
			}
			hc.Inputs[i] = data
		}
		for i, op := range call.Outputs {
			// Stage the current contents too, so accumulating kernels see
			// their prior values.
			data, err := call.Device.CopyOut(op.Memory)
			if err != nil {
				return err
			}
			hc.Outputs[i] = data
		}
		if err := kernel(hc); err != nil {
			return err
		}
		for i, op := range call.Outputs {
			if err := call.Device.CopyIn(op.Memory, hc.Outputs[i]); err != nil {
				return err
			}
		}
		return nil
	}
}
