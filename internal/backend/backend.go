// Package backend binds a framework, a device context, and a set of
// extension packages into a dispatch fabric: named operations invoked on
// shared tensors, with synchronization handled before any kernel runs.
package backend

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/phloem-ml/phloem/internal/ext"
	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/tensor"
)

// ErrOperationUnsupported is returned by Call when no installed package
// provides an implementation for the named operation. Match with errors.Is.
var ErrOperationUnsupported = errors.New("backend: operation unsupported")

// resolved is one registry entry, fixed at construction.
type resolved struct {
	impl         ext.Implementation
	pkg          string
	accumulating bool
}

// Backend is a dispatch context: one framework, one opened device per
// selected hardware descriptor, and a registry of operations resolved
// against the framework for every selected hardware class at
// construction. The registry is immutable; only the active device
// changes, via Select.
type Backend struct {
	fw       framework.Framework
	devices  []framework.Device
	active   int
	selected []framework.Hardware
	registry map[framework.HardwareKind]map[string]resolved
	log      zerolog.Logger
}

// Option configures backend construction.
type Option func(*options)

type options struct {
	filter   func(framework.Hardware) bool
	packages []*ext.Package
	log      zerolog.Logger
}

// WithFilter restricts which enumerated hardware the backend opens. The
// backend fails construction when the filter rejects everything.
func WithFilter(keep func(framework.Hardware) bool) Option {
	return func(o *options) { o.filter = keep }
}

// WithKind keeps only hardware of the given class.
func WithKind(kind framework.HardwareKind) Option {
	return WithFilter(func(h framework.Hardware) bool { return h.Kind == kind })
}

// WithPackages installs extension packages. Operation names must not
// collide across packages; the first package providing a name wins and the
// collision is logged.
func WithPackages(pkgs ...*ext.Package) Option {
	return func(o *options) { o.packages = append(o.packages, pkgs...) }
}

// WithLogger sets the construction and dispatch logger. Defaults to a
// no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New opens a device on fw and resolves the operation registry against it.
//
// Hardware selection runs the enumerated list through the filter, if any.
// An empty result is ErrNoSuchHardware; frameworks that enumerate nothing
// are unsupported on this machine and should be skipped by the caller (see
// Default).
func New(fw framework.Framework, opts ...Option) (*Backend, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	selected := fw.Hardware()
	if o.filter != nil {
		kept := make([]framework.Hardware, 0, len(selected))
		for _, h := range selected {
			if o.filter(h) {
				kept = append(kept, h)
			}
		}
		selected = kept
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("backend: framework %s: %w", fw.Name(), framework.ErrNoSuchHardware)
	}

	devices := make([]framework.Device, 0, len(selected))
	for _, h := range selected {
		dev, err := fw.Open(h)
		if err != nil {
			for _, d := range devices {
				_ = d.Close()
			}
			return nil, fmt.Errorf("backend: open %s: %w", h, err)
		}
		devices = append(devices, dev)
	}

	b := &Backend{
		fw:       fw,
		devices:  devices,
		selected: selected,
		registry: make(map[framework.HardwareKind]map[string]resolved),
		log:      o.log,
	}
	var kinds []framework.HardwareKind
	for _, h := range selected {
		if _, ok := b.registry[h.Kind]; !ok {
			b.registry[h.Kind] = make(map[string]resolved)
			kinds = append(kinds, h.Kind)
		}
	}
	owners := make(map[string]string)
	for _, pkg := range o.packages {
		for _, name := range pkg.Operations() {
			if prev, ok := owners[name]; ok {
				b.log.Warn().
					Str("op", name).
					Str("kept", prev).
					Str("ignored", pkg.Name).
					Msg("operation name collision")
				continue
			}
			owners[name] = pkg.Name
			for _, kind := range kinds {
				impl, ok := pkg.Resolve(name, ext.Key{Framework: fw.Name(), Hardware: kind})
				if !ok {
					continue
				}
				b.registry[kind][name] = resolved{
					impl:         impl,
					pkg:          pkg.Name,
					accumulating: pkg.Accumulating[name],
				}
			}
		}
	}

	b.log.Info().
		Str("framework", fw.Name()).
		Str("device", devices[0].ID()).
		Str("hardware", selected[0].String()).
		Int("devices", len(devices)).
		Int("operations", len(owners)).
		Msg("backend ready")
	return b, nil
}

// table returns the registry slice for the active device's hardware
// class.
func (b *Backend) table() map[string]resolved {
	return b.registry[b.selected[b.active].Kind]
}

// Framework returns the framework this backend dispatches to.
func (b *Backend) Framework() framework.Framework { return b.fw }

// Device returns the backend's active device context.
func (b *Backend) Device() framework.Device { return b.devices[b.active] }

// Devices returns every opened device context, one per selected hardware
// descriptor, in enumeration order.
func (b *Backend) Devices() []framework.Device { return b.devices }

// Select activates the first device whose hardware matches pred. Fails
// with ErrNoSuchHardware when nothing matches; the active device is then
// unchanged.
func (b *Backend) Select(pred func(framework.Hardware) bool) error {
	for i, h := range b.selected {
		if pred(h) {
			b.active = i
			return nil
		}
	}
	return fmt.Errorf("backend: no opened device matches: %w", framework.ErrNoSuchHardware)
}

// Hardware returns the hardware the backend's devices were opened on.
func (b *Backend) Hardware() []framework.Hardware { return b.selected }

// Supports reports whether an operation can be dispatched on the active
// device.
func (b *Backend) Supports(op string) bool {
	_, ok := b.table()[op]
	return ok
}

// Operations returns the names of all operations dispatchable on the
// active device, in no particular order.
func (b *Backend) Operations() []string {
	table := b.table()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	return names
}

// Call dispatches one operation on the backend's active device.
//
// Every input tensor is synchronized to the device first. Output tensors
// are materialized without invalidation; accumulating operations get
// their outputs synchronized like inputs because the kernel reads them.
// Only after the implementation succeeds is each output marked the sole
// fresh copy, so a failed call leaves every output's prior value intact.
func (b *Backend) Call(op string, inputs, outputs []*tensor.Shared, params any) error {
	entry, ok := b.table()[op]
	if !ok {
		return fmt.Errorf("%w: %q on %s", ErrOperationUnsupported, op, b.fw.Name())
	}

	dev := b.Device()
	call := &ext.Call{
		Device:  dev,
		Inputs:  make([]ext.Operand, len(inputs)),
		Outputs: make([]ext.Operand, len(outputs)),
		Params:  params,
	}
	for i, t := range inputs {
		mem, err := t.Read(dev)
		if err != nil {
			return fmt.Errorf("backend: %s input %d: %w", op, i, err)
		}
		call.Inputs[i] = ext.Operand{Memory: mem, Shape: t.Shape(), DType: t.DType()}
	}
	for i, t := range outputs {
		var (
			mem framework.Memory
			err error
		)
		if entry.accumulating {
			mem, err = t.Read(dev)
		} else {
			mem, err = t.Reserve(dev)
		}
		if err != nil {
			return fmt.Errorf("backend: %s output %d: %w", op, i, err)
		}
		call.Outputs[i] = ext.Operand{Memory: mem, Shape: t.Shape(), DType: t.DType()}
	}

	if err := entry.impl(call); err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	for i, t := range outputs {
		if err := t.MarkWritten(dev); err != nil {
			return fmt.Errorf("backend: %s output %d: %w", op, i, err)
		}
	}
	return nil
}

// Close releases every opened device context. The framework itself is the
// caller's to tear down.
func (b *Backend) Close() error {
	var first error
	for _, dev := range b.devices {
		if err := dev.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
