package backend

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/phloem-ml/phloem/internal/ext"
	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/framework/native"
	"github.com/phloem-ml/phloem/internal/framework/webgpu"
)

// Default constructs a backend over the best available framework: WebGPU
// when an adapter is present, otherwise the native framework. A framework
// that enumerates no hardware is silently skipped, never an error; native
// always enumerates the host CPU, so Default only fails if opening the
// chosen device fails.
func Default(pkgs ...*ext.Package) (*Backend, error) {
	return DefaultWith(zerolog.Nop(), pkgs...)
}

// DefaultWith is Default with an explicit logger.
func DefaultWith(log zerolog.Logger, pkgs ...*ext.Package) (*Backend, error) {
	if gpu := webgpu.New(); len(gpu.Hardware()) > 0 {
		b, err := New(gpu, WithPackages(pkgs...), WithLogger(log))
		if err == nil {
			return b, nil
		}
		gpu.Teardown()
		log.Warn().Err(err).Msg("webgpu enumerated hardware but failed to open, falling back")
	}
	b, err := New(native.New(), WithPackages(pkgs...), WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("backend: no usable framework: %w", err)
	}
	return b, nil
}

// ForKind constructs a backend restricted to one hardware class, walking
// the same preference order as Default.
func ForKind(kind framework.HardwareKind, log zerolog.Logger, pkgs ...*ext.Package) (*Backend, error) {
	frameworks := []framework.Framework{webgpu.New(), native.New()}
	for _, fw := range frameworks {
		if len(fw.Hardware()) == 0 {
			continue
		}
		b, err := New(fw, WithKind(kind), WithPackages(pkgs...), WithLogger(log))
		if err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("backend: no framework exposes %s hardware: %w", kind, framework.ErrNoSuchHardware)
}
