// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backend provides the public dispatch API: construct a backend
// over a framework, install extension packages, and invoke operations on
// shared tensors by name.
//
// Example:
//
//	b, err := backend.Default(nn.New(), blas.New())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//	err = b.Call(nn.OpSigmoid, []*tensor.Shared{x}, []*tensor.Shared{y}, nil)
package backend

import (
	"github.com/rs/zerolog"

	"github.com/phloem-ml/phloem/internal/backend"
	"github.com/phloem-ml/phloem/internal/ext"
	"github.com/phloem-ml/phloem/internal/framework"
)

// Backend is an immutable dispatch context over one opened device.
type Backend = backend.Backend

// Option configures backend construction.
type Option = backend.Option

// Package is a named bundle of operation implementations.
type Package = ext.Package

// ErrOperationUnsupported is returned by Call for unknown operations.
var ErrOperationUnsupported = backend.ErrOperationUnsupported

// New opens a device on fw and resolves the operation registry.
func New(fw framework.Framework, opts ...Option) (*Backend, error) {
	return backend.New(fw, opts...)
}

// WithFilter restricts which enumerated hardware the backend opens.
func WithFilter(keep func(framework.Hardware) bool) Option {
	return backend.WithFilter(keep)
}

// WithKind keeps only hardware of the given class.
func WithKind(kind framework.HardwareKind) Option { return backend.WithKind(kind) }

// WithPackages installs extension packages.
func WithPackages(pkgs ...*Package) Option { return backend.WithPackages(pkgs...) }

// WithLogger sets the construction and dispatch logger.
func WithLogger(log zerolog.Logger) Option { return backend.WithLogger(log) }

// Default constructs a backend over the best available framework, WebGPU
// first, falling back to native.
func Default(pkgs ...*Package) (*Backend, error) { return backend.Default(pkgs...) }

// DefaultWith is Default with an explicit logger.
func DefaultWith(log zerolog.Logger, pkgs ...*Package) (*Backend, error) {
	return backend.DefaultWith(log, pkgs...)
}

// ForKind constructs a backend restricted to one hardware class.
func ForKind(kind framework.HardwareKind, log zerolog.Logger, pkgs ...*Package) (*Backend, error) {
	return backend.ForKind(kind, log, pkgs...)
}
