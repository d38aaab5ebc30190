// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package blas provides typed wrappers around the "phloem/blas" extension
// package: vector and matrix primitives dispatched through a backend.
package blas

import (
	"github.com/phloem-ml/phloem/backend"
	extblas "github.com/phloem-ml/phloem/internal/ext/blas"
	"github.com/phloem-ml/phloem/tensor"
)

// PackageName identifies the blas extension package.
const PackageName = extblas.PackageName

// Operation names, usable directly with Backend.Call.
const (
	OpAxpy = extblas.OpAxpy
	OpScal = extblas.OpScal
	OpDot  = extblas.OpDot
	OpAsum = extblas.OpAsum
	OpNrm2 = extblas.OpNrm2
	OpGemm = extblas.OpGemm
)

// Parameter structs.
type (
	AxpyParams = extblas.AxpyParams
	ScalParams = extblas.ScalParams
	GemmParams = extblas.GemmParams
)

// New builds the extension package for installation into a backend.
func New() *backend.Package { return extblas.New() }

// Axpy computes y = alpha*x + y.
func Axpy(b *backend.Backend, alpha float32, x, y *tensor.Shared) error {
	return b.Call(OpAxpy, []*tensor.Shared{x}, []*tensor.Shared{y}, AxpyParams{Alpha: alpha})
}

// Scal computes x = alpha*x in place.
func Scal(b *backend.Backend, alpha float32, x *tensor.Shared) error {
	return b.Call(OpScal, nil, []*tensor.Shared{x}, ScalParams{Alpha: alpha})
}

// Dot writes the inner product of x and y into the scalar tensor r.
func Dot(b *backend.Backend, x, y, r *tensor.Shared) error {
	return b.Call(OpDot, []*tensor.Shared{x, y}, []*tensor.Shared{r}, nil)
}

// Asum writes the sum of absolute values of x into the scalar tensor r.
func Asum(b *backend.Backend, x, r *tensor.Shared) error {
	return b.Call(OpAsum, []*tensor.Shared{x}, []*tensor.Shared{r}, nil)
}

// Nrm2 writes the Euclidean norm of x into the scalar tensor r.
func Nrm2(b *backend.Backend, x, r *tensor.Shared) error {
	return b.Call(OpNrm2, []*tensor.Shared{x}, []*tensor.Shared{r}, nil)
}

// Gemm computes c = alpha * op(a) @ op(b) + beta * c.
func Gemm(b *backend.Backend, p GemmParams, a, bm, c *tensor.Shared) error {
	return b.Call(OpGemm, []*tensor.Shared{a, bm}, []*tensor.Shared{c}, p)
}
