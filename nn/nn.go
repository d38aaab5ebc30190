// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides typed wrappers around the "phloem/nn" extension
// package: activation functions dispatched through a backend.
package nn

import (
	"github.com/phloem-ml/phloem/backend"
	extnn "github.com/phloem-ml/phloem/internal/ext/nn"
	"github.com/phloem-ml/phloem/tensor"
)

// PackageName identifies the nn extension package.
const PackageName = extnn.PackageName

// Operation names, usable directly with Backend.Call.
const (
	OpSigmoid    = extnn.OpSigmoid
	OpTanh       = extnn.OpTanh
	OpReLU       = extnn.OpReLU
	OpELU        = extnn.OpELU
	OpSoftmax    = extnn.OpSoftmax
	OpLogSoftmax = extnn.OpLogSoftmax
)

// EluParams carries the ELU saturation coefficient.
type EluParams = extnn.EluParams

// New builds the extension package for installation into a backend.
func New() *backend.Package { return extnn.New() }

// Sigmoid computes y = 1 / (1 + exp(-x)) element-wise.
func Sigmoid(b *backend.Backend, x, y *tensor.Shared) error {
	return b.Call(OpSigmoid, []*tensor.Shared{x}, []*tensor.Shared{y}, nil)
}

// Tanh computes y = tanh(x) element-wise.
func Tanh(b *backend.Backend, x, y *tensor.Shared) error {
	return b.Call(OpTanh, []*tensor.Shared{x}, []*tensor.Shared{y}, nil)
}

// ReLU computes y = max(0, x) element-wise.
func ReLU(b *backend.Backend, x, y *tensor.Shared) error {
	return b.Call(OpReLU, []*tensor.Shared{x}, []*tensor.Shared{y}, nil)
}

// ELU computes y = x for x > 0 and alpha*(exp(x)-1) otherwise.
func ELU(b *backend.Backend, x, y *tensor.Shared, alpha float32) error {
	return b.Call(OpELU, []*tensor.Shared{x}, []*tensor.Shared{y}, EluParams{Alpha: alpha})
}

// Softmax normalizes x row-wise into a probability distribution over the
// last dimension.
func Softmax(b *backend.Backend, x, y *tensor.Shared) error {
	return b.Call(OpSoftmax, []*tensor.Shared{x}, []*tensor.Shared{y}, nil)
}

// LogSoftmax computes log(softmax(x)) row-wise, numerically stable.
func LogSoftmax(b *backend.Backend, x, y *tensor.Shared) error {
	return b.Call(OpLogSoftmax, []*tensor.Shared{x}, []*tensor.Shared{y}, nil)
}
