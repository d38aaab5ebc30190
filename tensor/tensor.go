// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for shared tensors: logical
// arrays whose physical copies are kept coherent across device contexts.
//
// A Shared tensor tracks one copy per device that has touched it, each
// tagged fresh or stale. Writes invalidate the other copies; reads on a
// different device lazily transfer the latest value there.
//
// Example:
//
//	t, _ := tensor.NewShared(tensor.Shape{2, 2}, tensor.Float32)
//	_ = t.SetFloat32s(cpu, []float32{1, 2, 3, 4})
//	data, _ := t.Float32s(gpu) // transferred on demand
package tensor

import (
	"github.com/phloem-ml/phloem/internal/tensor"
)

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
)

// Shared is a device-coherent logical array.
type Shared = tensor.Shared

// CopyState is the freshness state of one physical copy.
type CopyState = tensor.CopyState

// Freshness states.
const (
	Stale CopyState = tensor.Stale
	Fresh CopyState = tensor.Fresh
)

// Sentinel errors, matchable with errors.Is.
var (
	ErrUninitialized = tensor.ErrUninitialized
	ErrShapeMismatch = tensor.ErrShapeMismatch
)

// NewShared constructs a tensor with the given shape and no physical
// copies. Copies are created lazily on first device access.
func NewShared(shape Shape, dtype DataType) (*Shared, error) {
	return tensor.NewShared(shape, dtype)
}
