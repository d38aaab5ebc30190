// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu exposes the GPU framework over WebGPU. On machines
// without a usable adapter it enumerates no hardware and backends fall
// through to the native framework.
package webgpu

import (
	"github.com/phloem-ml/phloem/internal/framework/webgpu"
)

// Name is the registry name of the WebGPU framework.
const Name = webgpu.Name

// Framework is the WebGPU framework.
type Framework = webgpu.Framework

// Device is a WebGPU device context.
type Device = webgpu.Device

// New probes for a GPU adapter and constructs the framework. Probe
// failure is not an error; the framework enumerates no hardware instead.
func New() *Framework { return webgpu.New() }
