// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package native exposes the host-memory framework. It is always
// available and serves as the terminal fallback for every backend.
package native

import (
	"github.com/phloem-ml/phloem/internal/framework/native"
)

// Name is the registry name of the native framework.
const Name = native.Name

// Framework is the native host framework.
type Framework = native.Framework

// Device is a native device context backed by host memory.
type Device = native.Device

// Memory is a host byte buffer.
type Memory = native.Memory

// New constructs the native framework. It always enumerates the host CPU.
func New() *Framework { return native.New() }
