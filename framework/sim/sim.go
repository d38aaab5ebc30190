// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sim exposes the simulated accelerator framework, used for
// testing transfer and allocation behavior with deterministic counters.
package sim

import (
	"github.com/phloem-ml/phloem/internal/framework/sim"
)

// Name is the registry name of the simulated framework.
const Name = sim.Name

// Framework is a simulated accelerator framework.
type Framework = sim.Framework

// Device is a simulated device with allocation and transfer counters.
type Device = sim.Device

// New constructs a framework enumerating n simulated accelerators. With
// n = 0 the framework behaves like an unsupported one.
func New(n int) *Framework { return sim.New(n) }
