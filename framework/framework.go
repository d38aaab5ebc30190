// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package framework provides the public capability surface a compute
// framework must implement: hardware enumeration, device contexts, memory
// allocation and host transfer.
//
// A framework that is unsupported on the current machine enumerates zero
// hardware; that is a capability statement, not an error.
package framework

import (
	"github.com/phloem-ml/phloem/internal/framework"
)

// Framework enumerates hardware and opens device contexts.
type Framework = framework.Framework

// Device is an opened context on selected hardware.
type Device = framework.Device

// Memory is an opaque device allocation.
type Memory = framework.Memory

// PeerCopier is the optional direct device-to-device transfer interface.
type PeerCopier = framework.PeerCopier

// Hardware describes one enumerated compute unit.
type Hardware = framework.Hardware

// HardwareKind is the class of a compute unit.
type HardwareKind = framework.HardwareKind

// Hardware classes.
const (
	CPU         HardwareKind = framework.CPU
	GPU         HardwareKind = framework.GPU
	Accelerator HardwareKind = framework.Accelerator
)

// Sentinel errors, matchable with errors.Is.
var (
	ErrNoSuchHardware  = framework.ErrNoSuchHardware
	ErrDriver          = framework.ErrDriver
	ErrAllocation      = framework.ErrAllocation
	ErrNoTransferRoute = framework.ErrNoTransferRoute
)
