// Package nn is the "phloem/nn" extension package: neural-network
// activation primitives over shared tensors.
//
// Every operation has a framework-agnostic software fallback; the native
// and WebGPU frameworks additionally get accelerated implementations. All
// paths agree numerically within floating-point tolerance.
package nn

import (
	"fmt"

	"github.com/phloem-ml/phloem/internal/ext"
	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/framework/native"
	"github.com/phloem-ml/phloem/internal/framework/webgpu"
	"github.com/phloem-ml/phloem/internal/parallel"
	"github.com/phloem-ml/phloem/internal/tensor"
)

// PackageName identifies this extension package.
const PackageName = "phloem/nn"

// Operation names registered by this package.
const (
	OpSigmoid    = "sigmoid"
	OpTanh       = "tanh"
	OpReLU       = "relu"
	OpELU        = "elu"
	OpSoftmax    = "softmax"
	OpLogSoftmax = "log_softmax"
)

// EluParams carries the ELU saturation coefficient. A nil Params defaults
// to alpha = 1.
type EluParams struct {
	Alpha float32
}

// New builds the package table with default host parallelism. The table is
// immutable once installed into a backend.
func New() *ext.Package {
	return NewWith(parallel.DefaultConfig())
}

// NewWith builds the package table with explicit host-kernel parallelism.
func NewWith(cfg parallel.Config) *ext.Package {
	nativeKey := ext.Key{Framework: native.Name, Hardware: framework.CPU}
	gpuKey := ext.Key{Framework: webgpu.Name, Hardware: framework.GPU}

	return &ext.Package{
		Name: PackageName,
		Ops: map[string]map[ext.Key]ext.Implementation{
			OpSigmoid: {
				nativeKey: nativeUnary(func(dst, src []float32) { sigmoidKernel(dst, src, cfg) }),
				gpuKey:    gpuUnary(OpSigmoid, sigmoidShader),
			},
			OpTanh: {
				nativeKey: nativeUnary(func(dst, src []float32) { tanhKernel(dst, src, cfg) }),
				gpuKey:    gpuUnary(OpTanh, tanhShader),
			},
			OpReLU: {
				nativeKey: nativeUnary(func(dst, src []float32) { reluKernel(dst, src, cfg) }),
				gpuKey:    gpuUnary(OpReLU, reluShader),
			},
			OpELU: {
				nativeKey: nativeElu(cfg),
			},
			OpSoftmax: {
				nativeKey: nativeRowwise(func(dst, src []float32, rows, cols int) {
					softmaxKernel(dst, src, rows, cols, cfg)
				}),
			},
			OpLogSoftmax: {
				nativeKey: nativeRowwise(func(dst, src []float32, rows, cols int) {
					logSoftmaxKernel(dst, src, rows, cols, cfg)
				}),
			},
		},
		Fallback: map[string]ext.Implementation{
			OpSigmoid: softwareUnary(func(dst, src []float32) { sigmoidKernel(dst, src, cfg) }),
			OpTanh:    softwareUnary(func(dst, src []float32) { tanhKernel(dst, src, cfg) }),
			OpReLU:    softwareUnary(func(dst, src []float32) { reluKernel(dst, src, cfg) }),
			OpELU: ext.Software(func(hc *ext.HostCall) error {
				if err := checkUnaryOperands(hc.In, hc.Out); err != nil {
					return err
				}
				alpha, err := eluAlpha(hc.Params)
				if err != nil {
					return err
				}
				eluKernel(ext.Float32View(hc.Outputs[0]), ext.Float32View(hc.Inputs[0]), alpha, cfg)
				return nil
			}),
			OpSoftmax: softwareRowwise(func(dst, src []float32, rows, cols int) {
				softmaxKernel(dst, src, rows, cols, cfg)
			}),
			OpLogSoftmax: softwareRowwise(func(dst, src []float32, rows, cols int) {
				logSoftmaxKernel(dst, src, rows, cols, cfg)
			}),
		},
	}
}

// eluAlpha extracts the ELU coefficient. Nil params mean alpha = 1; a
// wrong-typed value is an error rather than a silent default.
func eluAlpha(params any) (float32, error) {
	if params == nil {
		return 1, nil
	}
	p, ok := params.(EluParams)
	if !ok {
		return 0, fmt.Errorf("nn: params are %T, want nn.EluParams", params)
	}
	return p.Alpha, nil
}

// checkUnaryOperands validates the one-input one-output float32 contract
// shared by every activation.
func checkUnaryOperands(in, out []ext.Operand) error {
	if len(in) != 1 || len(out) != 1 {
		return fmt.Errorf("nn: want 1 input and 1 output, got %d and %d", len(in), len(out))
	}
	if in[0].DType != tensor.Float32 || out[0].DType != tensor.Float32 {
		return fmt.Errorf("nn: float32 only, got %s -> %s", in[0].DType, out[0].DType)
	}
	if !in[0].Shape.Equal(out[0].Shape) {
		return fmt.Errorf("%w: input %v vs output %v", tensor.ErrShapeMismatch, in[0].Shape, out[0].Shape)
	}
	return nil
}

// rowsCols splits a shape into softmax iteration space: the last dimension
// is the reduction axis, everything before it is batched.
func rowsCols(shape tensor.Shape) (rows, cols int) {
	cols = shape.NumElements()
	if len(shape) > 1 {
		cols = shape[len(shape)-1]
	}
	return shape.NumElements() / cols, cols
}

// nativeUnary runs a host kernel directly on native memory, no staging.
func nativeUnary(fn func(dst, src []float32)) ext.Implementation {
	return func(call *ext.Call) error {
		if err := checkUnaryOperands(call.Inputs, call.Outputs); err != nil {
			return err
		}
		src, dst, err := nativeViews(call)
		if err != nil {
			return err
		}
		fn(dst, src)
		return nil
	}
}

func nativeElu(cfg parallel.Config) ext.Implementation {
	return func(call *ext.Call) error {
		if err := checkUnaryOperands(call.Inputs, call.Outputs); err != nil {
			return err
		}
		src, dst, err := nativeViews(call)
		if err != nil {
			return err
		}
		alpha, err := eluAlpha(call.Params)
		if err != nil {
			return err
		}
		eluKernel(dst, src, alpha, cfg)
		return nil
	}
}

func nativeRowwise(fn func(dst, src []float32, rows, cols int)) ext.Implementation {
	return func(call *ext.Call) error {
		if err := checkUnaryOperands(call.Inputs, call.Outputs); err != nil {
			return err
		}
		src, dst, err := nativeViews(call)
		if err != nil {
			return err
		}
		rows, cols := rowsCols(call.Inputs[0].Shape)
		fn(dst, src, rows, cols)
		return nil
	}
}

// nativeViews exposes the input and output buffers as float32 slices,
// which only works when the call runs on the native framework.
func nativeViews(call *ext.Call) (src, dst []float32, err error) {
	in, ok := call.Inputs[0].Memory.(*native.Memory)
	if !ok {
		return nil, nil, fmt.Errorf("nn: native implementation invoked on %s memory", call.Device.Framework().Name())
	}
	out, ok := call.Outputs[0].Memory.(*native.Memory)
	if !ok {
		return nil, nil, fmt.Errorf("nn: native implementation invoked on %s memory", call.Device.Framework().Name())
	}
	return ext.Float32View(in.Bytes()), ext.Float32View(out.Bytes()), nil
}

func softwareUnary(fn func(dst, src []float32)) ext.Implementation {
	return ext.Software(func(hc *ext.HostCall) error {
		if err := checkUnaryOperands(hc.In, hc.Out); err != nil {
			return err
		}
		fn(ext.Float32View(hc.Outputs[0]), ext.Float32View(hc.Inputs[0]))
		return nil
	})
}

func softwareRowwise(fn func(dst, src []float32, rows, cols int)) ext.Implementation {
	return ext.Software(func(hc *ext.HostCall) error {
		if err := checkUnaryOperands(hc.In, hc.Out); err != nil {
			return err
		}
		rows, cols := rowsCols(hc.In[0].Shape)
		fn(ext.Float32View(hc.Outputs[0]), ext.Float32View(hc.Inputs[0]), rows, cols)
		return nil
	})
}

// gpuUnary dispatches a WGSL kernel through the WebGPU device's unary
// compute-pass helper.
func gpuUnary(name, shader string) ext.Implementation {
	return func(call *ext.Call) error {
		if err := checkUnaryOperands(call.Inputs, call.Outputs); err != nil {
			return err
		}
		dev, ok := call.Device.(*webgpu.Device)
		if !ok {
			return fmt.Errorf("nn: webgpu implementation invoked on %s device", call.Device.Framework().Name())
		}
		return dev.RunUnary("nn_"+name, shader,
			call.Inputs[0].Memory, call.Outputs[0].Memory, call.Inputs[0].Shape.NumElements())
	}
}
