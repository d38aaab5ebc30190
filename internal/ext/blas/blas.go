// Package blas is the "phloem/blas" extension package: a level-1 vector
// subset (axpy, scal, dot, asum, nrm2) and level-3 gemm over shared
// tensors, with native-accelerated and framework-agnostic software paths.
package blas

import (
	"fmt"

	"github.com/phloem-ml/phloem/internal/ext"
	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/framework/native"
	"github.com/phloem-ml/phloem/internal/parallel"
	"github.com/phloem-ml/phloem/internal/tensor"
)

// PackageName identifies this extension package.
const PackageName = "phloem/blas"

// Operation names registered by this package.
const (
	OpAxpy = "axpy"
	OpScal = "scal"
	OpDot  = "dot"
	OpAsum = "asum"
	OpNrm2 = "nrm2"
	OpGemm = "gemm"
)

// AxpyParams carries the axpy scaling factor: y = alpha*x + y.
type AxpyParams struct {
	Alpha float32
}

// ScalParams carries the scal scaling factor: x = alpha*x.
type ScalParams struct {
	Alpha float32
}

// GemmParams configures gemm: c = alpha * op(a) @ op(b) + beta * c.
type GemmParams struct {
	Alpha  float32
	Beta   float32
	TransA bool
	TransB bool
}

// New builds the package table with default host parallelism.
func New() *ext.Package {
	return NewWith(parallel.DefaultConfig())
}

// NewWith builds the package table with explicit host-kernel parallelism.
func NewWith(cfg parallel.Config) *ext.Package {
	nativeKey := ext.Key{Framework: native.Name, Hardware: framework.CPU}

	table := map[string]struct {
		nativeImpl ext.Implementation
		software   ext.Implementation
	}{
		OpAxpy: {nativeImpl: nativeOp(runAxpy(cfg)), software: softwareOp(runAxpy(cfg))},
		OpScal: {nativeImpl: nativeOp(runScal(cfg)), software: softwareOp(runScal(cfg))},
		OpDot:  {nativeImpl: nativeOp(runDot), software: softwareOp(runDot)},
		OpAsum: {nativeImpl: nativeOp(runAsum), software: softwareOp(runAsum)},
		OpNrm2: {nativeImpl: nativeOp(runNrm2), software: softwareOp(runNrm2)},
		OpGemm: {nativeImpl: nativeOp(runGemm(cfg)), software: softwareOp(runGemm(cfg))},
	}

	p := &ext.Package{
		Name:     PackageName,
		Ops:      make(map[string]map[ext.Key]ext.Implementation, len(table)),
		Fallback: make(map[string]ext.Implementation, len(table)),
		Accumulating: map[string]bool{
			OpAxpy: true,
			OpScal: true,
			OpGemm: true, // beta may be nonzero
		},
	}
	for name, impls := range table {
		p.Ops[name] = map[ext.Key]ext.Implementation{nativeKey: impls.nativeImpl}
		p.Fallback[name] = impls.software
	}
	return p
}

// vectorCall is the host-side view every blas kernel runs against,
// regardless of whether the bytes came from native memory or staging.
type vectorCall struct {
	inputs  [][]float32
	outputs [][]float32
	in      []ext.Operand
	out     []ext.Operand
	params  any
}

type kernelFunc func(vc *vectorCall) error

// typedParams returns the caller's params as T, or def when params is
// nil. A non-nil value of any other type is an error, never a silent
// zero value.
func typedParams[T any](params any, def T) (T, error) {
	if params == nil {
		return def, nil
	}
	p, ok := params.(T)
	if !ok {
		return def, fmt.Errorf("blas: params are %T, want %T", params, def)
	}
	return p, nil
}

func runAxpy(cfg parallel.Config) kernelFunc {
	return func(vc *vectorCall) error {
		if err := vc.expect(1, 1); err != nil {
			return err
		}
		x, y := vc.inputs[0], vc.outputs[0]
		if len(x) != len(y) {
			return fmt.Errorf("%w: axpy x[%d] vs y[%d]", tensor.ErrShapeMismatch, len(x), len(y))
		}
		p, err := typedParams(vc.params, AxpyParams{Alpha: 1})
		if err != nil {
			return err
		}
		axpyKernel(y, x, p.Alpha, cfg)
		return nil
	}
}

func runScal(cfg parallel.Config) kernelFunc {
	return func(vc *vectorCall) error {
		if err := vc.expect(0, 1); err != nil {
			return err
		}
		p, err := typedParams(vc.params, ScalParams{Alpha: 1})
		if err != nil {
			return err
		}
		scalKernel(vc.outputs[0], p.Alpha, cfg)
		return nil
	}
}

func runDot(vc *vectorCall) error {
	if err := vc.expect(2, 1); err != nil {
		return err
	}
	x, y := vc.inputs[0], vc.inputs[1]
	if len(x) != len(y) {
		return fmt.Errorf("%w: dot x[%d] vs y[%d]", tensor.ErrShapeMismatch, len(x), len(y))
	}
	if len(vc.outputs[0]) != 1 {
		return fmt.Errorf("%w: dot result must be a scalar", tensor.ErrShapeMismatch)
	}
	vc.outputs[0][0] = dotKernel(x, y)
	return nil
}

func runAsum(vc *vectorCall) error {
	if err := vc.expect(1, 1); err != nil {
		return err
	}
	if len(vc.outputs[0]) != 1 {
		return fmt.Errorf("%w: asum result must be a scalar", tensor.ErrShapeMismatch)
	}
	vc.outputs[0][0] = asumKernel(vc.inputs[0])
	return nil
}

func runNrm2(vc *vectorCall) error {
	if err := vc.expect(1, 1); err != nil {
		return err
	}
	if len(vc.outputs[0]) != 1 {
		return fmt.Errorf("%w: nrm2 result must be a scalar", tensor.ErrShapeMismatch)
	}
	vc.outputs[0][0] = nrm2Kernel(vc.inputs[0])
	return nil
}

func runGemm(cfg parallel.Config) kernelFunc {
	return func(vc *vectorCall) error {
		if err := vc.expect(2, 1); err != nil {
			return err
		}
		p, err := typedParams(vc.params, GemmParams{Alpha: 1})
		if err != nil {
			return err
		}

		aShape, bShape, cShape := vc.in[0].Shape, vc.in[1].Shape, vc.out[0].Shape
		if len(aShape) != 2 || len(bShape) != 2 || len(cShape) != 2 {
			return fmt.Errorf("%w: gemm needs 2-D operands, got %v @ %v -> %v",
				tensor.ErrShapeMismatch, aShape, bShape, cShape)
		}
		m, n := cShape[0], cShape[1]
		k := aShape[1]
		if p.TransA {
			k = aShape[0]
		}
		if err := checkGemmDims(aShape, bShape, m, n, k, p.TransA, p.TransB); err != nil {
			return err
		}
		gemmKernel(vc.outputs[0], vc.inputs[0], vc.inputs[1],
			m, n, k, p.Alpha, p.Beta, p.TransA, p.TransB, cfg)
		return nil
	}
}

func checkGemmDims(aShape, bShape tensor.Shape, m, n, k int, transA, transB bool) error {
	am, ak := aShape[0], aShape[1]
	if transA {
		am, ak = ak, am
	}
	bk, bn := bShape[0], bShape[1]
	if transB {
		bk, bn = bn, bk
	}
	if am != m || ak != k || bk != k || bn != n {
		return fmt.Errorf("%w: gemm %v @ %v incompatible with [%d %d]",
			tensor.ErrShapeMismatch, aShape, bShape, m, n)
	}
	return nil
}

func (vc *vectorCall) expect(inputs, outputs int) error {
	if len(vc.inputs) != inputs || len(vc.outputs) != outputs {
		return fmt.Errorf("blas: want %d inputs and %d outputs, got %d and %d",
			inputs, outputs, len(vc.inputs), len(vc.outputs))
	}
	for _, op := range vc.in {
		if op.DType != tensor.Float32 {
			return fmt.Errorf("blas: float32 only, got %s", op.DType)
		}
	}
	for _, op := range vc.out {
		if op.DType != tensor.Float32 {
			return fmt.Errorf("blas: float32 only, got %s", op.DType)
		}
	}
	return nil
}

// nativeOp runs a kernel directly on native memory, no staging.
func nativeOp(fn kernelFunc) ext.Implementation {
	return func(call *ext.Call) error {
		vc := &vectorCall{
			inputs:  make([][]float32, len(call.Inputs)),
			outputs: make([][]float32, len(call.Outputs)),
			in:      call.Inputs,
			out:     call.Outputs,
			params:  call.Params,
		}
		for i, op := range call.Inputs {
			m, ok := op.Memory.(*native.Memory)
			if !ok {
				return fmt.Errorf("blas: native implementation invoked on %s memory", call.Device.Framework().Name())
			}
			vc.inputs[i] = ext.Float32View(m.Bytes())
		}
		for i, op := range call.Outputs {
			m, ok := op.Memory.(*native.Memory)
			if !ok {
				return fmt.Errorf("blas: native implementation invoked on %s memory", call.Device.Framework().Name())
			}
			vc.outputs[i] = ext.Float32View(m.Bytes())
		}
		return fn(vc)
	}
}

// softwareOp stages operands through host bytes, making the kernel work on
// any framework.
func softwareOp(fn kernelFunc) ext.Implementation {
	return ext.Software(func(hc *ext.HostCall) error {
		vc := &vectorCall{
			inputs:  make([][]float32, len(hc.Inputs)),
			outputs: make([][]float32, len(hc.Outputs)),
			in:      hc.In,
			out:     hc.Out,
			params:  hc.Params,
		}
		for i, data := range hc.Inputs {
			vc.inputs[i] = ext.Float32View(data)
		}
		for i, data := range hc.Outputs {
			vc.outputs[i] = ext.Float32View(data)
		}
		return fn(vc)
	})
}
