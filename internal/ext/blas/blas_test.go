package blas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phloem-ml/phloem/internal/ext"
	"github.com/phloem-ml/phloem/internal/parallel"
	"github.com/phloem-ml/phloem/internal/tensor"
)

var seq = parallel.Config{Enabled: false}

func TestAxpyKernel(t *testing.T) {
	y := []float32{1, 1, 1}
	axpyKernel(y, []float32{2, 3, 4}, 2, seq)
	assert.Equal(t, []float32{5, 7, 9}, y)
}

func TestScalKernel(t *testing.T) {
	x := []float32{1, -2, 3}
	scalKernel(x, -2, seq)
	assert.Equal(t, []float32{-2, 4, -6}, x)
}

func TestReductionKernels(t *testing.T) {
	x := []float32{3, -4}
	assert.InDelta(t, 7, asumKernel(x), 1e-6)
	assert.InDelta(t, 5, nrm2Kernel(x), 1e-6)
	assert.InDelta(t, 32, dotKernel([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-6)
}

func TestGemmKernel(t *testing.T) {
	// [[1 2] [3 4]] @ [[5 6] [7 8]] = [[19 22] [43 50]]
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	c := make([]float32, 4)
	gemmKernel(c, a, b, 2, 2, 2, 1, 0, false, false, seq)
	assert.Equal(t, []float32{19, 22, 43, 50}, c)
}

func TestGemmKernelTransposed(t *testing.T) {
	// aT stored as [[1 3] [2 4]]: op(a) = [[1 2] [3 4]].
	a := []float32{1, 3, 2, 4}
	// bT stored as [[5 7] [6 8]]: op(b) = [[5 6] [7 8]].
	b := []float32{5, 7, 6, 8}
	c := make([]float32, 4)
	gemmKernel(c, a, b, 2, 2, 2, 1, 0, true, true, seq)
	assert.Equal(t, []float32{19, 22, 43, 50}, c)
}

func TestGemmKernelAlphaBeta(t *testing.T) {
	a := []float32{1, 0, 0, 1} // identity
	b := []float32{1, 2, 3, 4}
	c := []float32{10, 10, 10, 10}
	gemmKernel(c, a, b, 2, 2, 2, 2, 0.5, false, false, seq)
	assert.Equal(t, []float32{7, 9, 11, 13}, c)
}

func TestGemmRectangular(t *testing.T) {
	// 2x3 @ 3x1 -> 2x1
	a := []float32{1, 2, 3, 4, 5, 6}
	b := []float32{1, 1, 1}
	c := make([]float32, 2)
	gemmKernel(c, a, b, 2, 1, 3, 1, 0, false, false, seq)
	assert.Equal(t, []float32{6, 15}, c)
}

func TestGemmShapeValidation(t *testing.T) {
	operand := func(shape tensor.Shape) ext.Operand {
		return ext.Operand{Shape: shape, DType: tensor.Float32}
	}

	vc := &vectorCall{
		inputs:  [][]float32{make([]float32, 6), make([]float32, 6)},
		outputs: [][]float32{make([]float32, 4)},
		in:      []ext.Operand{operand(tensor.Shape{2, 3}), operand(tensor.Shape{2, 3})},
		out:     []ext.Operand{operand(tensor.Shape{2, 2})},
		params:  GemmParams{Alpha: 1},
	}
	err := runGemm(seq)(vc)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch, "inner dimensions disagree")

	// Transposing b fixes the inner dimension: [2,3] @ [3,2] -> [2,2].
	vc.params = GemmParams{Alpha: 1, TransB: true}
	assert.NoError(t, runGemm(seq)(vc))
}

func TestVectorLengthValidation(t *testing.T) {
	vc := &vectorCall{
		inputs:  [][]float32{{1, 2}},
		outputs: [][]float32{{1, 2, 3}},
		in:      []ext.Operand{{Shape: tensor.Shape{2}, DType: tensor.Float32}},
		out:     []ext.Operand{{Shape: tensor.Shape{3}, DType: tensor.Float32}},
		params:  AxpyParams{Alpha: 1},
	}
	err := runAxpy(seq)(vc)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestScalarOutputValidation(t *testing.T) {
	vc := &vectorCall{
		inputs:  [][]float32{{1, 2}, {3, 4}},
		outputs: [][]float32{{0, 0}},
		in: []ext.Operand{
			{Shape: tensor.Shape{2}, DType: tensor.Float32},
			{Shape: tensor.Shape{2}, DType: tensor.Float32},
		},
		out: []ext.Operand{{Shape: tensor.Shape{2}, DType: tensor.Float32}},
	}
	err := runDot(vc)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestDTypeValidation(t *testing.T) {
	vc := &vectorCall{
		inputs:  [][]float32{{1}},
		outputs: [][]float32{{0}},
		in:      []ext.Operand{{Shape: tensor.Shape{1}, DType: tensor.Int32}},
		out:     []ext.Operand{{Shape: tensor.Shape{1}, DType: tensor.Float32}},
	}
	err := runAsum(vc)
	require.Error(t, err)
}

func TestNilParamsMeanIdentityScaling(t *testing.T) {
	vc := &vectorCall{
		inputs:  [][]float32{{2, 3}},
		outputs: [][]float32{{1, 1}},
		in:      []ext.Operand{{Shape: tensor.Shape{2}, DType: tensor.Float32}},
		out:     []ext.Operand{{Shape: tensor.Shape{2}, DType: tensor.Float32}},
	}
	require.NoError(t, runAxpy(seq)(vc))
	assert.Equal(t, []float32{3, 4}, vc.outputs[0], "alpha defaults to 1")

	sc := &vectorCall{
		outputs: [][]float32{{5, 6}},
		out:     []ext.Operand{{Shape: tensor.Shape{2}, DType: tensor.Float32}},
	}
	require.NoError(t, runScal(seq)(sc))
	assert.Equal(t, []float32{5, 6}, sc.outputs[0], "alpha defaults to 1")
}

func TestWrongTypedParamsRejected(t *testing.T) {
	vc := &vectorCall{
		inputs:  [][]float32{{2, 3}},
		outputs: [][]float32{{1, 1}},
		in:      []ext.Operand{{Shape: tensor.Shape{2}, DType: tensor.Float32}},
		out:     []ext.Operand{{Shape: tensor.Shape{2}, DType: tensor.Float32}},
		params:  ScalParams{Alpha: 2},
	}
	err := runAxpy(seq)(vc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blas.AxpyParams")
	assert.Equal(t, []float32{1, 1}, vc.outputs[0], "output untouched on rejection")

	operand := func(shape tensor.Shape) ext.Operand {
		return ext.Operand{Shape: shape, DType: tensor.Float32}
	}
	gemm := &vectorCall{
		inputs:  [][]float32{make([]float32, 4), make([]float32, 4)},
		outputs: [][]float32{make([]float32, 4)},
		in:      []ext.Operand{operand(tensor.Shape{2, 2}), operand(tensor.Shape{2, 2})},
		out:     []ext.Operand{operand(tensor.Shape{2, 2})},
		params:  AxpyParams{Alpha: 1},
	}
	err = runGemm(seq)(gemm)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blas.GemmParams")
}

func TestPackageTable(t *testing.T) {
	p := New()
	assert.Len(t, p.Operations(), 6)
	assert.True(t, p.Accumulating[OpAxpy])
	assert.True(t, p.Accumulating[OpScal])
	assert.True(t, p.Accumulating[OpGemm])
	assert.False(t, p.Accumulating[OpDot])
}
