package blas

import (
	"math"

	"github.com/phloem-ml/phloem/internal/parallel"
)

// Host float32 kernels shared by the native implementations and the
// software fallback.

func axpyKernel(y, x []float32, alpha float32, cfg parallel.Config) {
	parallel.For(len(x), func(i int) {
		y[i] += alpha * x[i]
	}, cfg)
}

func scalKernel(x []float32, alpha float32, cfg parallel.Config) {
	parallel.For(len(x), func(i int) {
		x[i] *= alpha
	}, cfg)
}

func dotKernel(x, y []float32) float32 {
	var sum float64
	for i := range x {
		sum += float64(x[i]) * float64(y[i])
	}
	return float32(sum)
}

func asumKernel(x []float32) float32 {
	var sum float64
	for _, v := range x {
		sum += math.Abs(float64(v))
	}
	return float32(sum)
}

func nrm2Kernel(x []float32) float32 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum))
}

// gemmKernel computes c = alpha * op(a) @ op(b) + beta * c, where op is
// identity or transpose. a is m×k, b is k×n, c is m×n after transposition.
func gemmKernel(c, a, b []float32, m, n, k int, alpha, beta float32, transA, transB bool, cfg parallel.Config) {
	at := func(i, l int) float32 {
		if transA {
			return a[l*m+i]
		}
		return a[i*k+l]
	}
	bt := func(l, j int) float32 {
		if transB {
			return b[j*k+l]
		}
		return b[l*n+j]
	}
	parallel.Grid(m, n, func(i, j int) {
		var sum float64
		for l := 0; l < k; l++ {
			sum += float64(at(i, l)) * float64(bt(l, j))
		}
		c[i*n+j] = alpha*float32(sum) + beta*c[i*n+j]
	}, cfg)
}
