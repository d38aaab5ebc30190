package nn

import (
	"math"

	"github.com/phloem-ml/phloem/internal/parallel"
)

// Host float32 kernels shared by the native implementations and the
// software fallback. Numeric semantics must match the accelerated paths
// within floating-point tolerance.

func sigmoidKernel(dst, src []float32, cfg parallel.Config) {
	parallel.For(len(src), func(i int) {
		dst[i] = float32(1.0 / (1.0 + math.Exp(-float64(src[i]))))
	}, cfg)
}

func tanhKernel(dst, src []float32, cfg parallel.Config) {
	parallel.For(len(src), func(i int) {
		dst[i] = float32(math.Tanh(float64(src[i])))
	}, cfg)
}

func reluKernel(dst, src []float32, cfg parallel.Config) {
	parallel.For(len(src), func(i int) {
		if src[i] > 0 {
			dst[i] = src[i]
		} else {
			dst[i] = 0
		}
	}, cfg)
}

func eluKernel(dst, src []float32, alpha float32, cfg parallel.Config) {
	parallel.For(len(src), func(i int) {
		if src[i] > 0 {
			dst[i] = src[i]
		} else {
			dst[i] = alpha * float32(math.Expm1(float64(src[i])))
		}
	}, cfg)
}

// softmaxKernel computes a numerically stable softmax over each row of a
// rows×cols matrix (the last dimension of the tensor).
func softmaxKernel(dst, src []float32, rows, cols int, cfg parallel.Config) {
	parallel.For(rows, func(r int) {
		row := src[r*cols : (r+1)*cols]
		out := dst[r*cols : (r+1)*cols]

		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxVal))
			out[i] = float32(e)
			sum += e
		}
		inv := float32(1.0 / sum)
		for i := range out {
			out[i] *= inv
		}
	}, cfg)
}

// logSoftmaxKernel computes log(softmax(x)) over each row, in the stable
// x - max - log(sum(exp(x - max))) form.
func logSoftmaxKernel(dst, src []float32, rows, cols int, cfg parallel.Config) {
	parallel.For(rows, func(r int) {
		row := src[r*cols : (r+1)*cols]
		out := dst[r*cols : (r+1)*cols]

		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxVal))
		}
		logSum := float32(math.Log(sum)) + maxVal
		for i, v := range row {
			out[i] = v - logSum
		}
	}, cfg)
}
