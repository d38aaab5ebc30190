package ext

import "unsafe"

// Float32View reinterprets host bytes as float32 elements without copying.
// Kernels use it on staged buffers and on native memory alike.
func Float32View(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, length derived from input
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4)
}
