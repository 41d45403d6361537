package onnx

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// System page size. Read at startup.
var pageSize uintptr

// Allocate 'n' float32 values, aligned to a page boundary.
// onnxruntime reads the input tensor straight out of Go memory, so it pays to have it aligned.
func PageAlignedFloats(n int) []float32 {
	size := n * 4
	raw := make([]byte, size+int(pageSize))
	offset := pageSize - (uintptr(unsafe.Pointer(&raw[0])) % pageSize)
	aligned := raw[offset : int(offset)+size]
	return unsafe.Slice((*float32)(unsafe.Pointer(&aligned[0])), n)
}

// Returns the system page size
func PageSize() int {
	return int(pageSize)
}

func init() {
	pageSize = uintptr(unix.Getpagesize())
}
