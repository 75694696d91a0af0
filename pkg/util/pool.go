package util

import "runtime"

// GetOptimalPoolSize returns the number of parsers per grammar and of
// scan workers: twice the CPU count, clamped to [4, 32].
//
// Parsing runs in cgo, so more workers than cores keeps the CPUs busy
// while others cross the boundary.
func GetOptimalPoolSize() int {
	return min(max(runtime.NumCPU()*2, 4), 32)
}

// GetOptimalPoolSizeWithOverride returns override when positive and
// GetOptimalPoolSize() otherwise.
func GetOptimalPoolSizeWithOverride(override int) int {
	if override > 0 {
		return override
	}
	return GetOptimalPoolSize()
}
