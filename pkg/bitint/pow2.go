// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size the
zero-padded FFT buffers of the pitch estimator.

A linear (non-circular) autocorrelation of an N-sample window up to lag L
needs a transform of at least N+L points. Rounding that up to a power of
two keeps the FFT on its fastest radix-2 path:

	fftLen := bitint.NextPowerOfTwo(window + maxLag) // 1024+512 -> 2048

Both functions are branch-light, allocation free and safe to call from the
audio callback.

----------------------------------------------------------------------

NextPowerOfTwo works on size-1 so that exact powers of two are preserved:

	size = 8:  bits.Len(7)  = 3, 1<<3 = 8
	size = 9:  bits.Len(8)  = 4, 1<<4 = 16

Without the subtraction every power of two would be doubled.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Zero and negative sizes return 1.
//
//	Input  Output
//	1536   2048
//	1024   1024
//	3      4
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
// n&(n-1) clears the lowest set bit, so it is zero only when a single
// bit is set.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
