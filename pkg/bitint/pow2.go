// SPDX-License-Identifier: MIT
//
// Package bitint sizes FFT buffers. Every function is branch-light,
// allocation-free and safe to call from the audio path.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= n, and 1 for n <= 1.
//
// Taking the bit length of n-1 keeps exact powers unchanged: 8-1 = 0b111
// has length 3, so 1<<3 = 8.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

