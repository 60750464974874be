// Package fourier defines the contract shared by every transform engine and
// the bit-manipulation helpers the Cooley-Tukey butterfly is built on.
package fourier

import "time"

// Engine is the capability contract shared by all transform strategies.
// Load replaces the engine's owned input signal; Compute produces the
// unnormalized forward transform into the owned output buffer;
// ReverseCompute produces the inverse transform normalized by 1/N.
// LastDuration reports the wall-clock span of the most recent call and is
// side-effect free.
type Engine interface {
	Load(signal []complex128)
	Compute() error
	ReverseCompute() error
	Output() []complex128
	LastDuration() time.Duration
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns the number of doublings needed to reach n from 1.
func Log2(n int) int {
	bits := 0
	for 1<<bits < n {
		bits++
	}
	return bits
}

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n int) int {
	power := 1
	for power < n {
		power <<= 1
	}
	return power
}

// ReverseBits returns i with its low `bits` bits in reverse order.
func ReverseBits(i, bits int) int {
	j := 0
	for bit := 0; bit < bits; bit++ {
		if i&(1<<bit) != 0 {
			j |= 1 << (bits - 1 - bit)
		}
	}
	return j
}

// BitReverseIndices builds the full bit-reversal permutation table for a
// power-of-two n.
func BitReverseIndices(n int) []int {
	bits := Log2(n)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = ReverseBits(i, bits)
	}
	return indices
}
