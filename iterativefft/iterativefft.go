package iterativefft

import (
	"math"
	"time"

	"github.com/distfourier/distfourier/fourier"
)

// Engine is the in-place iterative Cooley-Tukey transform: bit-reversal
// permutation followed by butterfly stages of doubling length. Purely
// sequential; it is the ground truth the other engines are compared
// against.
type Engine struct {
	input    []complex128
	output   []complex128
	duration time.Duration
}

func New() *Engine {
	return &Engine{}
}

// Load replaces the owned input signal with a copy of signal.
func (e *Engine) Load(signal []complex128) {
	e.input = append(e.input[:0:0], signal...)
}

func (e *Engine) Compute() error {
	return e.transform(false)
}

func (e *Engine) ReverseCompute() error {
	return e.transform(true)
}

func (e *Engine) Output() []complex128 {
	return e.output
}

func (e *Engine) LastDuration() time.Duration {
	return e.duration
}

func (e *Engine) transform(inverse bool) error {
	n := len(e.input)
	if n == 0 {
		e.output = nil
		e.duration = 0
		return nil
	}
	if !fourier.IsPowerOfTwo(n) {
		return &fourier.SizeError{N: n, Reason: "is not a power of two"}
	}

	start := time.Now()
	bits := fourier.Log2(n)
	if len(e.output) != n {
		e.output = make([]complex128, n)
	}
	for i := 0; i < n; i++ {
		e.output[fourier.ReverseBits(i, bits)] = e.input[i]
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		if inverse {
			angle = -angle
		}
		wlen := complex(math.Cos(angle), math.Sin(angle))
		for block := 0; block < n; block += length {
			w := complex(1, 0)
			for j := 0; j < length/2; j++ {
				u := e.output[block+j]
				v := e.output[block+j+length/2] * w
				e.output[block+j] = u + v
				e.output[block+j+length/2] = u - v
				w *= wlen
			}
		}
	}

	if inverse {
		scale := complex(1/float64(n), 0)
		for i := range e.output {
			e.output[i] *= scale
		}
	}

	e.duration = time.Since(start)
	return nil
}
