package recursivefft

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/distfourier/distfourier/fourier"
)

// Engine is the divide-and-conquer transform: split into even and odd
// halves, transform each, combine with a single incrementally updated
// rotation factor per level. The running product accumulates rounding
// differently than the iterative engine's per-index angle, so results agree
// only to floating-point tolerance.
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
	e.output = recurse(e.input, inverse)
	if inverse {
		scale := complex(1/float64(n), 0)
		for i := range e.output {
			e.output[i] *= scale
		}
	}
	e.duration = time.Since(start)
	return nil
}

func recurse(x []complex128, inverse bool) []complex128 {
	n := len(x)
	if n == 1 {
		return []complex128{x[0]}
	}

	sign := -1.0
	if inverse {
		sign = 1.0
	}
	w := cmplx.Exp(complex(0, sign*2*math.Pi/float64(n)))

	even := make([]complex128, 0, n/2)
	odd := make([]complex128, 0, n/2)
	for i, v := range x {
		if i%2 == 0 {
			even = append(even, v)
		} else {
			odd = append(odd, v)
		}
	}

	evenY := recurse(even, inverse)
	oddY := recurse(odd, inverse)

	y := make([]complex128, n)
	wk := complex(1, 0)
	for i := 0; i < n/2; i++ {
		y[i] = evenY[i] + wk*oddY[i]
		y[i+n/2] = evenY[i] - wk*oddY[i]
		wk *= w
	}
	return y
}
