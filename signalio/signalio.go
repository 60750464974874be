// Package signalio reads and writes the text sample format surrounding the
// transform engines and pads arbitrary-length inputs up to the next power
// of two.
package signalio

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/distfourier/distfourier/fourier"
)

// ReadSignal parses whitespace-separated real or complex literals from path
// until end-of-file and zero-pads the result to the next power of two.
func ReadSignal(path string) ([]complex128, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &fourier.IOError{Path: path, Err: err}
	}
	defer file.Close()

	var signal []complex128
	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		sample, err := parseSample(scanner.Text())
		if err != nil {
			return nil, &fourier.IOError{Path: path, Err: err}
		}
		signal = append(signal, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, &fourier.IOError{Path: path, Err: err}
	}
	return Pad(signal), nil
}

func parseSample(text string) (complex128, error) {
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return complex(v, 0), nil
	}
	v, err := strconv.ParseComplex(text, 128)
	if err != nil {
		return 0, fmt.Errorf("invalid sample %q", text)
	}
	return v, nil
}

// Pad extends signal with zero samples up to the next power of two. Inputs
// already a power of two long (or empty) are returned unchanged.
func Pad(signal []complex128) []complex128 {
	n := len(signal)
	if n == 0 || fourier.IsPowerOfTwo(n) {
		return signal
	}
	padded := make([]complex128, fourier.NextPowerOfTwo(n))
	copy(padded, signal)
	return padded
}

// WriteSpectrum writes one fixed-point "re im" pair per line.
func WriteSpectrum(path string, data []complex128) error {
	return write(path, data, func(w *bufio.Writer, v complex128) {
		fmt.Fprintf(w, "%.6f %.6f\n", real(v), imag(v))
	})
}

// WriteSignal writes only the real component, one fixed-point value per
// line.
func WriteSignal(path string, data []complex128) error {
	return write(path, data, func(w *bufio.Writer, v complex128) {
		fmt.Fprintf(w, "%.6f\n", real(v))
	})
}

func write(path string, data []complex128, format func(*bufio.Writer, complex128)) error {
	file, err := os.Create(path)
	if err != nil {
		return &fourier.IOError{Path: path, Err: err}
	}
	w := bufio.NewWriter(file)
	for _, v := range data {
		format(w, v)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return &fourier.IOError{Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &fourier.IOError{Path: path, Err: err}
	}
	return nil
}

// Generate samples f at n evenly spaced points across [start, end].
func Generate(n int, start, end float64, f func(float64) float64) []complex128 {
	signal := make([]complex128, n)
	step := 0.0
	if n > 1 {
		step = (end - start) / float64(n-1)
	}
	for i := range signal {
		signal[i] = complex(f(start+float64(i)*step), 0)
	}
	return signal
}

// Sine returns a generator for sin(2π·freq·x).
func Sine(freq float64) func(float64) float64 {
	return func(x float64) float64 { return math.Sin(2 * math.Pi * freq * x) }
}

// Square returns a generator for a ±1 square wave of the given frequency.
func Square(freq float64) func(float64) float64 {
	return func(x float64) float64 {
		if math.Sin(2*math.Pi*freq*x) >= 0 {
			return 1
		}
		return -1
	}
}

// Impulse is 1 at x == 0 and 0 elsewhere.
func Impulse() func(float64) float64 {
	return func(x float64) float64 {
		if x == 0 {
			return 1
		}
		return 0
	}
}
