package fourier

import "fmt"

// SizeError reports an input length the selected engine cannot transform.
// Ranks is zero for single-process engines.
type SizeError struct {
	N      int
	Ranks  int
	Reason string
}

func (e *SizeError) Error() string {
	if e.Ranks > 0 {
		return fmt.Sprintf("fourier: input length %d %s (ranks=%d)", e.N, e.Reason, e.Ranks)
	}
	return fmt.Sprintf("fourier: input length %d %s", e.N, e.Reason)
}

// IOError reports an unreadable input or unwritable output file.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("fourier: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CommunicationError reports a failed or size-mismatched collective or
// point-to-point exchange. Fatal for the call: a partially completed
// distributed transform has no well-defined result.
type CommunicationError struct {
	Op     string
	Rank   int
	Detail string
	Err    error
}

func (e *CommunicationError) Error() string {
	msg := fmt.Sprintf("fourier: rank %d: %s failed", e.Rank, e.Op)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommunicationError) Unwrap() error { return e.Err }
