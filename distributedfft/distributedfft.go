// Package distributedfft computes the Cooley-Tukey transform across a fixed
// world of ranks with private memory, combining message passing between
// ranks with worker-goroutine parallelism inside each rank. The signal is
// bit-reverse permuted on the coordinator, scattered in contiguous
// partitions, transformed stage by stage — locally while a butterfly span
// fits one partition, via pairwise buffer exchange once it straddles
// partitions — and gathered back onto the coordinator.
package distributedfft

import (
	"math"
	"math/cmplx"
	"runtime"
	"sync"
	"time"

	"github.com/distfourier/distfourier/fourier"
)

// Coordinator is the rank owning global I/O, the permutation, and final
// normalization.
const Coordinator = 0

// ProcessContext identifies one rank inside a fixed world of cooperating
// processes.
type ProcessContext struct {
	Rank int
	Size int
	Comm Communicator
}

// Config controls per-rank execution.
type Config struct {
	Workers int // worker goroutines per rank; defaults to runtime.NumCPU()
}

// Engine is the per-rank engine. Every rank in the world constructs one
// over its communicator and calls Compute or ReverseCompute collectively;
// only the coordinator loads input and observes output and duration.
type Engine struct {
	ctx      ProcessContext
	workers  int
	input    []complex128
	local    []complex128
	scratch  []complex128
	output   []complex128
	duration time.Duration
}

func New(comm Communicator, config Config) *Engine {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	return &Engine{
		ctx:     ProcessContext{Rank: comm.Rank(), Size: comm.Size(), Comm: comm},
		workers: config.Workers,
	}
}

// Load replaces the owned input signal with a copy of signal. Only the
// coordinator's input participates in the transform.
func (e *Engine) Load(signal []complex128) {
	e.input = append(e.input[:0:0], signal...)
}

func (e *Engine) Compute() error {
	return e.transform(false)
}

func (e *Engine) ReverseCompute() error {
	return e.transform(true)
}

// Output returns the gathered result; non-coordinator ranks return nil.
func (e *Engine) Output() []complex128 {
	return e.output
}

// LastDuration reports the span of the most recent call, measured on the
// coordinator from size agreement through collection. Other ranks report
// zero.
func (e *Engine) LastDuration() time.Duration {
	return e.duration
}

func (e *Engine) transform(inverse bool) error {
	comm := e.ctx.Comm
	start := time.Now()

	// Size agreement. Every rank validates the same broadcast n, so a
	// precondition violation aborts consistently everywhere with no
	// further communication.
	n := 0
	if e.ctx.Rank == Coordinator {
		n = len(e.input)
	}
	if err := comm.Broadcast(Coordinator, &n); err != nil {
		return err
	}
	if n == 0 {
		e.output = nil
		e.duration = 0
		return nil
	}
	if !fourier.IsPowerOfTwo(n) {
		return &fourier.SizeError{N: n, Ranks: e.ctx.Size, Reason: "is not a power of two"}
	}
	if n%e.ctx.Size != 0 {
		return &fourier.SizeError{N: n, Ranks: e.ctx.Size, Reason: "does not divide evenly across ranks"}
	}
	chunk := n / e.ctx.Size

	// Permutation, coordinator only. The permutation is a bijection, so
	// worker goroutines write disjoint destinations.
	var permuted []complex128
	if e.ctx.Rank == Coordinator {
		permuted = e.permute(n)
	}

	// Distribution.
	if len(e.local) != chunk {
		e.local = make([]complex128, chunk)
	}
	if err := comm.Scatter(Coordinator, permuted, e.local); err != nil {
		return err
	}

	// Staged butterflies. Stages are strictly ordered across the world:
	// stage k+1 reads every element stage k wrote.
	for length := 2; length <= n; length <<= 1 {
		if length <= chunk {
			e.localStage(length, inverse)
		} else if err := e.crossStage(length, chunk, inverse); err != nil {
			return err
		}
	}

	// Collection, in partition order.
	if e.ctx.Rank == Coordinator {
		if len(e.output) != n {
			e.output = make([]complex128, n)
		}
	} else {
		e.output = nil
	}
	if err := comm.Gather(Coordinator, e.local, e.output); err != nil {
		return err
	}

	if e.ctx.Rank != Coordinator {
		e.duration = 0
		return nil
	}
	if inverse {
		e.normalize(n)
	}
	e.duration = time.Since(start)
	return nil
}

func (e *Engine) permute(n int) []complex128 {
	bits := fourier.Log2(n)
	out := make([]complex128, n)
	e.parallelFor(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[fourier.ReverseBits(i, bits)] = e.input[i]
		}
	})
	return out
}

// localStage applies one butterfly stage entirely inside this rank's
// partition. With many blocks the workers split the block range; with few
// wide blocks they split the flattened (block, pair) range instead. Both
// paths derive every rotation factor directly from its angle, so the split
// choice never changes the result.
func (e *Engine) localStage(length int, inverse bool) {
	half := length / 2
	theta := -2 * math.Pi / float64(length)
	if inverse {
		theta = -theta
	}

	blocks := len(e.local) / length
	if blocks >= e.workers {
		e.parallelFor(blocks, func(lo, hi int) {
			for b := lo; b < hi; b++ {
				base := b * length
				for j := 0; j < half; j++ {
					e.butterfly(base+j, base+j+half, theta*float64(j))
				}
			}
		})
		return
	}

	e.parallelFor(blocks*half, func(lo, hi int) {
		for t := lo; t < hi; t++ {
			base := (t / half) * length
			j := t % half
			e.butterfly(base+j, base+j+half, theta*float64(j))
		}
	})
}

func (e *Engine) butterfly(low, high int, angle float64) {
	w := cmplx.Exp(complex(0, angle))
	u := e.local[low]
	v := w * e.local[high]
	e.local[low] = u + v
	e.local[high] = u - v
}

// crossStage handles length > chunk: the two operand halves of every
// butterfly live in different ranks. The partner comes from flipping the
// rank bit addressing the half-span group; after a full-buffer exchange the
// rank bit also decides the role, lower or upper half. Rotation factors
// come from each element's global index — separate ranks cannot share a
// running accumulator.
func (e *Engine) crossStage(length, chunk int, inverse bool) error {
	half := length / 2
	group := half / chunk
	partner := e.ctx.Rank ^ group

	if len(e.scratch) != chunk {
		e.scratch = make([]complex128, chunk)
	}
	if err := e.ctx.Comm.Exchange(partner, e.local, e.scratch); err != nil {
		return err
	}

	upper := e.ctx.Rank&group != 0
	base := e.ctx.Rank * chunk
	theta := -2 * math.Pi / float64(length)
	if inverse {
		theta = -theta
	}

	e.parallelFor(chunk, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			j := (base + i) % length
			if upper {
				j -= half
			}
			w := cmplx.Exp(complex(0, theta*float64(j)))
			if upper {
				e.local[i] = e.scratch[i] - w*e.local[i]
			} else {
				e.local[i] = e.local[i] + w*e.scratch[i]
			}
		}
	})
	return nil
}

func (e *Engine) normalize(n int) {
	scale := complex(1/float64(n), 0)
	e.parallelFor(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			e.output[i] *= scale
		}
	})
}

// parallelFor splits [0, n) across the rank's workers in contiguous
// chunks. Bodies operate on disjoint index ranges and need no locking.
func (e *Engine) parallelFor(n int, body func(lo, hi int)) {
	workers := min(e.workers, n)
	if workers <= 1 {
		body(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			body(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// Cluster runs the engine across in-process ranks over the channel
// communicator. It satisfies fourier.Engine so the driver can treat it
// like the single-process engines.
type Cluster struct {
	ranks    int
	workers  int
	input    []complex128
	output   []complex128
	duration time.Duration
}

// ClusterConfig controls the in-process world.
type ClusterConfig struct {
	Ranks   int // defaults to 4
	Workers int // per rank; defaults to runtime.NumCPU()
}

func NewCluster(config ClusterConfig) *Cluster {
	if config.Ranks <= 0 {
		config.Ranks = 4
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	return &Cluster{ranks: config.Ranks, workers: config.Workers}
}

// Load replaces the owned input signal with a copy of signal.
func (c *Cluster) Load(signal []complex128) {
	c.input = append(c.input[:0:0], signal...)
}

func (c *Cluster) Compute() error {
	return c.run(false)
}

func (c *Cluster) ReverseCompute() error {
	return c.run(true)
}

func (c *Cluster) Output() []complex128 {
	return c.output
}

func (c *Cluster) LastDuration() time.Duration {
	return c.duration
}

func (c *Cluster) run(inverse bool) error {
	comms := NewChannelWorld(c.ranks)
	engines := make([]*Engine, c.ranks)
	for rank := range engines {
		engines[rank] = New(comms[rank], Config{Workers: c.workers})
	}
	engines[Coordinator].Load(c.input)

	errs := make([]error, c.ranks)
	var wg sync.WaitGroup
	for rank := range engines {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if inverse {
				errs[rank] = engines[rank].ReverseCompute()
			} else {
				errs[rank] = engines[rank].Compute()
			}
		}(rank)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	c.output = engines[Coordinator].Output()
	c.duration = engines[Coordinator].LastDuration()
	return nil
}
