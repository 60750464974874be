package distributedfft

import (
	"errors"
	"math/cmplx"
	"math/rand"
	"sync"
	"testing"

	gfourier "gonum.org/v1/gonum/dsp/fourier"

	"github.com/distfourier/distfourier/fourier"
	"github.com/distfourier/distfourier/iterativefft"
)

func randomSignal(n int, seed int64) []complex128 {
	rng := rand.New(rand.NewSource(seed))
	signal := make([]complex128, n)
	for i := range signal {
		signal[i] = complex(rng.Float64()*2-1, rng.Float64()*2-1)
	}
	return signal
}

func assertClose(t *testing.T, got, want []complex128, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if cmplx.Abs(got[i]-want[i]) > tol {
			t.Fatalf("element %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func iterativeReference(t *testing.T, signal []complex128) []complex128 {
	t.Helper()
	e := iterativefft.New()
	e.Load(signal)
	if err := e.Compute(); err != nil {
		t.Fatalf("reference Compute failed: %v", err)
	}
	return e.Output()
}

func TestClusterMatchesIterative(t *testing.T) {
	signal := randomSignal(64, 1)
	want := iterativeReference(t, signal)

	for _, ranks := range []int{1, 2, 4, 8} {
		cluster := NewCluster(ClusterConfig{Ranks: ranks, Workers: 2})
		cluster.Load(signal)
		if err := cluster.Compute(); err != nil {
			t.Fatalf("ranks=%d: Compute failed: %v", ranks, err)
		}
		assertClose(t, cluster.Output(), want, 1e-8)
	}
}

// Two ranks over eight samples drive both decision branches in one call:
// stages of length 2 and 4 stay inside each partition of 4, the final
// stage of length 8 straddles partitions and exchanges buffers.
func TestTwoRanksEightSamples(t *testing.T) {
	signal := randomSignal(8, 2)
	want := iterativeReference(t, signal)

	cluster := NewCluster(ClusterConfig{Ranks: 2, Workers: 2})
	cluster.Load(signal)
	if err := cluster.Compute(); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	assertClose(t, cluster.Output(), want, 1e-9)
}

func TestImpulseHasFlatSpectrum(t *testing.T) {
	cluster := NewCluster(ClusterConfig{Ranks: 2, Workers: 1})
	cluster.Load([]complex128{1, 0, 0, 0})
	if err := cluster.Compute(); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	assertClose(t, cluster.Output(), []complex128{1, 1, 1, 1}, 1e-9)
}

func TestConstantConcentratesInBinZero(t *testing.T) {
	cluster := NewCluster(ClusterConfig{Ranks: 4, Workers: 1})
	cluster.Load([]complex128{1, 1, 1, 1})
	if err := cluster.Compute(); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	assertClose(t, cluster.Output(), []complex128{4, 0, 0, 0}, 1e-9)
}

func TestRoundTrip(t *testing.T) {
	signal := randomSignal(128, 3)
	cluster := NewCluster(ClusterConfig{Ranks: 4, Workers: 2})
	cluster.Load(signal)
	if err := cluster.Compute(); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	cluster.Load(cluster.Output())
	if err := cluster.ReverseCompute(); err != nil {
		t.Fatalf("ReverseCompute failed: %v", err)
	}
	assertClose(t, cluster.Output(), signal, 1e-9)
}

func TestMatchesGonum(t *testing.T) {
	signal := randomSignal(256, 4)
	cluster := NewCluster(ClusterConfig{Ranks: 4, Workers: 2})
	cluster.Load(signal)
	if err := cluster.Compute(); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	want := gfourier.NewCmplxFFT(len(signal)).Coefficients(nil, signal)
	assertClose(t, cluster.Output(), want, 1e-8)
}

func TestRepeatedComputeIsIdempotent(t *testing.T) {
	cluster := NewCluster(ClusterConfig{Ranks: 4, Workers: 2})
	cluster.Load(randomSignal(64, 5))
	if err := cluster.Compute(); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	first := append([]complex128(nil), cluster.Output()...)
	if err := cluster.Compute(); err != nil {
		t.Fatalf("second Compute failed: %v", err)
	}
	assertClose(t, cluster.Output(), first, 0)
}

func TestSingleElement(t *testing.T) {
	cluster := NewCluster(ClusterConfig{Ranks: 1, Workers: 1})
	cluster.Load([]complex128{complex(3, 4)})
	if err := cluster.Compute(); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	assertClose(t, cluster.Output(), []complex128{complex(3, 4)}, 1e-12)
}

func TestEmptyInputIsNoOp(t *testing.T) {
	cluster := NewCluster(ClusterConfig{Ranks: 4, Workers: 1})
	cluster.Load(nil)
	if err := cluster.Compute(); err != nil {
		t.Fatalf("Compute on empty input should succeed, got %v", err)
	}
	if len(cluster.Output()) != 0 {
		t.Errorf("expected empty output, got %d elements", len(cluster.Output()))
	}
}

func TestSizeErrors(t *testing.T) {
	cases := []struct {
		name  string
		ranks int
		n     int
	}{
		{"non power of two", 2, 6},
		{"more ranks than samples", 8, 4},
		{"indivisible across ranks", 3, 8},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cluster := NewCluster(ClusterConfig{Ranks: c.ranks, Workers: 1})
			cluster.Load(randomSignal(c.n, 6))
			var sizeErr *fourier.SizeError
			if err := cluster.Compute(); !errors.As(err, &sizeErr) {
				t.Fatalf("expected SizeError, got %v", err)
			}
		})
	}
}

// Duration is only meaningful on the rank that spans the whole measured
// sequence.
func TestDurationOnlyOnCoordinator(t *testing.T) {
	comms := NewChannelWorld(2)
	engines := []*Engine{
		New(comms[0], Config{Workers: 1}),
		New(comms[1], Config{Workers: 1}),
	}
	engines[Coordinator].Load(randomSignal(16, 7))

	var wg sync.WaitGroup
	errs := make([]error, len(engines))
	for rank := range engines {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = engines[rank].Compute()
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d failed: %v", rank, err)
		}
	}

	if engines[Coordinator].LastDuration() <= 0 {
		t.Error("coordinator should record a positive duration")
	}
	if engines[1].LastDuration() != 0 {
		t.Errorf("worker rank should report zero duration, got %v", engines[1].LastDuration())
	}
	if engines[1].Output() != nil {
		t.Error("worker rank should not hold output")
	}
}

func TestExchangeSizeMismatch(t *testing.T) {
	comms := NewChannelWorld(2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		recv := make([]complex128, 4)
		errs[0] = comms[0].Exchange(1, make([]complex128, 4), recv)
	}()
	go func() {
		defer wg.Done()
		recv := make([]complex128, 2)
		errs[1] = comms[1].Exchange(0, make([]complex128, 2), recv)
	}()
	wg.Wait()

	var commErr *fourier.CommunicationError
	if !errors.As(errs[0], &commErr) && !errors.As(errs[1], &commErr) {
		t.Fatalf("expected CommunicationError, got %v and %v", errs[0], errs[1])
	}
}

func TestExchangeInvalidPartner(t *testing.T) {
	comms := NewChannelWorld(2)
	var commErr *fourier.CommunicationError
	if err := comms[0].Exchange(5, nil, nil); !errors.As(err, &commErr) {
		t.Fatalf("expected CommunicationError, got %v", err)
	}
}

func TestBroadcastScatterGather(t *testing.T) {
	const ranks = 4
	const chunk = 2
	comms := NewChannelWorld(ranks)
	global := randomSignal(ranks*chunk, 8)

	var wg sync.WaitGroup
	gathered := make([]complex128, ranks*chunk)
	errs := make([]error, ranks)
	for rank := 0; rank < ranks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			n := 0
			if rank == 0 {
				n = len(global)
			}
			if err := comms[rank].Broadcast(0, &n); err != nil {
				errs[rank] = err
				return
			}
			if n != len(global) {
				errs[rank] = errors.New("broadcast value mismatch")
				return
			}

			local := make([]complex128, chunk)
			var src []complex128
			if rank == 0 {
				src = global
			}
			if err := comms[rank].Scatter(0, src, local); err != nil {
				errs[rank] = err
				return
			}

			var dst []complex128
			if rank == 0 {
				dst = gathered
			}
			errs[rank] = comms[rank].Gather(0, local, dst)
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d failed: %v", rank, err)
		}
	}
	assertClose(t, gathered, global, 0)
}
