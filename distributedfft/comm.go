package distributedfft

import (
	"fmt"

	"github.com/distfourier/distfourier/fourier"
)

// Communicator is the collective-operation surface a rank coordinates
// through. Ranks have private memory and synchronize only through these
// calls; every rank issues the same sequence of operations, so matching is
// by program order.
type Communicator interface {
	Rank() int
	Size() int

	// Broadcast shares root's value of n with every rank.
	Broadcast(root int, n *int) error
	// Scatter splits root's global buffer into Size equal chunks and
	// delivers chunk k to rank k's local buffer.
	Scatter(root int, global, local []complex128) error
	// Gather collects every rank's local buffer into root's global buffer
	// in rank order.
	Gather(root int, local, global []complex128) error
	// Exchange swaps full local buffers with partner, blocking until both
	// directions have completed.
	Exchange(partner int, send, recv []complex128) error

	Close() error
}

type message struct {
	size int
	data []complex128
}

// channelComm is the in-process communicator: ranks are goroutines and each
// ordered pair of ranks owns a buffered channel. Payloads are copied on
// send, so a rank may mutate its buffer the moment a call returns without
// racing the partner's receive.
type channelComm struct {
	rank  int
	size  int
	pipes [][]chan message // pipes[from][to]
}

// NewChannelWorld creates communicators for size in-process ranks sharing
// one channel mesh. Index k of the returned slice is rank k's view.
func NewChannelWorld(size int) []Communicator {
	pipes := make([][]chan message, size)
	for from := range pipes {
		pipes[from] = make([]chan message, size)
		for to := range pipes[from] {
			pipes[from][to] = make(chan message, 1)
		}
	}

	comms := make([]Communicator, size)
	for rank := range comms {
		comms[rank] = &channelComm{rank: rank, size: size, pipes: pipes}
	}
	return comms
}

func (c *channelComm) Rank() int { return c.rank }

func (c *channelComm) Size() int { return c.size }

func (c *channelComm) send(to int, m message) {
	if m.data != nil {
		m.data = append([]complex128(nil), m.data...)
	}
	c.pipes[c.rank][to] <- m
}

func (c *channelComm) recv(from int) message {
	return <-c.pipes[from][c.rank]
}

func (c *channelComm) Broadcast(root int, n *int) error {
	if c.rank == root {
		for to := 0; to < c.size; to++ {
			if to == root {
				continue
			}
			c.send(to, message{size: *n})
		}
		return nil
	}
	*n = c.recv(root).size
	return nil
}

func (c *channelComm) Scatter(root int, global, local []complex128) error {
	chunk := len(local)
	if c.rank == root {
		if len(global) != chunk*c.size {
			return &fourier.CommunicationError{Op: "scatter", Rank: c.rank,
				Detail: fmt.Sprintf("global buffer of %d does not split into %d chunks of %d", len(global), c.size, chunk)}
		}
		for to := 0; to < c.size; to++ {
			part := global[to*chunk : (to+1)*chunk]
			if to == root {
				copy(local, part)
				continue
			}
			c.send(to, message{data: part})
		}
		return nil
	}

	m := c.recv(root)
	if len(m.data) != chunk {
		return &fourier.CommunicationError{Op: "scatter", Rank: c.rank,
			Detail: fmt.Sprintf("expected %d samples, received %d", chunk, len(m.data))}
	}
	copy(local, m.data)
	return nil
}

func (c *channelComm) Gather(root int, local, global []complex128) error {
	chunk := len(local)
	if c.rank != root {
		c.send(root, message{data: local})
		return nil
	}

	if len(global) != chunk*c.size {
		return &fourier.CommunicationError{Op: "gather", Rank: c.rank,
			Detail: fmt.Sprintf("global buffer of %d does not hold %d chunks of %d", len(global), c.size, chunk)}
	}
	copy(global[root*chunk:(root+1)*chunk], local)
	for from := 0; from < c.size; from++ {
		if from == root {
			continue
		}
		m := c.recv(from)
		if len(m.data) != chunk {
			return &fourier.CommunicationError{Op: "gather", Rank: c.rank,
				Detail: fmt.Sprintf("expected %d samples from rank %d, received %d", chunk, from, len(m.data))}
		}
		copy(global[from*chunk:(from+1)*chunk], m.data)
	}
	return nil
}

func (c *channelComm) Exchange(partner int, send, recv []complex128) error {
	if partner < 0 || partner >= c.size || partner == c.rank {
		return &fourier.CommunicationError{Op: "exchange", Rank: c.rank,
			Detail: fmt.Sprintf("invalid partner rank %d", partner)}
	}
	c.send(partner, message{data: send})
	m := c.recv(partner)
	if len(m.data) != len(recv) {
		return &fourier.CommunicationError{Op: "exchange", Rank: c.rank,
			Detail: fmt.Sprintf("expected %d samples from rank %d, received %d", len(recv), partner, len(m.data))}
	}
	copy(recv, m.data)
	return nil
}

func (c *channelComm) Close() error { return nil }
