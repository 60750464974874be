package distributedfft

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/distfourier/distfourier/fourier"
)

// WSConfig describes one rank's place in a WebSocket mesh. Peers holds one
// dialable host:port per rank, indexed by rank. Listener, when set,
// overrides Peers[Rank] on the accepting side, which lets callers bind
// ephemeral ports before starting the world.
type WSConfig struct {
	Rank             int
	Size             int
	Peers            []string
	Listener         net.Listener
	HandshakeTimeout time.Duration // default 10s
}

// wsComm carries the collective contract across OS processes. Rank i dials
// every rank above it and accepts every rank below it, each dialer opening
// with an 8-byte rank handshake; afterwards every pair of ranks owns one
// full-duplex connection carrying binary frames.
type wsComm struct {
	rank   int
	size   int
	conns  []*websocket.Conn
	server *http.Server
}

type acceptedConn struct {
	rank int
	conn *websocket.Conn
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
}

// NewWebSocketComm establishes this rank's mesh connections, blocking until
// every peer is connected or the handshake deadline passes.
func NewWebSocketComm(config WSConfig) (Communicator, error) {
	if config.Size < 1 || config.Rank < 0 || config.Rank >= config.Size || len(config.Peers) != config.Size {
		return nil, &fourier.CommunicationError{Op: "handshake", Rank: config.Rank,
			Detail: "invalid mesh configuration"}
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	c := &wsComm{
		rank:  config.Rank,
		size:  config.Size,
		conns: make([]*websocket.Conn, config.Size),
	}

	// Lower ranks dial in; rank 0 has none and never listens.
	accepted := make(chan acceptedConn, config.Size)
	if config.Rank > 0 {
		listener := config.Listener
		if listener == nil {
			var err error
			listener, err = net.Listen("tcp", config.Peers[config.Rank])
			if err != nil {
				return nil, &fourier.CommunicationError{Op: "handshake", Rank: config.Rank, Err: err}
			}
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/fourier", func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			_, frame, err := conn.ReadMessage()
			if err != nil || len(frame) != 8 {
				conn.Close()
				return
			}
			accepted <- acceptedConn{rank: int(binary.LittleEndian.Uint64(frame)), conn: conn}
		})
		c.server = &http.Server{Handler: mux}
		go c.server.Serve(listener)
	}

	// Dial every higher rank. Their servers may not be up yet, so retry
	// until the deadline.
	deadline := time.Now().Add(config.HandshakeTimeout)
	for peer := config.Rank + 1; peer < config.Size; peer++ {
		conn, err := dialPeer(config.Peers[peer], config.Rank, deadline)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.conns[peer] = conn
	}

	for pending := config.Rank; pending > 0; pending-- {
		select {
		case a := <-accepted:
			if a.rank < 0 || a.rank >= config.Rank || c.conns[a.rank] != nil {
				a.conn.Close()
				c.Close()
				return nil, &fourier.CommunicationError{Op: "handshake", Rank: config.Rank,
					Detail: fmt.Sprintf("unexpected peer rank %d", a.rank)}
			}
			c.conns[a.rank] = a.conn
		case <-time.After(time.Until(deadline)):
			c.Close()
			return nil, &fourier.CommunicationError{Op: "handshake", Rank: config.Rank,
				Detail: "timed out waiting for lower ranks"}
		}
	}

	return c, nil
}

func dialPeer(addr string, rank int, deadline time.Time) (*websocket.Conn, error) {
	url := "ws://" + addr + "/fourier"
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			frame := make([]byte, 8)
			binary.LittleEndian.PutUint64(frame, uint64(rank))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				conn.Close()
				return nil, &fourier.CommunicationError{Op: "handshake", Rank: rank, Err: err}
			}
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, &fourier.CommunicationError{Op: "handshake", Rank: rank,
				Detail: addr + " unreachable", Err: err}
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (c *wsComm) Rank() int { return c.rank }

func (c *wsComm) Size() int { return c.size }

func (c *wsComm) conn(op string, peer int) (*websocket.Conn, error) {
	if peer < 0 || peer >= c.size || peer == c.rank || c.conns[peer] == nil {
		return nil, &fourier.CommunicationError{Op: op, Rank: c.rank,
			Detail: fmt.Sprintf("no connection to rank %d", peer)}
	}
	return c.conns[peer], nil
}

func (c *wsComm) sendSize(op string, peer, n int) error {
	conn, err := c.conn(op, peer)
	if err != nil {
		return err
	}
	frame := make([]byte, 8)
	binary.LittleEndian.PutUint64(frame, uint64(n))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return &fourier.CommunicationError{Op: op, Rank: c.rank, Err: err}
	}
	return nil
}

func (c *wsComm) recvSize(op string, peer int) (int, error) {
	conn, err := c.conn(op, peer)
	if err != nil {
		return 0, err
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return 0, &fourier.CommunicationError{Op: op, Rank: c.rank, Err: err}
	}
	if len(frame) != 8 {
		return 0, &fourier.CommunicationError{Op: op, Rank: c.rank,
			Detail: fmt.Sprintf("expected size frame, received %d bytes", len(frame))}
	}
	return int(binary.LittleEndian.Uint64(frame)), nil
}

func (c *wsComm) sendBuffer(op string, peer int, data []complex128) error {
	conn, err := c.conn(op, peer)
	if err != nil {
		return err
	}
	frame := make([]byte, 16*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(frame[16*i:], math.Float64bits(real(v)))
		binary.LittleEndian.PutUint64(frame[16*i+8:], math.Float64bits(imag(v)))
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return &fourier.CommunicationError{Op: op, Rank: c.rank, Err: err}
	}
	return nil
}

func (c *wsComm) recvBuffer(op string, peer int, dst []complex128) error {
	conn, err := c.conn(op, peer)
	if err != nil {
		return err
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return &fourier.CommunicationError{Op: op, Rank: c.rank, Err: err}
	}
	if len(frame) != 16*len(dst) {
		return &fourier.CommunicationError{Op: op, Rank: c.rank,
			Detail: fmt.Sprintf("expected %d samples from rank %d, received %d bytes", len(dst), peer, len(frame))}
	}
	for i := range dst {
		re := math.Float64frombits(binary.LittleEndian.Uint64(frame[16*i:]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(frame[16*i+8:]))
		dst[i] = complex(re, im)
	}
	return nil
}

func (c *wsComm) Broadcast(root int, n *int) error {
	if c.rank == root {
		for peer := 0; peer < c.size; peer++ {
			if peer == root {
				continue
			}
			if err := c.sendSize("broadcast", peer, *n); err != nil {
				return err
			}
		}
		return nil
	}
	v, err := c.recvSize("broadcast", root)
	if err != nil {
		return err
	}
	*n = v
	return nil
}

func (c *wsComm) Scatter(root int, global, local []complex128) error {
	chunk := len(local)
	if c.rank == root {
		if len(global) != chunk*c.size {
			return &fourier.CommunicationError{Op: "scatter", Rank: c.rank,
				Detail: fmt.Sprintf("global buffer of %d does not split into %d chunks of %d", len(global), c.size, chunk)}
		}
		for peer := 0; peer < c.size; peer++ {
			part := global[peer*chunk : (peer+1)*chunk]
			if peer == root {
				copy(local, part)
				continue
			}
			if err := c.sendBuffer("scatter", peer, part); err != nil {
				return err
			}
		}
		return nil
	}
	return c.recvBuffer("scatter", root, local)
}

func (c *wsComm) Gather(root int, local, global []complex128) error {
	chunk := len(local)
	if c.rank != root {
		return c.sendBuffer("gather", root, local)
	}

	if len(global) != chunk*c.size {
		return &fourier.CommunicationError{Op: "gather", Rank: c.rank,
			Detail: fmt.Sprintf("global buffer of %d does not hold %d chunks of %d", len(global), c.size, chunk)}
	}
	copy(global[root*chunk:(root+1)*chunk], local)
	for peer := 0; peer < c.size; peer++ {
		if peer == root {
			continue
		}
		if err := c.recvBuffer("gather", peer, global[peer*chunk:(peer+1)*chunk]); err != nil {
			return err
		}
	}
	return nil
}

// Exchange writes concurrently with the read: both partners send a full
// buffer before receiving one, and back-to-back blocking writes could fill
// the socket buffers in both directions at once.
func (c *wsComm) Exchange(partner int, send, recv []complex128) error {
	sent := make(chan error, 1)
	go func() {
		sent <- c.sendBuffer("exchange", partner, send)
	}()
	if err := c.recvBuffer("exchange", partner, recv); err != nil {
		<-sent
		return err
	}
	return <-sent
}

func (c *wsComm) Close() error {
	for _, conn := range c.conns {
		if conn != nil {
			conn.Close()
		}
	}
	if c.server != nil {
		c.server.Close()
	}
	return nil
}
