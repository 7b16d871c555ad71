// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// maxFrameSize bounds a single message; handshake envelopes are tiny but
	// share exchanges scale with the dataset.
	maxFrameSize = 1 << 30

	defaultDialTimeout = 30 * time.Second
	dialRetryInterval  = 200 * time.Millisecond
)

// Config describes one endpoint of the TCP mesh.
type Config struct {
	// Parties lists host:port per rank; len(Parties) is the world size.
	Parties []string
	// Rank is the local rank; the endpoint listens on Parties[Rank].
	Rank int32
	// RecvTimeout bounds every Recv; zero means wait forever.
	RecvTimeout time.Duration
	// DialTimeout bounds the mesh connect phase.
	DialTimeout time.Duration

	Log        log.Logger
	Registerer prometheus.Registerer
}

type tcpMetrics struct {
	msgsSent  prometheus.Counter
	msgsRecvd prometheus.Counter
	bytesSent prometheus.Counter
	bytesRecv prometheus.Counter
}

func newTCPMetrics(reg prometheus.Registerer) (*tcpMetrics, error) {
	m := &tcpMetrics{
		msgsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "interconnect",
			Name:      "transport_msgs_sent",
			Help:      "Messages written to the mesh",
		}),
		msgsRecvd: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "interconnect",
			Name:      "transport_msgs_received",
			Help:      "Messages read from the mesh",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "interconnect",
			Name:      "transport_bytes_sent",
			Help:      "Payload bytes written to the mesh",
		}),
		bytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "interconnect",
			Name:      "transport_bytes_received",
			Help:      "Payload bytes read from the mesh",
		}),
	}
	for _, c := range []prometheus.Collector{m.msgsSent, m.msgsRecvd, m.bytesSent, m.bytesRecv} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type writeReq struct {
	frame []byte
	done  chan error
}

// peerConn serializes all writes to one peer through a single goroutine so
// Send and SendAsync cannot reorder against each other.
type peerConn struct {
	conn  net.Conn
	queue chan writeReq
}

func (p *peerConn) run() {
	for req := range p.queue {
		_, err := p.conn.Write(req.frame)
		if req.done != nil {
			req.done <- err
		}
	}
}

// TCPTransport is a rank-addressed mesh over plain TCP with length-delimited
// frames. Mesh connect runs in New: every rank listens on its own address,
// dials every lower rank, and accepts every higher rank.
type TCPTransport struct {
	cfg     Config
	world   int32
	ln      net.Listener
	peers   []*peerConn
	metrics *tcpMetrics

	mu    sync.Mutex
	boxes map[memKey]*mailbox

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New builds the endpoint and completes the mesh connect handshake.
func New(cfg Config) (*TCPTransport, error) {
	world := int32(len(cfg.Parties))
	if world < 2 {
		return nil, fmt.Errorf("transport: world size %d, need >= 2", world)
	}
	if cfg.Rank < 0 || cfg.Rank >= world {
		return nil, fmt.Errorf("transport: rank %d out of range [0, %d)", cfg.Rank, world)
	}
	if cfg.Log == nil {
		cfg.Log = log.NewNoOpLogger()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}

	metrics, err := newTCPMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("transport: register metrics: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Parties[cfg.Rank])
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", cfg.Parties[cfg.Rank], err)
	}

	t := &TCPTransport{
		cfg:     cfg,
		world:   world,
		ln:      ln,
		peers:   make([]*peerConn, world),
		metrics: metrics,
		boxes:   make(map[memKey]*mailbox),
	}

	if err := t.connectMesh(); err != nil {
		_ = t.Close()
		return nil, err
	}

	for rank, p := range t.peers {
		if p == nil {
			continue
		}
		go p.run()
		go t.readLoop(int32(rank), p.conn)
	}

	cfg.Log.Info("mesh connected",
		zap.Int32("rank", cfg.Rank),
		zap.Int32("worldSize", world),
	)
	return t, nil
}

func (t *TCPTransport) connectMesh() error {
	type accepted struct {
		rank int32
		conn net.Conn
		err  error
	}

	expectAccepts := int(t.world - 1 - t.cfg.Rank)
	acceptCh := make(chan accepted, expectAccepts)
	for i := 0; i < expectAccepts; i++ {
		go func() {
			conn, err := t.ln.Accept()
			if err != nil {
				acceptCh <- accepted{err: err}
				return
			}
			var hello [4]byte
			if _, err := io.ReadFull(conn, hello[:]); err != nil {
				_ = conn.Close()
				acceptCh <- accepted{err: err}
				return
			}
			acceptCh <- accepted{rank: int32(binary.BigEndian.Uint32(hello[:])), conn: conn}
		}()
	}

	// Dial every lower rank, retrying until its listener is up.
	for dst := int32(0); dst < t.cfg.Rank; dst++ {
		conn, err := t.dial(t.cfg.Parties[dst])
		if err != nil {
			return fmt.Errorf("transport: dial rank %d: %w", dst, err)
		}
		var hello [4]byte
		binary.BigEndian.PutUint32(hello[:], uint32(t.cfg.Rank))
		if _, err := conn.Write(hello[:]); err != nil {
			return fmt.Errorf("transport: hello to rank %d: %w", dst, err)
		}
		t.peers[dst] = &peerConn{conn: conn, queue: make(chan writeReq, 64)}
	}

	deadline := time.After(t.cfg.DialTimeout)
	for i := 0; i < expectAccepts; i++ {
		select {
		case a := <-acceptCh:
			if a.err != nil {
				return fmt.Errorf("transport: accept: %w", a.err)
			}
			if a.rank <= t.cfg.Rank || a.rank >= t.world || t.peers[a.rank] != nil {
				_ = a.conn.Close()
				return fmt.Errorf("transport: unexpected hello from rank %d", a.rank)
			}
			t.peers[a.rank] = &peerConn{conn: a.conn, queue: make(chan writeReq, 64)}
		case <-deadline:
			return fmt.Errorf("transport: mesh connect timed out after %s", t.cfg.DialTimeout)
		}
	}
	return nil
}

func (t *TCPTransport) dial(addr string) (net.Conn, error) {
	deadline := time.Now().Add(t.cfg.DialTimeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, t.cfg.DialTimeout)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(dialRetryInterval)
	}
}

func (t *TCPTransport) box(k memKey) *mailbox {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.boxes[k]
	if !ok {
		b = newMailbox()
		t.boxes[k] = b
	}
	return b
}

func (t *TCPTransport) readLoop(src int32, conn net.Conn) {
	for {
		tag, payload, err := readFrame(conn)
		if err != nil {
			t.cfg.Log.Debug("read loop done",
				zap.Int32("src", src),
				zap.Error(err),
			)
			t.mu.Lock()
			boxes := make([]*mailbox, 0, len(t.boxes))
			for k, b := range t.boxes {
				if k.src == src {
					boxes = append(boxes, b)
				}
			}
			t.mu.Unlock()
			for _, b := range boxes {
				b.close()
			}
			return
		}
		t.metrics.msgsRecvd.Inc()
		t.metrics.bytesRecv.Add(float64(len(payload)))
		t.box(memKey{src: src, dst: t.cfg.Rank, tag: tag}).put(payload)
	}
}

func encodeFrame(tag string, p []byte) []byte {
	frame := make([]byte, 4+2+len(tag)+len(p))
	binary.BigEndian.PutUint32(frame, uint32(2+len(tag)+len(p)))
	binary.BigEndian.PutUint16(frame[4:], uint16(len(tag)))
	copy(frame[6:], tag)
	copy(frame[6+len(tag):], p)
	return frame
}

func readFrame(r io.Reader) (string, []byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return "", nil, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if size < 2 || size > maxFrameSize {
		return "", nil, fmt.Errorf("transport: bad frame size %d", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", nil, err
	}
	tagLen := binary.BigEndian.Uint16(body)
	if int(tagLen) > len(body)-2 {
		return "", nil, fmt.Errorf("transport: bad tag length %d", tagLen)
	}
	tag := string(body[2 : 2+tagLen])
	return tag, body[2+tagLen:], nil
}

func (t *TCPTransport) Rank() int32      { return t.cfg.Rank }
func (t *TCPTransport) WorldSize() int32 { return t.world }

func (t *TCPTransport) send(dst int32, tag string, p []byte, done chan error) error {
	if dst < 0 || dst >= t.world || dst == t.cfg.Rank {
		return fmt.Errorf("transport: bad destination rank %d", dst)
	}
	if t.closed.Load() {
		return ErrClosed
	}
	peer := t.peers[dst]
	if peer == nil {
		return ErrClosed
	}
	peer.queue <- writeReq{frame: encodeFrame(tag, p), done: done}
	t.metrics.msgsSent.Inc()
	t.metrics.bytesSent.Add(float64(len(p)))
	if done == nil {
		return nil
	}
	return <-done
}

func (t *TCPTransport) Send(dst int32, tag string, p []byte) error {
	return t.send(dst, tag, p, make(chan error, 1))
}

func (t *TCPTransport) SendAsync(dst int32, tag string, p []byte) error {
	return t.send(dst, tag, p, nil)
}

func (t *TCPTransport) Recv(src int32, tag string) ([]byte, error) {
	if src < 0 || src >= t.world || src == t.cfg.Rank {
		return nil, fmt.Errorf("transport: bad source rank %d", src)
	}
	return t.box(memKey{src: src, dst: t.cfg.Rank, tag: tag}).take(t.cfg.RecvTimeout)
}

func (t *TCPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.closeErr = t.ln.Close()
		for _, p := range t.peers {
			if p != nil {
				_ = p.conn.Close()
				close(p.queue)
			}
		}
		t.mu.Lock()
		boxes := make([]*mailbox, 0, len(t.boxes))
		for _, b := range t.boxes {
			boxes = append(boxes, b)
		}
		t.mu.Unlock()
		for _, b := range boxes {
			b.close()
		}
	})
	return t.closeErr
}
