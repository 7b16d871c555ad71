// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"sync"
	"time"
)

// mailbox is an unbounded FIFO queue for one (src, dst, tag) stream.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) put(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, p)
	m.cond.Signal()
}

func (m *mailbox) take(timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var timedOut bool
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			m.mu.Lock()
			timedOut = true
			m.mu.Unlock()
			m.cond.Broadcast()
		})
		defer timer.Stop()
	}

	for len(m.queue) == 0 {
		if m.closed {
			return nil, ErrClosed
		}
		if timedOut {
			return nil, ErrTimeout
		}
		m.cond.Wait()
	}
	p := m.queue[0]
	m.queue = m.queue[1:]
	return p, nil
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

type memKey struct {
	src, dst int32
	tag      string
}

// MemMesh is an in-process mesh shared by W MemTransport endpoints. It is the
// test double of the TCP mesh and preserves the same ordering semantics.
type MemMesh struct {
	world int32

	mu    sync.Mutex
	boxes map[memKey]*mailbox

	timeout time.Duration
}

// NewMemMesh builds a mesh of world endpoints with an optional recv timeout.
func NewMemMesh(world int32, timeout time.Duration) []*MemTransport {
	mesh := &MemMesh{
		world:   world,
		boxes:   make(map[memKey]*mailbox),
		timeout: timeout,
	}
	trs := make([]*MemTransport, world)
	for i := int32(0); i < world; i++ {
		trs[i] = &MemTransport{mesh: mesh, rank: i}
	}
	return trs
}

func (m *MemMesh) box(k memKey) *mailbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[k]
	if !ok {
		b = newMailbox()
		m.boxes[k] = b
	}
	return b
}

func (m *MemMesh) closeAll() {
	m.mu.Lock()
	boxes := make([]*mailbox, 0, len(m.boxes))
	for _, b := range m.boxes {
		boxes = append(boxes, b)
	}
	m.mu.Unlock()
	for _, b := range boxes {
		b.close()
	}
}

// MemTransport is one rank's endpoint of a MemMesh.
type MemTransport struct {
	mesh *MemMesh
	rank int32
}

func (t *MemTransport) Rank() int32      { return t.rank }
func (t *MemTransport) WorldSize() int32 { return t.mesh.world }

func (t *MemTransport) Send(dst int32, tag string, p []byte) error {
	buf := make([]byte, len(p))
	copy(buf, p)
	t.mesh.box(memKey{src: t.rank, dst: dst, tag: tag}).put(buf)
	return nil
}

func (t *MemTransport) SendAsync(dst int32, tag string, p []byte) error {
	return t.Send(dst, tag, p)
}

func (t *MemTransport) Recv(src int32, tag string) ([]byte, error) {
	return t.mesh.box(memKey{src: src, dst: t.rank, tag: tag}).take(t.mesh.timeout)
}

func (t *MemTransport) Close() error {
	t.mesh.closeAll()
	return nil
}
