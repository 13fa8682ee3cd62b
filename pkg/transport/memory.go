package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/daviddao/clockbank/pkg/codec"
	"github.com/daviddao/clockbank/pkg/model"
)

// Memory is an in-process transport: one unbounded mailbox per process.
// Sends never block, so two processes sending to each other at the same
// time cannot deadlock.
type Memory struct {
	mu     sync.RWMutex
	boxes  map[model.ProcessID]*mailbox
	drop   DropFunc
	closed bool
}

type mailbox struct {
	mu     sync.Mutex
	queue  []envelope
	notify chan struct{}
}

// MemoryOption configures a Memory transport.
type MemoryOption func(*Memory)

// WithDrop installs a filter that discards matching messages.
func WithDrop(fn DropFunc) MemoryOption {
	return func(m *Memory) { m.drop = fn }
}

// NewMemory creates mailboxes for processes 0..n.
func NewMemory(n int, opts ...MemoryOption) *Memory {
	m := &Memory{boxes: make(map[model.ProcessID]*mailbox, n+1)}
	for id := 0; id <= n; id++ {
		m.boxes[model.ProcessID(id)] = &mailbox{notify: make(chan struct{}, 1)}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) box(id model.ProcessID) (*mailbox, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: transport closed", ErrTransport)
	}
	b, ok := m.boxes[id]
	if !ok {
		return nil, fmt.Errorf("%w: no mailbox for process %d", ErrTransport, id)
	}
	return b, nil
}

// Send encodes msg and appends it to the recipient's mailbox.
func (m *Memory) Send(ctx context.Context, from, to model.ProcessID, msg *codec.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := m.box(to)
	if err != nil {
		return err
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	if m.drop != nil && m.drop(from, to, msg.Type()) {
		return nil
	}
	b.mu.Lock()
	b.queue = append(b.queue, envelope{from: from, data: data})
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// ReceiveAny returns the oldest message in self's mailbox.
func (m *Memory) ReceiveAny(ctx context.Context, self model.ProcessID) (model.ProcessID, *codec.Message, error) {
	e, err := m.receive(ctx, self, 0, true)
	if err != nil {
		return 0, nil, err
	}
	msg, err := codec.Decode(e.data)
	return e.from, msg, err
}

// ReceiveFrom returns the oldest message from src in self's mailbox.
func (m *Memory) ReceiveFrom(ctx context.Context, self, src model.ProcessID) (*codec.Message, error) {
	e, err := m.receive(ctx, self, src, false)
	if err != nil {
		return nil, err
	}
	return codec.Decode(e.data)
}

func (m *Memory) receive(ctx context.Context, self, src model.ProcessID, anySender bool) (envelope, error) {
	b, err := m.box(self)
	if err != nil {
		return envelope{}, err
	}
	for {
		b.mu.Lock()
		e, rest, ok := popFrom(b.queue, src, anySender)
		if ok {
			b.queue = rest
		}
		b.mu.Unlock()
		if ok {
			return e, nil
		}
		select {
		case <-b.notify:
		case <-ctx.Done():
			return envelope{}, ctx.Err()
		}
	}
}

// Pending returns the number of undelivered messages queued for id.
func (m *Memory) Pending(id model.ProcessID) int {
	b, err := m.box(id)
	if err != nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close rejects further sends and receives.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Transport = (*Memory)(nil)
