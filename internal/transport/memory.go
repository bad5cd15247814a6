package transport

import (
	"context"
	"sync"
)

// Memory is an in-process broker: every topic is a buffered channel. It
// serves tests and the CLI's local mode.
type Memory struct {
	mu     sync.Mutex
	topics map[string]chan []byte
	size   int
}

func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 64
	}
	return &Memory{topics: map[string]chan []byte{}, size: buffer}
}

func (m *Memory) topic(name string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.topics[name]
	if !ok {
		ch = make(chan []byte, m.size)
		m.topics[name] = ch
	}
	return ch
}

func (m *Memory) Publish(ctx context.Context, topic string, body []byte) error {
	msg := append([]byte(nil), body...)
	select {
	case m.topic(topic) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Close() error { return nil }

// Consumer returns a consumer reading topic. Acks are no-ops.
func (m *Memory) Consumer(topic string) Consumer {
	return &memoryConsumer{ch: m.topic(topic), closed: make(chan struct{})}
}

type memoryConsumer struct {
	ch     chan []byte
	once   sync.Once
	closed chan struct{}
}

func (c *memoryConsumer) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClosed
	case body := <-c.ch:
		return NewDelivery(body, nil), nil
	}
}

func (c *memoryConsumer) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
