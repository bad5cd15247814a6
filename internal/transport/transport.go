// Package transport moves WorkRequests in and ResultRecords out. Consumers
// hand out one Delivery at a time; the caller acknowledges it once it has
// taken ownership of the message.
package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Receive after the consumer has been closed.
var ErrClosed = errors.New("transport closed")

type Delivery struct {
	Body []byte

	once sync.Once
	ack  func(ctx context.Context) error
}

func NewDelivery(body []byte, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Body: body, ack: ack}
}

// Ack removes the message from the source. Only the first call has effect.
func (d *Delivery) Ack(ctx context.Context) error {
	var err error
	d.once.Do(func() {
		if d.ack != nil {
			err = d.ack(ctx)
		}
	})
	return err
}

type Consumer interface {
	// Receive blocks until a message arrives or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Close() error
}
