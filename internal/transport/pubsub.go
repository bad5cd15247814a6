package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
)

// pubsubMaxOutstanding bounds leased but unacknowledged messages per
// subscription. The worker acks as soon as a request is spawned, so this only
// covers messages waiting for a free slot.
const pubsubMaxOutstanding = 16

// PubSubConsumer streams one subscription. Ack acknowledges the message to
// Pub/Sub; messages still waiting for a receiver when the consumer closes are
// nacked for prompt redelivery.
type PubSubConsumer struct {
	cancel     context.CancelFunc
	done       chan struct{}
	deliveries chan *Delivery

	mu  sync.Mutex
	err error
}

func NewPubSubConsumer(ctx context.Context, client *pubsub.Client, subscription string, logger *slog.Logger) *PubSubConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	sub := client.Subscription(subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = pubsubMaxOutstanding
	sub.ReceiveSettings.NumGoroutines = 1

	rctx, cancel := context.WithCancel(ctx)
	c := &PubSubConsumer{
		cancel:     cancel,
		done:       make(chan struct{}),
		deliveries: make(chan *Delivery),
	}
	go func() {
		defer close(c.done)
		err := sub.Receive(rctx, func(mctx context.Context, m *pubsub.Message) {
			d := NewDelivery(m.Data, func(context.Context) error {
				m.Ack()
				return nil
			})
			select {
			case c.deliveries <- d:
			case <-mctx.Done():
				m.Nack()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("pubsub receive stopped", "subscription", subscription, "err", err)
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *PubSubConsumer) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-c.deliveries:
		return d, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClosed, c.err)
		}
		return nil, ErrClosed
	}
}

func (c *PubSubConsumer) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// PubSubPublisher publishes to existing topics and owns the client.
type PubSubPublisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewPubSubPublisher(client *pubsub.Client) *PubSubPublisher {
	return &PubSubPublisher{client: client, topics: map[string]*pubsub.Topic{}}
}

func (p *PubSubPublisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Publish blocks until the server has the message.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	_, err := p.topic(topic).Publish(ctx, &pubsub.Message{Data: body}).Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub publish %s: %w", topic, err)
	}
	return nil
}

func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = map[string]*pubsub.Topic{}
	p.mu.Unlock()
	return p.client.Close()
}
