package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

func newKafkaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	return config
}

// KafkaConsumer joins a consumer group on one topic. Ack marks the message
// offset for commit.
type KafkaConsumer struct {
	group   sarama.ConsumerGroup
	cancel  context.CancelFunc
	done    chan struct{}
	handler *claimHandler
	logger  *slog.Logger
}

func NewKafkaConsumer(ctx context.Context, brokers []string, groupID, topic string, logger *slog.Logger) (*KafkaConsumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, newKafkaConfig())
	if err != nil {
		return nil, err
	}
	return newKafkaConsumer(ctx, group, topic, logger), nil
}

func newKafkaConsumer(ctx context.Context, group sarama.ConsumerGroup, topic string, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	consumeCtx, cancel := context.WithCancel(ctx)
	c := &KafkaConsumer{
		group:   group,
		cancel:  cancel,
		done:    make(chan struct{}),
		handler: &claimHandler{ctx: consumeCtx, deliveries: make(chan *Delivery)},
		logger:  logger,
	}
	go c.consume(consumeCtx, topic)
	return c
}

// consume re-joins the group after every rebalance until ctx is cancelled.
func (c *KafkaConsumer) consume(ctx context.Context, topic string) {
	defer close(c.done)
	for ctx.Err() == nil {
		err := c.group.Consume(ctx, []string{topic}, c.handler)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, sarama.ErrClosedConsumerGroup)) {
			return
		}
		if err != nil {
			c.logger.Error("kafka consumer exited unexpectedly", "topic", topic, "err", err)
			if wait(ctx, time.Second) != nil {
				return
			}
			continue
		}
		if wait(ctx, 250*time.Millisecond) != nil {
			return
		}
	}
}

func (c *KafkaConsumer) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	case d := <-c.handler.deliveries:
		return d, nil
	}
}

func (c *KafkaConsumer) Close() error {
	c.cancel()
	err := c.group.Close()
	<-c.done
	return err
}

// claimHandler implements sarama.ConsumerGroupHandler.
type claimHandler struct {
	ctx        context.Context
	deliveries chan *Delivery
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			d := NewDelivery(m.Value, func(context.Context) error {
				session.MarkMessage(m, "")
				return nil
			})
			select {
			case h.deliveries <- d:
			case <-h.ctx.Done():
				return nil
			case <-session.Context().Done():
				return nil
			}
		case <-h.ctx.Done():
			return nil
		case <-session.Context().Done():
			return nil
		}
	}
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, newKafkaConfig())
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{producer: producer}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	for {
		_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
			Topic: topic,
			Value: sarama.ByteEncoder(body),
		})
		if err != nil && errors.Is(err, sarama.ErrLeaderNotAvailable) {
			if werr := wait(ctx, 100*time.Millisecond); werr != nil {
				return werr
			}
			continue
		}
		return err
	}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
