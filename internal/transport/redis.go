package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultPollInterval = 250 * time.Millisecond

// ProcessingList is the list holding messages that were received but not yet
// acknowledged.
func ProcessingList(queue string) string { return queue + ":processing" }

// receiveMoveScript atomically pops the oldest message from the queue and
// parks it on the processing list.
//
// KEYS[1] = queue list key
// KEYS[2] = processing list key
var receiveMoveScript = redis.NewScript(`
local msg = redis.call("RPOP", KEYS[1])
if not msg then
  return false
end
redis.call("LPUSH", KEYS[2], msg)
return msg
`)

// RedisConsumer reads a list-backed queue. Producers LPUSH; the consumer
// takes from the right so delivery is FIFO.
type RedisConsumer struct {
	rdb          *redis.Client
	queue        string
	pollInterval time.Duration
	closed       chan struct{}
}

func NewRedisConsumer(rdb *redis.Client, queue string, pollInterval time.Duration) *RedisConsumer {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &RedisConsumer{rdb: rdb, queue: queue, pollInterval: pollInterval, closed: make(chan struct{})}
}

func (c *RedisConsumer) Receive(ctx context.Context) (*Delivery, error) {
	processing := ProcessingList(c.queue)
	for {
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}

		res, err := receiveMoveScript.Run(ctx, c.rdb, []string{c.queue, processing}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("receive %s: %w", c.queue, err)
		}
		if msg, ok := res.(string); ok && msg != "" {
			return NewDelivery([]byte(msg), func(ctx context.Context) error {
				return c.rdb.LRem(ctx, processing, 1, msg).Err()
			}), nil
		}

		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-c.closed:
			t.Stop()
			return nil, ErrClosed
		case <-t.C:
		}
	}
}

// Recover returns messages stranded on the processing list by a previous
// process back to the queue. Call it before the first Receive.
func (c *RedisConsumer) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := c.rdb.RPopLPush(ctx, ProcessingList(c.queue), c.queue).Err()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (c *RedisConsumer) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

// RedisPublisher appends to the output list and announces the message on a
// pub/sub channel of the same name, so both pollers and subscribers see it.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	pipe := p.rdb.TxPipeline()
	pipe.LPush(ctx, topic, body)
	pipe.Publish(ctx, topic, body)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error { return nil }

// Enqueue pushes a message onto a queue consumed by RedisConsumer.
func Enqueue(ctx context.Context, rdb *redis.Client, queue string, body []byte) error {
	return rdb.LPush(ctx, queue, body).Err()
}
