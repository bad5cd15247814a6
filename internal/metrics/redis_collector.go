package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/osvaldoandrade/dossier/internal/transport"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Queue names one pipeline's Redis lists.
type Queue struct {
	WorkType string
	Input    string
	Output   string
}

type redisCollector struct {
	rdb    *redis.Client
	queues []Queue
	logger *slog.Logger

	queueDepthDesc *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, queues []Queue, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		queues: queues,
		logger: logger,
		queueDepthDesc: prometheus.NewDesc(
			"dossier_queue_depth",
			"Current Redis list depth by work type and list role.",
			[]string{"work_type", "queue"},
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepthDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil || len(c.queues) == 0 {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type depths struct{ pending, processing, published *redis.IntCmd }
	pipe := c.rdb.Pipeline()
	cmds := make([]depths, len(c.queues))
	for i, q := range c.queues {
		cmds[i] = depths{
			pending:    pipe.LLen(ctx, q.Input),
			processing: pipe.LLen(ctx, transport.ProcessingList(q.Input)),
			published:  pipe.LLen(ctx, q.Output),
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}

	for i, q := range c.queues {
		emitGauge(ch, c.queueDepthDesc, float64(cmds[i].pending.Val()), q.WorkType, "pending")
		emitGauge(ch, c.queueDepthDesc, float64(cmds[i].processing.Val()), q.WorkType, "processing")
		emitGauge(ch, c.queueDepthDesc, float64(cmds[i].published.Val()), q.WorkType, "published")
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, queues []Queue, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, queues, logger))
	})
}
