package metrics

import (
	"context"
	"testing"

	"github.com/osvaldoandrade/dossier/internal/transport"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRedisCollectorReportsQueueDepths(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	rdb.LPush(ctx, "analysis-requests", "a", "b")
	rdb.LPush(ctx, transport.ProcessingList("analysis-requests"), "c")
	rdb.LPush(ctx, "analysis-results", "d", "e", "f")

	c := newRedisCollector(rdb, []Queue{{WorkType: "report", Input: "analysis-requests", Output: "analysis-results"}}, nil)
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(c)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "dossier_queue_depth" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var role string
			for _, l := range m.GetLabel() {
				if l.GetName() == "queue" {
					role = l.GetValue()
				}
			}
			got[role] = m.GetGauge().GetValue()
		}
	}
	want := map[string]float64{"pending": 2, "processing": 1, "published": 3}
	for role, v := range want {
		if got[role] != v {
			t.Errorf("%s depth = %v, want %v", role, got[role], v)
		}
	}
}
