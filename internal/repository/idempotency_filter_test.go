package repository

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestIdempotencyFilterMarkAndTest(t *testing.T) {
	f := newIdempotencyFilter(1000, 0.01, time.Hour)
	if f.MaybeHas("acme-2025-q1") {
		t.Fatal("fresh filter reports a hit")
	}
	f.Add("acme-2025-q1")
	if !f.MaybeHas("acme-2025-q1") {
		t.Fatal("marked key not seen")
	}
	f.Add("")
	if f.MaybeHas("") {
		t.Fatal("empty key must never be seen")
	}
}

func TestIdempotencyFilterKeepsPreviousGeneration(t *testing.T) {
	window := 40 * time.Millisecond
	f := newIdempotencyFilter(1000, 0.01, window)
	f.Add("old")

	time.Sleep(window + 10*time.Millisecond)
	f.Add("new")
	if !f.MaybeHas("old") || !f.MaybeHas("new") {
		t.Fatal("keys lost across one rotation")
	}

	time.Sleep(window + 10*time.Millisecond)
	if !f.MaybeHas("new") {
		t.Fatal("previous generation dropped too early")
	}
	if f.MaybeHas("old") {
		t.Log("old key still matches after two rotations (false positive)")
	}
}

func TestIdempotencyFilterDefaults(t *testing.T) {
	f := newIdempotencyFilter(0, 2, -time.Second)
	if f.capacity != 100_000 || f.fpRate != 0.01 || f.window != time.Hour {
		t.Fatalf("defaults not applied: %+v", f)
	}
	if b := newBitset(1, 0.01); b.bits < 64 || b.hashes < 1 {
		t.Fatalf("bitset too small: bits=%d hashes=%d", b.bits, b.hashes)
	}
}

func TestIdempotencyFilterConcurrentRotation(t *testing.T) {
	f := newIdempotencyFilter(10_000, 0.01, 20*time.Millisecond)
	var wg sync.WaitGroup
	errs := make(chan string, 16)
	deadline := time.Now().Add(100 * time.Millisecond)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; time.Now().Before(deadline); i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				f.Add(key)
				if !f.MaybeHas(key) {
					errs <- key
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for k := range errs {
		t.Errorf("key %q missing right after Add", k)
	}
}
