package backoff

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Exponential, false},
		{"  ", Exponential, false},
		{"fixed", Fixed, false},
		{"Linear", Linear, false},
		{" EXPONENTIAL ", Exponential, false},
		{"exp_equal_jitter", EqualJitter, false},
		{"exp_full_jitter", FullJitter, false},
		{"fibonacci", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownPolicy) {
					t.Fatalf("ParsePolicy(%q) err = %v, want ErrUnknownPolicy", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParsePolicy(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestScheduleDeterministicPolicies(t *testing.T) {
	s := time.Second
	tests := []struct {
		name   string
		policy Policy
		base   time.Duration
		max    time.Duration
		want   []time.Duration
	}{
		{"fixed", Fixed, 5 * s, 60 * s, []time.Duration{5 * s, 5 * s, 5 * s}},
		{"linear", Linear, 5 * s, 12 * s, []time.Duration{5 * s, 10 * s, 12 * s}},
		{"exponential", Exponential, 2 * s, 10 * s, []time.Duration{2 * s, 4 * s, 8 * s, 10 * s, 10 * s}},
		{"base clamped to one second", Exponential, 0, 60 * s, []time.Duration{s, 2 * s, 4 * s}},
		{"max below base", Exponential, 5 * s, s, []time.Duration{5 * s, 5 * s}},
		{"empty policy is exponential", "", 1 * s, 60 * s, []time.Duration{s, 2 * s}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := NewSchedule(tt.policy, tt.base, tt.max, 1)
			for i, want := range tt.want {
				if got := sched.Delay(i + 1); got != want {
					t.Errorf("Delay(%d) = %v, want %v", i+1, got, want)
				}
			}
		})
	}
}

func TestScheduleExponentialDoesNotOverflow(t *testing.T) {
	sched := NewSchedule(Exponential, time.Second, time.Hour, 1)
	if got := sched.Delay(500); got != time.Hour {
		t.Fatalf("Delay(500) = %v, want 1h", got)
	}
	if got := sched.Delay(0); got != time.Second {
		t.Fatalf("Delay(0) = %v, want 1s", got)
	}
}

func TestScheduleJitterBounds(t *testing.T) {
	tests := []struct {
		policy Policy
		lo     time.Duration
	}{
		{EqualJitter, 4 * time.Second},
		{FullJitter, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			sched := NewSchedule(tt.policy, time.Second, 8*time.Second, 42)
			seen := map[time.Duration]bool{}
			for i := 0; i < 200; i++ {
				d := sched.Delay(4)
				if d < tt.lo || d > 8*time.Second {
					t.Fatalf("Delay(4) = %v, outside [%v, 8s]", d, tt.lo)
				}
				seen[d] = true
			}
			if len(seen) < 2 {
				t.Fatalf("jitter produced a single value %v", seen)
			}
		})
	}
}

func TestScheduleSameSeedSameDelays(t *testing.T) {
	a := NewSchedule(FullJitter, time.Second, 30*time.Second, 7)
	b := NewSchedule(FullJitter, time.Second, 30*time.Second, 7)
	for i := 1; i <= 6; i++ {
		if da, db := a.Delay(i), b.Delay(i); da != db {
			t.Fatalf("attempt %d: %v != %v", i, da, db)
		}
	}
}

func TestScheduleConcurrentDelays(t *testing.T) {
	sched := NewSchedule(EqualJitter, time.Second, 16*time.Second, 3)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 1; j <= 50; j++ {
				if d := sched.Delay(j); d > 16*time.Second {
					t.Errorf("Delay(%d) = %v", j, d)
				}
			}
		}()
	}
	wg.Wait()
}
