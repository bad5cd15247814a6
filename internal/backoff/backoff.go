package backoff

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Policy names how the wait between webhook delivery attempts grows.
type Policy string

const (
	Fixed       Policy = "fixed"
	Linear      Policy = "linear"
	Exponential Policy = "exponential"
	EqualJitter Policy = "exp_equal_jitter"
	FullJitter  Policy = "exp_full_jitter"
)

var ErrUnknownPolicy = errors.New("unknown backoff policy")

// ParsePolicy accepts a policy name case-insensitively. Blank means Exponential.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return Exponential, nil
	case Fixed, Linear, Exponential, EqualJitter, FullJitter:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Schedule yields retry delays for one policy. It is safe for concurrent use.
type Schedule struct {
	policy Policy
	base   time.Duration
	max    time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSchedule clamps base to at least one second and max to at least base.
func NewSchedule(p Policy, base, max time.Duration, seed int64) *Schedule {
	if base < time.Second {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if p == "" {
		p = Exponential
	}
	return &Schedule{policy: p, base: base, max: max, rng: rand.New(rand.NewSource(seed))}
}

func (s *Schedule) Policy() Policy { return s.policy }

// Delay returns the wait after the given failed attempt, counting from 1.
func (s *Schedule) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch s.policy {
	case Fixed:
		return s.base
	case Linear:
		if d := s.base * time.Duration(attempt); d > 0 && d < s.max {
			return d
		}
		return s.max
	case Exponential:
		return s.ceiling(attempt)
	case EqualJitter:
		c := s.ceiling(attempt)
		half := c / 2
		return half + s.jitter(c-half)
	default:
		return s.jitter(s.ceiling(attempt))
	}
}

// ceiling is base doubled attempt-1 times, capped at max.
func (s *Schedule) ceiling(attempt int) time.Duration {
	d := s.base
	for i := 1; i < attempt; i++ {
		if d >= s.max/2 {
			return s.max
		}
		d *= 2
	}
	return min(d, s.max)
}

// jitter is uniform over [0, n] at one-second granularity.
func (s *Schedule) jitter(n time.Duration) time.Duration {
	secs := int64(n / time.Second)
	if secs <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.rng.Int63n(secs+1)) * time.Second
}
