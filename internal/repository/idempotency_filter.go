package repository

import (
	"hash/maphash"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// idempotencyFilter remembers idempotency keys claimed by this process in two
// generations of Bloom bits. A miss lets a submission skip the owner lookup
// and go straight to HSETNX; a hit only means "maybe" and costs one HGET.
type idempotencyFilter struct {
	capacity uint64
	fpRate   float64
	window   time.Duration

	mu  sync.Mutex
	gen atomic.Pointer[generations]
}

type generations struct {
	current  *bitset
	previous *bitset
	rotateAt time.Time
}

func newIdempotencyFilter(capacity uint64, fpRate float64, window time.Duration) *idempotencyFilter {
	if capacity == 0 {
		capacity = 100_000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	if window <= 0 {
		window = time.Hour
	}
	f := &idempotencyFilter{capacity: capacity, fpRate: fpRate, window: window}
	f.gen.Store(&generations{
		current:  newBitset(capacity, fpRate),
		previous: newBitset(capacity, fpRate),
		rotateAt: time.Now().Add(window),
	})
	return f
}

func (f *idempotencyFilter) generations(now time.Time) *generations {
	g := f.gen.Load()
	if now.Before(g.rotateAt) {
		return g
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g = f.gen.Load()
	if now.Before(g.rotateAt) {
		return g
	}
	next := &generations{
		current:  newBitset(f.capacity, f.fpRate),
		previous: g.current,
		rotateAt: now.Add(f.window),
	}
	f.gen.Store(next)
	return next
}

func (f *idempotencyFilter) MaybeHas(key string) bool {
	if key == "" {
		return false
	}
	g := f.generations(time.Now())
	return g.current.test(key) || g.previous.test(key)
}

func (f *idempotencyFilter) Add(key string) {
	if key == "" {
		return
	}
	f.generations(time.Now()).current.set(key)
}

type bitset struct {
	bits   uint64
	hashes uint64
	seedA  maphash.Seed
	seedB  maphash.Seed
	words  []atomic.Uint64
}

// newBitset sizes the filter with m = -n ln p / ln²2 and k = (m/n) ln 2.
func newBitset(n uint64, p float64) *bitset {
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	k := uint64(math.Ceil(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &bitset{
		bits:   m,
		hashes: k,
		seedA:  maphash.MakeSeed(),
		seedB:  maphash.MakeSeed(),
		words:  make([]atomic.Uint64, (m+63)/64),
	}
}

func (b *bitset) hashPair(key string) (uint64, uint64) {
	h1 := maphash.String(b.seedA, key)
	h2 := maphash.String(b.seedB, key)
	if h2 == 0 {
		h2 = 0x9e3779b97f4a7c15
	}
	return h1, h2
}

func (b *bitset) test(key string) bool {
	h1, h2 := b.hashPair(key)
	for i := uint64(0); i < b.hashes; i++ {
		pos := (h1 + i*h2) % b.bits
		if b.words[pos>>6].Load()&(1<<(pos&63)) == 0 {
			return false
		}
	}
	return true
}

func (b *bitset) set(key string) {
	h1, h2 := b.hashPair(key)
	for i := uint64(0); i < b.hashes; i++ {
		pos := (h1 + i*h2) % b.bits
		b.words[pos>>6].Or(1 << (pos & 63))
	}
}
