package arbiter

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/sys"
)

type breakerState struct {
	hits      []time.Time
	openUntil time.Time
	level     int
	notified  bool
}

// Breaker is layer two: a per-tenant circuit breaker over commands that
// already passed the spam guard. Repeat trips escalate through the
// configured penalties until the tenant stays quiet for PenaltyReset.
type Breaker struct {
	cfg sys.CircuitTimings
	now func() time.Time

	mu      sync.Mutex
	tenants map[snowflake.ID]*breakerState
}

func NewBreaker(cfg sys.CircuitTimings, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{cfg: cfg, now: now, tenants: make(map[snowflake.ID]*breakerState)}
}

// Allow counts one command for tenant. When the breaker is open it returns
// false; notify is true for the first drop of each trip.
func (b *Breaker) Allow(tenant snowflake.ID) (ok bool, notify bool) {
	if !b.cfg.Enabled {
		return true, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	st, found := b.tenants[tenant]
	if !found {
		st = &breakerState{}
		b.tenants[tenant] = st
	}

	if now.Before(st.openUntil) {
		first := !st.notified
		st.notified = true
		return false, first
	}
	if st.level > 0 && now.Sub(st.openUntil) >= b.cfg.PenaltyReset {
		st.level = 0
	}

	cutoff := now.Add(-b.cfg.Window)
	kept := st.hits[:0]
	for _, h := range st.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	st.hits = append(kept, now)

	if len(st.hits) > b.cfg.Ceiling {
		d := b.cfg.BreakDuration * time.Duration(b.multiplier(st.level))
		st.openUntil = now.Add(d)
		st.level++
		st.hits = nil
		st.notified = true
		sys.LogArbiter("Circuit opened for guild %s for %s (trip %d)", tenant, d, st.level)
		return false, true
	}
	return true, false
}

// OpenFor returns how long the tenant's breaker stays open, or zero.
func (b *Breaker) OpenFor(tenant snowflake.ID) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tenants[tenant]
	if !ok {
		return 0
	}
	return max(0, st.openUntil.Sub(b.now()))
}

// Forget drops all state for tenant.
func (b *Breaker) Forget(tenant snowflake.ID) {
	b.mu.Lock()
	delete(b.tenants, tenant)
	b.mu.Unlock()
}

func (b *Breaker) multiplier(level int) int {
	if len(b.cfg.Penalties) == 0 {
		return 1
	}
	return b.cfg.Penalties[min(level, len(b.cfg.Penalties)-1)]
}
