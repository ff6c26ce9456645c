package arbiter

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/sys"
)

type spamKey struct {
	user    snowflake.ID
	command string
}

type spamEntry struct {
	hits   []time.Time
	until  time.Time
	warned bool
	last   time.Time
}

// SpamGuard is layer one: it opens a time-boxed spam session for a user who
// repeats one command too quickly. Other users are unaffected.
type SpamGuard struct {
	cfg sys.SpamTimings
	now func() time.Time

	mu        sync.Mutex
	entries   map[spamKey]*spamEntry
	lastPrune time.Time
}

func NewSpamGuard(cfg sys.SpamTimings, now func() time.Time) *SpamGuard {
	if now == nil {
		now = time.Now
	}
	return &SpamGuard{cfg: cfg, now: now, entries: make(map[spamKey]*spamEntry)}
}

// Allow records one invocation. When it returns false the invocation must be
// dropped; warning is non-empty only for the first drop of a spam session.
func (g *SpamGuard) Allow(user snowflake.ID, command string) (ok bool, warning string) {
	if !g.cfg.Enabled {
		return true, ""
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.pruneLocked(now)

	key := spamKey{user: user, command: command}
	e, found := g.entries[key]
	if !found {
		e = &spamEntry{}
		g.entries[key] = e
	}
	e.last = now

	if now.Before(e.until) {
		if e.warned {
			return false, ""
		}
		e.warned = true
		return false, g.pickWarning()
	}

	cutoff := now.Add(-g.cfg.TriggerWindow)
	kept := e.hits[:0]
	for _, h := range e.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	e.hits = append(kept, now)

	if len(e.hits) >= g.cfg.TriggerCount {
		e.hits = nil
		e.until = now.Add(g.cfg.SessionDuration)
		e.warned = true
		sys.LogArbiter("Spam session opened for user %s on %s", user, command)
		return false, g.pickWarning()
	}
	return true, ""
}

// Len reports how many (user, command) pairs are tracked.
func (g *SpamGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *SpamGuard) pruneLocked(now time.Time) {
	if g.cfg.CleanupAfter <= 0 || now.Sub(g.lastPrune) < g.cfg.CleanupAfter {
		return
	}
	g.lastPrune = now
	for k, e := range g.entries {
		if now.Sub(e.last) > g.cfg.CleanupAfter && !now.Before(e.until) {
			delete(g.entries, k)
		}
	}
}

func (g *SpamGuard) pickWarning() string {
	if len(g.cfg.Warnings) == 0 {
		return ""
	}
	return g.cfg.Warnings[rand.IntN(len(g.cfg.Warnings))]
}
