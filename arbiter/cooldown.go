package arbiter

import (
	"sync"
	"time"

	"github.com/leeineian/jill/sys"
)

// Cooldowns is layer four: after a button op succeeds, the same button is
// blocked for its configured cooldown.
type Cooldowns struct {
	cfg sys.ButtonTimings
	now func() time.Time

	mu    sync.Mutex
	until map[string]time.Time
}

func NewCooldowns(cfg sys.ButtonTimings, now func() time.Time) *Cooldowns {
	if now == nil {
		now = time.Now
	}
	return &Cooldowns{cfg: cfg, now: now, until: make(map[string]time.Time)}
}

// Remaining returns how long kind stays blocked, or zero.
func (c *Cooldowns) Remaining(kind string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(0, c.until[kind].Sub(c.now()))
}

func (c *Cooldowns) Arm(kind string) {
	d := c.cfg.Cooldowns[kind]
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.until[kind] = c.now().Add(d)
	c.mu.Unlock()
}

func (c *Cooldowns) ShowMessage() bool {
	return c.cfg.ShowCooldownMessage
}
