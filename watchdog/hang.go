package watchdog

import "time"

// Hang flags a play attempt that has been running longer than the timeout
// without finishing. Only time spent playing counts.
type Hang struct {
	timeout time.Duration
	attempt uint64
	since   time.Time
}

func NewHang(timeout time.Duration) *Hang {
	return &Hang{timeout: timeout}
}

// Observe reports hung at most once per timeout period for the same attempt;
// after a hit the tracker re-arms at now.
func (h *Hang) Observe(attempt uint64, playing bool, now time.Time) bool {
	if attempt == 0 || attempt != h.attempt || !playing {
		h.attempt = attempt
		h.since = now
		return false
	}
	if now.Sub(h.since) <= h.timeout {
		return false
	}
	h.since = now
	return true
}
