package arbiter

import (
	"sync"
	"time"

	"github.com/leeineian/jill/sys"
)

type debounceEntry struct {
	timer    *time.Timer
	op       Op
	waiters  []chan error
	gen      uint64
	count    int
	warned   bool
	lastFire time.Time
}

// Debouncer merges a burst of one typed command into a single execution of
// the latest invocation, fired once the burst has been quiet for Window.
type Debouncer struct {
	cfg    map[string]sys.DebounceTimings
	now    func() time.Time
	submit func(name string, op Op) (<-chan error, error)

	mu      sync.Mutex
	entries map[string]*debounceEntry
	closed  bool
}

// NewDebouncer fires merged commands through submit, normally a serial
// queue's Enqueue.
func NewDebouncer(cfg map[string]sys.DebounceTimings, now func() time.Time, submit func(string, Op) (<-chan error, error)) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{cfg: cfg, now: now, submit: submit, entries: make(map[string]*debounceEntry)}
}

// Submit reports accepted=false when the command is still cooling down from
// its last execution. warn is true once per burst when the burst reaches the
// spam threshold. Every merged invocation's done channel receives the result
// of the single execution.
func (d *Debouncer) Submit(command string, op Op) (done <-chan error, accepted bool, warn bool) {
	cfg, ok := d.cfg[command]
	if !ok || cfg.Window <= 0 {
		ch, err := d.submit(command, op)
		if err != nil {
			return failed(err), true, false
		}
		return ch, true, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return failed(ErrClosed), true, false
	}

	e, found := d.entries[command]
	if !found {
		e = &debounceEntry{}
		d.entries[command] = e
	}
	now := d.now()
	if !e.lastFire.IsZero() && now.Sub(e.lastFire) < cfg.Cooldown {
		sys.LogDebug("Debounce: %s on cooldown", command)
		return nil, false, false
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	e.count++
	e.op = op
	ch := make(chan error, 1)
	e.waiters = append(e.waiters, ch)

	if cfg.SpamThreshold > 0 && e.count >= cfg.SpamThreshold && !e.warned {
		e.warned = true
		warn = true
		sys.LogArbiter("Debounce: %s spammed %d times in one burst", command, e.count)
	}

	gen := e.gen
	e.timer = time.AfterFunc(cfg.Window, func() { d.fire(command, e, gen) })
	return ch, true, warn
}

func (d *Debouncer) fire(command string, e *debounceEntry, gen uint64) {
	d.mu.Lock()
	if d.closed || d.entries[command] != e || e.gen != gen {
		d.mu.Unlock()
		return
	}
	op, waiters := e.op, e.waiters
	e.timer = nil
	e.op = nil
	e.waiters = nil
	e.count = 0
	e.warned = false
	e.lastFire = d.now()
	d.mu.Unlock()

	if op == nil {
		return
	}
	ch, err := d.submit(command, op)
	if err != nil {
		fanOut(waiters, err)
		return
	}
	go func() { fanOut(waiters, <-ch) }()
}

// Close cancels pending bursts. Their waiters receive ErrClosed.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, e := range d.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		fanOut(e.waiters, ErrClosed)
	}
	d.entries = nil
}

func fanOut(waiters []chan error, err error) {
	for _, w := range waiters {
		w <- err
	}
}

func failed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}
