package watchdog

import (
	"context"
	"time"

	"github.com/leeineian/jill/sys"
)

// Loop runs Tick on a fixed interval, backing off to IdleInterval while Active
// reports no work. Each tick runs under recover, and ctx cancellation ends the
// loop quietly.
type Loop struct {
	Name         string
	Interval     time.Duration
	IdleInterval time.Duration
	Active       func() bool
	Tick         func(ctx context.Context)
}

func (l *Loop) Run(ctx context.Context) {
	sys.LogWatchdog("%s watchdog running every %s", l.Name, l.Interval)
	timer := time.NewTimer(l.next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			sys.LogDebug("%s watchdog stopped", l.Name)
			return
		case <-timer.C:
		}
		l.tick(ctx)
		timer.Reset(l.next())
	}
}

func (l *Loop) tick(ctx context.Context) {
	defer sys.Recover(l.Name + " watchdog")
	l.Tick(ctx)
}

func (l *Loop) next() time.Duration {
	if l.IdleInterval > l.Interval && l.Active != nil && !l.Active() {
		return l.IdleInterval
	}
	return l.Interval
}
