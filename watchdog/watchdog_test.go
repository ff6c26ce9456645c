package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leeineian/jill/sys"
	"github.com/stretchr/testify/assert"
)

func TestPresence_AloneScenario(t *testing.T) {
	cfg := sys.DefaultTimings().Presence
	p := NewPresence(cfg)
	now := time.Unix(0, 0)
	step := func(d time.Duration, alone, playing bool) Action {
		now = now.Add(d)
		return p.Evaluate(now, alone, playing)
	}

	assert.Equal(t, ActionNone, step(0, false, true))
	assert.Equal(t, ActionNone, step(time.Second, true, true))
	assert.Equal(t, AloneGrace, p.State())

	assert.Equal(t, ActionNone, step(9*time.Second, true, true))
	assert.Equal(t, ActionPause, step(time.Second, true, true))
	assert.Equal(t, ActionNone, step(5*time.Second, true, false), "pauses exactly once")

	assert.Equal(t, ActionResume, step(2*time.Second, false, false))
	assert.Equal(t, Accompanied, p.State())

	var pauses, disconnects int
	playing := true
	for range 70 {
		switch step(10*time.Second, true, playing) {
		case ActionPause:
			pauses++
			playing = false
		case ActionDisconnect:
			disconnects++
		}
	}
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, disconnects)
	assert.Equal(t, Disconnected, p.State())

	assert.Equal(t, ActionNone, step(time.Second, false, false), "no resume after disconnect")
	p.Reset()
	assert.Equal(t, Accompanied, p.State())
}

func TestPresence_UserPauseIsNotResumed(t *testing.T) {
	p := NewPresence(sys.DefaultTimings().Presence)
	now := time.Unix(0, 0)

	p.Evaluate(now, true, false)
	assert.Equal(t, ActionNone, p.Evaluate(now.Add(30*time.Second), true, false), "not playing, nothing to pause")
	assert.Equal(t, ActionNone, p.Evaluate(now.Add(31*time.Second), false, false))
}

func TestPresence_ForgetDropsAutoResume(t *testing.T) {
	p := NewPresence(sys.DefaultTimings().Presence)
	now := time.Unix(0, 0)

	p.Evaluate(now, true, true)
	assert.Equal(t, ActionPause, p.Evaluate(now.Add(10*time.Second), true, true))
	p.Forget()
	assert.Equal(t, ActionNone, p.Evaluate(now.Add(11*time.Second), false, false))
}

func TestPresence_Disabled(t *testing.T) {
	cfg := sys.DefaultTimings().Presence
	cfg.AutoPause = false
	cfg.AutoDisconnect = false
	p := NewPresence(cfg)
	now := time.Unix(0, 0)

	p.Evaluate(now, true, true)
	for i := range 100 {
		assert.Equal(t, ActionNone, p.Evaluate(now.Add(time.Duration(i)*time.Minute), true, true))
	}
	assert.Equal(t, 99*time.Minute, p.AloneFor(now.Add(99*time.Minute)))
}

func TestHang(t *testing.T) {
	h := NewHang(11 * time.Minute)
	now := time.Unix(0, 0)

	assert.False(t, h.Observe(1, true, now))
	assert.False(t, h.Observe(1, true, now.Add(10*time.Minute)))
	assert.True(t, h.Observe(1, true, now.Add(12*time.Minute)))
	assert.False(t, h.Observe(1, true, now.Add(13*time.Minute)), "re-armed after a hit")

	assert.False(t, h.Observe(2, true, now.Add(30*time.Minute)), "new attempt resets")
	assert.False(t, h.Observe(2, false, now.Add(50*time.Minute)), "paused time does not count")
	assert.False(t, h.Observe(2, true, now.Add(55*time.Minute)))
	assert.False(t, h.Observe(0, true, now.Add(99*time.Minute)))
}

func TestLoop_TicksAndStops(t *testing.T) {
	var ticks atomic.Int32
	l := &Loop{
		Name:     "test",
		Interval: 5 * time.Millisecond,
		Tick: func(context.Context) {
			if ticks.Add(1) == 2 {
				panic("one bad tick")
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ticks.Load() >= 4 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestLoop_IdleBackoff(t *testing.T) {
	active := false
	l := &Loop{Interval: time.Second, IdleInterval: 5 * time.Second, Active: func() bool { return active }}
	assert.Equal(t, 5*time.Second, l.next())
	active = true
	assert.Equal(t, time.Second, l.next())
}
