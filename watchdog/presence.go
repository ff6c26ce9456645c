package watchdog

import (
	"time"

	"github.com/leeineian/jill/sys"
)

type State int

const (
	Accompanied State = iota
	AloneGrace
	AutoPaused
	Disconnected
)

func (s State) String() string {
	switch s {
	case AloneGrace:
		return "alone"
	case AutoPaused:
		return "auto-paused"
	case Disconnected:
		return "disconnected"
	default:
		return "accompanied"
	}
}

// Action is what the player should do after an evaluation.
type Action int

const (
	ActionNone Action = iota
	ActionPause
	ActionResume
	ActionDisconnect
)

func (a Action) String() string {
	switch a {
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionDisconnect:
		return "disconnect"
	default:
		return "none"
	}
}

// Presence tracks whether the bot has been left alone in its voice channel.
// It holds no timers; callers feed it observations with Evaluate.
type Presence struct {
	cfg        sys.PresenceTimings
	state      State
	aloneSince time.Time
}

func NewPresence(cfg sys.PresenceTimings) *Presence {
	return &Presence{cfg: cfg}
}

// Evaluate advances the state machine. Resume is only returned for a pause
// this tracker caused.
func (p *Presence) Evaluate(now time.Time, alone, playing bool) Action {
	if p.state == Disconnected {
		return ActionNone
	}

	if !alone {
		wasPaused := p.state == AutoPaused
		p.state = Accompanied
		p.aloneSince = time.Time{}
		if wasPaused {
			return ActionResume
		}
		return ActionNone
	}

	if p.state == Accompanied {
		p.state = AloneGrace
		p.aloneSince = now
		return ActionNone
	}

	elapsed := now.Sub(p.aloneSince)
	if p.cfg.AutoDisconnect && elapsed >= p.cfg.DisconnectDelay {
		p.state = Disconnected
		return ActionDisconnect
	}
	if p.state == AloneGrace && p.cfg.AutoPause && playing && elapsed >= p.cfg.PauseDelay {
		p.state = AutoPaused
		return ActionPause
	}
	return ActionNone
}

// Reset returns to Accompanied, for a fresh voice connection.
func (p *Presence) Reset() {
	p.state = Accompanied
	p.aloneSince = time.Time{}
}

// MarkDisconnected parks the tracker until the next Reset.
func (p *Presence) MarkDisconnected() {
	p.state = Disconnected
	p.aloneSince = time.Time{}
}

// Forget clears a pending auto-resume, used when the user takes over the
// pause state explicitly.
func (p *Presence) Forget() {
	if p.state == AutoPaused {
		p.state = AloneGrace
	}
}

func (p *Presence) State() State {
	return p.state
}

// AloneFor returns how long the channel has been empty, or zero.
func (p *Presence) AloneFor(now time.Time) time.Duration {
	if p.aloneSince.IsZero() {
		return 0
	}
	return now.Sub(p.aloneSince)
}
