package arbiter

import (
	"context"
	"errors"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/sys"
)

// Command names. Button cooldowns and debounce windows are keyed by these.
const (
	CmdPlay      = "play"
	CmdPause     = "pause"
	CmdResume    = "resume"
	CmdPlayPause = "playpause"
	CmdSkip      = "skip"
	CmdPrevious  = "previous"
	CmdStop      = "stop"
	CmdShuffle   = "shuffle"
	CmdLoop      = "loop"
	CmdQueue     = "queue"
	CmdJump      = "jump"
	CmdPlaylist  = "playlist"
	CmdRescan    = "rescan"
)

// Reason says where a command was dropped.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonSpam
	ReasonCircuitOpen
	ReasonCooldown
	ReasonDebounceCooldown
	ReasonQueueFull
	ReasonClosed
)

func (r Reason) String() string {
	switch r {
	case ReasonSpam:
		return "spam"
	case ReasonCircuitOpen:
		return "circuit open"
	case ReasonCooldown:
		return "cooldown"
	case ReasonDebounceCooldown:
		return "debounce cooldown"
	case ReasonQueueFull:
		return "queue full"
	case ReasonClosed:
		return "closed"
	default:
		return "none"
	}
}

// Request is one user-initiated command.
type Request struct {
	User    snowflake.ID
	Command string
	// Button marks presses on the control panel; they get post-success
	// cooldowns instead of debouncing.
	Button bool
	// Debounce merges bursts of this command before queueing.
	Debounce bool
	Op       Op
}

// Verdict is the outcome of Submit. When Accepted, Done receives the op's
// result once it has run. Notify asks the caller to tell the user about the
// drop; Notice carries the text when the pipeline picked one.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Notify   bool
	Notice   string
	Retry    time.Duration
	Done     <-chan error
}

// Shared holds the layers keyed across tenants.
type Shared struct {
	Spam    *SpamGuard
	Breaker *Breaker
}

func NewShared(t *sys.Timings, now func() time.Time) *Shared {
	return &Shared{
		Spam:    NewSpamGuard(t.Spam, now),
		Breaker: NewBreaker(t.Circuit, now),
	}
}

// Arbiter runs the full pipeline for one tenant:
// spam guard, circuit breaker, debounce or direct, serial queue, cooldown.
type Arbiter struct {
	tenant    snowflake.ID
	shared    *Shared
	serial    *Serial
	cooldowns *Cooldowns
	debounce  *Debouncer
	protect   bool
}

// New starts the tenant's serial worker. protect=false bypasses spam guard,
// breaker and debounce, leaving only serialization and cooldowns.
func New(tenant snowflake.ID, shared *Shared, t *sys.Timings, protect bool, now func() time.Time) *Arbiter {
	a := &Arbiter{
		tenant:    tenant,
		shared:    shared,
		serial:    NewSerial("guild "+tenant.String(), t.Queue),
		cooldowns: NewCooldowns(t.Buttons, now),
		protect:   protect,
	}
	a.debounce = NewDebouncer(t.Debounce, now, func(name string, op Op) (<-chan error, error) {
		return a.serial.Enqueue(context.Background(), name, op, false)
	})
	return a
}

// Submit routes a user command through every layer. A drop at any layer is
// final and the op never runs.
func (a *Arbiter) Submit(ctx context.Context, req Request) Verdict {
	if a.protect {
		if ok, warning := a.shared.Spam.Allow(req.User, req.Command); !ok {
			return Verdict{Reason: ReasonSpam, Notify: warning != "", Notice: warning}
		}
		if ok, notify := a.shared.Breaker.Allow(a.tenant); !ok {
			return Verdict{Reason: ReasonCircuitOpen, Notify: notify, Retry: a.shared.Breaker.OpenFor(a.tenant)}
		}
	}

	op := req.Op
	if req.Button {
		if left := a.cooldowns.Remaining(req.Command); left > 0 {
			return Verdict{Reason: ReasonCooldown, Notify: a.cooldowns.ShowMessage(), Retry: left}
		}
		op = a.armOnSuccess(req.Command, req.Op)
	}

	if a.protect && req.Debounce {
		done, accepted, warn := a.debounce.Submit(req.Command, op)
		if !accepted {
			return Verdict{Reason: ReasonDebounceCooldown}
		}
		return Verdict{Accepted: true, Notify: warn, Done: done}
	}

	done, err := a.serial.Enqueue(ctx, req.Command, op, false)
	if err != nil {
		return Verdict{Reason: reasonFor(err), Notify: true}
	}
	return Verdict{Accepted: true, Done: done}
}

// Enqueue hands an internal op straight to the serial worker. It is the only
// way code outside the worker may change tenant state.
func (a *Arbiter) Enqueue(ctx context.Context, name string, op Op, priority bool) (<-chan error, error) {
	return a.serial.Enqueue(ctx, name, op, priority)
}

func (a *Arbiter) Pending() int {
	return a.serial.Len()
}

// Close stops pending debounce bursts and the serial worker.
func (a *Arbiter) Close() {
	a.debounce.Close()
	a.serial.Close()
}

func (a *Arbiter) armOnSuccess(kind string, op Op) Op {
	return func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			a.cooldowns.Arm(kind)
		}
		return err
	}
}

func reasonFor(err error) Reason {
	if errors.Is(err, ErrQueueFull) {
		return ReasonQueueFull
	}
	return ReasonClosed
}
