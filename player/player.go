package player

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/engine"
	"github.com/leeineian/jill/sys"
	"github.com/leeineian/jill/watchdog"
)

// Deps are the collaborators shared by every player in a registry.
type Deps struct {
	Voice   VoiceProvider
	Library Library
	Store   Persistence
	Timings *sys.Timings
	// Protect enables spam guard, breaker and debounce.
	Protect bool
	Now     func() time.Time
	Open    func(path string) (io.ReadCloser, error)
}

func (d *Deps) fill() {
	if d.Timings == nil {
		d.Timings = sys.DefaultTimings()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Open == nil {
		d.Open = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	if d.Store == nil {
		d.Store = nopStore{}
	}
}

// Player is one guild's playback state. Every mutation happens on the
// arbiter's serial worker; mu lets other goroutines read safely.
type Player struct {
	guildID  snowflake.ID
	deps     Deps
	timings  *sys.Timings
	queue    QueueEngine
	arb      CommandArbiter
	presence PresenceTracker
	hang     *watchdog.Hang
	sessions *engine.Sessions

	mu           sync.RWMutex
	transport    Transport
	channelID    snowflake.ID
	playlist     catalog.Playlist
	manualPaused bool
	suppress     bool
	reconnecting bool
	drink        int
	lastCallback time.Time
}

// New wires a player from its parts. Registry.Get is the usual entry point.
func New(guildID snowflake.ID, deps Deps, queue QueueEngine, arb CommandArbiter, presence PresenceTracker) *Player {
	deps.fill()
	return &Player{
		guildID:  guildID,
		deps:     deps,
		timings:  deps.Timings,
		queue:    queue,
		arb:      arb,
		presence: presence,
		hang:     watchdog.NewHang(deps.Timings.Hang.Timeout),
		sessions: engine.NewSessions(deps.Now),
	}
}

func (p *Player) GuildID() snowflake.ID {
	return p.guildID
}

// Command is a user request against this player.
type Command struct {
	User    snowflake.ID
	Name    string
	Button  bool
	Channel snowflake.ID
	// Index is the zero-based catalog position for jump.
	Index    int
	Playlist string
}

// Dispatch runs cmd through the arbiter. The verdict's Done channel yields
// the op's error once it has executed.
func (p *Player) Dispatch(ctx context.Context, cmd Command) arbiter.Verdict {
	op := p.opFor(cmd)
	if op == nil {
		return arbiter.Verdict{Accepted: true, Done: done(fmt.Errorf("unknown command %q", cmd.Name))}
	}
	return p.arb.Submit(ctx, arbiter.Request{
		User:     cmd.User,
		Command:  cmd.Name,
		Button:   cmd.Button,
		Debounce: !cmd.Button,
		Op:       op,
	})
}

func (p *Player) opFor(cmd Command) arbiter.Op {
	switch cmd.Name {
	case arbiter.CmdPlay:
		return func(ctx context.Context) error { return p.play(ctx, cmd.Channel) }
	case arbiter.CmdPause:
		return p.pause
	case arbiter.CmdResume:
		return p.resume
	case arbiter.CmdPlayPause:
		return p.playPause
	case arbiter.CmdSkip:
		return p.skip
	case arbiter.CmdPrevious:
		return p.previous
	case arbiter.CmdStop:
		return p.stop
	case arbiter.CmdShuffle:
		return p.toggleShuffle
	case arbiter.CmdLoop:
		return p.toggleLoop
	case arbiter.CmdJump:
		return func(ctx context.Context) error { return p.jump(ctx, cmd.Index) }
	case arbiter.CmdPlaylist:
		return func(ctx context.Context) error { return p.switchPlaylist(ctx, cmd.Playlist) }
	case arbiter.CmdQueue:
		return func(context.Context) error { return nil }
	}
	return nil
}

// Restore loads the guild's last playlist so the first play resumes where
// the previous process left off.
func (p *Player) Restore(ctx context.Context) (<-chan error, error) {
	return p.arb.Enqueue(ctx, "restore", func(context.Context) error {
		return p.ensureCatalog()
	}, true)
}

// LastChannel is the voice channel saved by the last successful connect.
func (p *Player) LastChannel() (snowflake.ID, bool) {
	return p.deps.Store.LoadLastChannel(p.guildID)
}

// PlaybackState is the coarse transport state shown to users.
type PlaybackState int

const (
	Stopped PlaybackState = iota
	Playing
	Paused
)

func (s PlaybackState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Snapshot is a read-only view for presentation.
type Snapshot struct {
	engine.Snapshot
	State     PlaybackState
	Playlist  catalog.Playlist
	Drink     int
	Connected bool
	ChannelID snowflake.ID
	Pending   int
}

func (p *Player) Snapshot(preview, historyTail int) Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Snapshot:  p.queue.Snapshot(preview, historyTail),
		Playlist:  p.playlist,
		Drink:     p.drink,
		Connected: p.transport != nil,
		ChannelID: p.channelID,
		Pending:   p.arb.Pending(),
	}
	if t := p.transport; t != nil {
		switch {
		case t.IsPaused():
			s.State = Paused
		case t.IsPlaying():
			s.State = Playing
		}
	}
	return s
}

// Connected reports whether the player holds a voice transport.
func (p *Player) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transport != nil
}

// ChannelID returns the voice channel the player is connected to, or zero.
func (p *Player) ChannelID() snowflake.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channelID
}

// Close cancels pending work and leaves voice. The player must not be used
// afterwards.
func (p *Player) Close(ctx context.Context) {
	p.arb.Close()
	p.sessions.CancelCurrent()

	p.mu.Lock()
	t := p.transport
	p.transport = nil
	p.suppress = true
	p.mu.Unlock()

	if t != nil {
		t.Stop()
		if err := p.deps.Voice.Disconnect(ctx, p.guildID, false); err != nil {
			sys.LogDebug("[%s] Disconnect on close: %v", p.guildID, err)
		}
	}
}

// authoritative is the one check every transport callback goes through
// before touching state: the session must be live and current, its track
// must still be now playing, and no stop or channel move may be in flight.
func (p *Player) authoritative(sess *engine.Session, trackID int64) bool {
	p.mu.RLock()
	reconnecting, suppress := p.reconnecting, p.suppress
	cur := p.queue.Current()
	p.mu.RUnlock()

	switch {
	case reconnecting:
		return false
	case suppress:
		return false
	case !p.sessions.IsCurrent(sess):
		return false
	case cur == nil || cur.ID != trackID:
		return false
	}
	return true
}

func (p *Player) currentTransport() Transport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transport
}

func (p *Player) setSuppress(on bool) {
	p.mu.Lock()
	p.suppress = on
	p.mu.Unlock()
}

func done(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

type nopStore struct{}

func (nopStore) LoadLastChannel(snowflake.ID) (snowflake.ID, bool) { return 0, false }
func (nopStore) SaveLastChannel(snowflake.ID, snowflake.ID)        {}
func (nopStore) LoadLastPlaylist(snowflake.ID) (string, bool)      { return "", false }
func (nopStore) SaveLastPlaylist(snowflake.ID, string)             {}
func (nopStore) SaveLastPlaylistNow(snowflake.ID, string)          {}
