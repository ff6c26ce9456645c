package player

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/engine"
	"github.com/leeineian/jill/watchdog"
)

var (
	ErrNotConnected   = errors.New("not connected to voice")
	ErrNoHistory      = errors.New("no previous track")
	ErrOutOfRange     = errors.New("track number out of range")
	ErrEmptyCatalog   = errors.New("no playable tracks")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrPermission     = errors.New("missing voice permissions")

	// Transport completions. ErrStopped is routine; ErrConnectionLost means
	// the voice connection is unusable and must be rebuilt.
	ErrStopped        = errors.New("playback stopped")
	ErrConnectionLost = errors.New("voice connection lost")
)

// Transport plays one audio source at a time. onFinished is called exactly
// once per successful Start, from the transport's own goroutine.
type Transport interface {
	Start(src io.ReadCloser, onFinished func(error)) error
	Stop()
	Pause()
	Resume()
	IsPlaying() bool
	IsPaused() bool
}

type VoiceProvider interface {
	Connect(ctx context.Context, guildID, channelID snowflake.ID) (Transport, error)
	Disconnect(ctx context.Context, guildID snowflake.ID, force bool) error
	// Listeners counts members who are not bots and not deafened.
	Listeners(guildID, channelID snowflake.ID) int
	CheckPermissions(guildID, channelID snowflake.ID) error
}

// Library is the catalog source a player loads playlists from.
type Library interface {
	Find(name string) (catalog.Playlist, error)
	Default() (catalog.Playlist, error)
	Load(p catalog.Playlist) ([]*catalog.Track, error)
}

// Persistence is the subset of the store a player writes through. Saves are
// fire-and-forget and loads are best effort.
type Persistence interface {
	LoadLastChannel(guildID snowflake.ID) (snowflake.ID, bool)
	SaveLastChannel(guildID, channelID snowflake.ID)
	LoadLastPlaylist(guildID snowflake.ID) (string, bool)
	SaveLastPlaylist(guildID snowflake.ID, name string)
	SaveLastPlaylistNow(guildID snowflake.ID, name string)
}

type QueueEngine interface {
	SetCatalog(tracks []*catalog.Track)
	Reset(shuffle bool)
	Advance() *catalog.Track
	Previous() *catalog.Track
	Jump(index int) *catalog.Track
	SetShuffle(on bool)
	SetLoop(on bool)
	Current() *catalog.Track
	Shuffle() bool
	Loop() bool
	Len() int
	Snapshot(preview, historyTail int) engine.Snapshot
}

type CommandArbiter interface {
	Submit(ctx context.Context, req arbiter.Request) arbiter.Verdict
	Enqueue(ctx context.Context, name string, op arbiter.Op, priority bool) (<-chan error, error)
	Pending() int
	Close()
}

type PresenceTracker interface {
	Evaluate(now time.Time, alone, playing bool) watchdog.Action
	Reset()
	Forget()
	MarkDisconnected()
	State() watchdog.State
}

var (
	_ QueueEngine     = (*engine.Queue)(nil)
	_ CommandArbiter  = (*arbiter.Arbiter)(nil)
	_ PresenceTracker = (*watchdog.Presence)(nil)
	_ Library         = (*catalog.Library)(nil)
)
