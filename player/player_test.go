package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guild snowflake.ID = 100
	room  snowflake.ID = 200
	other snowflake.ID = 201
	user  snowflake.ID = 300
)

type harness struct {
	t     *testing.T
	clock *fakeClock
	voice *fakeVoice
	lib   *fakeLibrary
	store *memStore
	files *fakeFiles
	reg   *Registry
	p     *Player
}

func newHarness(t *testing.T, sizes map[string]int, setup ...func(*harness)) *harness {
	t.Helper()
	sys.InitLogger(true, "")

	h := &harness{
		t:     t,
		clock: &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		voice: &fakeVoice{listeners: 1},
		lib:   newFakeLibrary(sizes),
		store: newMemStore(),
		files: &fakeFiles{},
	}
	for _, f := range setup {
		f(h)
	}

	timings := sys.DefaultTimings()
	timings.Playback.SettleDelay = 0
	timings.Playback.SettleMaxWait = 10 * time.Millisecond
	timings.Playback.SettlePoll = time.Millisecond

	h.reg = NewRegistry(Deps{
		Voice:   h.voice,
		Library: h.lib,
		Store:   h.store,
		Timings: timings,
		Now:     h.clock.Now,
		Open:    h.files.open,
	})
	h.p = h.reg.Get(guild)
	require.NotNil(t, h.p)
	h.sync()
	t.Cleanup(func() { h.reg.Shutdown(context.Background()) })
	return h
}

func (h *harness) run(cmd Command) error {
	h.t.Helper()
	if cmd.User == 0 {
		cmd.User = user
	}
	v := h.p.Dispatch(context.Background(), cmd)
	require.True(h.t, v.Accepted, "command %s dropped: %s", cmd.Name, v.Reason)
	return h.wait(v.Done)
}

func (h *harness) wait(ch <-chan error) error {
	h.t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for the worker")
		return nil
	}
}

// sync waits until every op queued so far has run.
func (h *harness) sync() {
	h.t.Helper()
	ch, err := h.p.arb.Enqueue(context.Background(), "sync", func(context.Context) error { return nil }, true)
	require.NoError(h.t, err)
	require.NoError(h.t, h.wait(ch))
}

func (h *harness) play() {
	h.t.Helper()
	require.NoError(h.t, h.run(Command{Name: arbiter.CmdPlay, Channel: room}))
}

func (h *harness) current() *catalog.Track {
	return h.p.Snapshot(0, 0).NowPlaying
}

func TestPlayer_PlayStartsFirstTrack(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()

	s := h.p.Snapshot(5, 5)
	require.NotNil(t, s.NowPlaying)
	assert.Equal(t, 0, s.NowPlaying.LibraryIndex)
	assert.Equal(t, Playing, s.State)
	assert.True(t, s.Connected)
	assert.Equal(t, room, s.ChannelID)
	assert.Equal(t, "alpha", s.Playlist.Name)
	assert.Len(t, s.Upcoming, 2)

	saved, ok := h.store.LoadLastChannel(guild)
	assert.True(t, ok)
	assert.Equal(t, room, saved)
	assert.Equal(t, 1, h.voice.transport().startCount())
}

func TestPlayer_PlayWithoutChannel(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdPlay}), ErrNotConnected)
}

func TestPlayer_PlayWhilePlayingIsNoop(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	h.play()
	assert.Equal(t, 1, h.voice.transport().startCount())
	assert.Equal(t, 1, h.voice.connects)
}

func TestPlayer_NaturalCompletionAdvances(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	tr := h.voice.transport()

	tr.end(nil)
	h.sync()
	assert.Equal(t, 1, h.current().LibraryIndex)
	assert.Equal(t, 1, h.p.Snapshot(0, 0).Drink)

	h.clock.Advance(2 * time.Second)
	tr.end(nil)
	h.sync()
	assert.Equal(t, 2, h.current().LibraryIndex)
	assert.Equal(t, 2, h.p.Snapshot(0, 0).Drink)
	assert.Equal(t, 3, tr.startCount())

	h.files.mu.Lock()
	defer h.files.mu.Unlock()
	assert.Equal(t, 3, h.files.opened)
	assert.Equal(t, 2, h.files.closed)
}

func TestPlayer_StaleCompletionIsIgnored(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 4})
	h.play()
	tr := h.voice.transport()
	stale := tr.callback()
	require.NotNil(t, stale)

	require.NoError(t, h.run(Command{Name: arbiter.CmdSkip}))
	require.Equal(t, 1, h.current().LibraryIndex)

	stale(nil)
	h.sync()
	assert.Equal(t, 1, h.current().LibraryIndex)
	assert.Equal(t, 2, tr.startCount())

	// Still ignored once the newer session is gone too.
	require.NoError(t, h.run(Command{Name: arbiter.CmdStop}))
	stale(nil)
	h.sync()
	assert.Equal(t, 1, h.current().LibraryIndex)
	assert.False(t, h.p.Connected())
}

func TestPlayer_DuplicateCompletionAdvancesOnce(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 4})
	h.play()
	cb := h.voice.transport().callback()

	cb(nil)
	cb(nil)
	h.sync()
	assert.Equal(t, 1, h.current().LibraryIndex)
}

func TestPlayer_CompletionErrorStillAdvances(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	h.voice.transport().end(errors.New("decoder exploded"))
	h.sync()
	assert.Equal(t, 1, h.current().LibraryIndex)
}

func TestPlayer_PauseResume(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdPause}), ErrNotConnected)
	h.play()

	require.NoError(t, h.run(Command{Name: arbiter.CmdPause}))
	assert.Equal(t, Paused, h.p.Snapshot(0, 0).State)
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdPause}), ErrNothingPlaying)

	require.NoError(t, h.run(Command{Name: arbiter.CmdResume}))
	assert.Equal(t, Playing, h.p.Snapshot(0, 0).State)
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdResume}), ErrNothingPlaying)

	require.NoError(t, h.run(Command{Name: arbiter.CmdPlayPause}))
	assert.Equal(t, Paused, h.p.Snapshot(0, 0).State)
	require.NoError(t, h.run(Command{Name: arbiter.CmdPlayPause}))
	assert.Equal(t, Playing, h.p.Snapshot(0, 0).State)
}

func TestPlayer_PlayResumesPaused(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	require.NoError(t, h.run(Command{Name: arbiter.CmdPause}))
	h.play()
	assert.Equal(t, Playing, h.p.Snapshot(0, 0).State)
	assert.Equal(t, 1, h.voice.transport().startCount())
}

func TestPlayer_Previous(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdPrevious}), ErrNoHistory)

	require.NoError(t, h.run(Command{Name: arbiter.CmdSkip}))
	require.NoError(t, h.run(Command{Name: arbiter.CmdSkip}))
	assert.Equal(t, 2, h.p.Snapshot(0, 0).Drink)

	require.NoError(t, h.run(Command{Name: arbiter.CmdPrevious}))
	s := h.p.Snapshot(3, 0)
	assert.Equal(t, 1, s.NowPlaying.LibraryIndex)
	assert.Equal(t, 1, s.Drink)
	require.NotEmpty(t, s.Upcoming)
	assert.Equal(t, 2, s.Upcoming[0].LibraryIndex)
}

func TestPlayer_LoopRepeatsWithoutCounting(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	first := h.current()
	require.NoError(t, h.run(Command{Name: arbiter.CmdLoop}))
	assert.True(t, h.p.Snapshot(0, 0).Loop)

	require.NoError(t, h.run(Command{Name: arbiter.CmdSkip}))
	assert.True(t, first.Is(h.current()))
	assert.Equal(t, 0, h.p.Snapshot(0, 0).Drink)
	assert.Equal(t, 2, h.voice.transport().startCount())

	h.voice.transport().end(nil)
	h.sync()
	assert.True(t, first.Is(h.current()))
	assert.Equal(t, 0, h.p.Snapshot(0, 0).Drink)
}

func TestPlayer_Shuffle(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 5})
	require.NoError(t, h.run(Command{Name: arbiter.CmdShuffle}))
	assert.True(t, h.p.Snapshot(0, 0).Shuffle)
	require.NoError(t, h.run(Command{Name: arbiter.CmdShuffle}))
	assert.False(t, h.p.Snapshot(0, 0).Shuffle)
}

func TestPlayer_Jump(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdJump, Index: 5}), ErrOutOfRange)

	// Not connected: position moves, nothing starts.
	require.NoError(t, h.run(Command{Name: arbiter.CmdJump, Index: 1}))
	assert.Equal(t, 1, h.current().LibraryIndex)
	assert.Nil(t, h.voice.transport())

	h.play()
	require.NoError(t, h.run(Command{Name: arbiter.CmdJump, Index: 2}))
	s := h.p.Snapshot(0, 0)
	assert.Equal(t, 2, s.NowPlaying.LibraryIndex)
	assert.Equal(t, 2, s.Drink)
	assert.Equal(t, 2, h.voice.transport().startCount())
}

func TestPlayer_SwitchPlaylist(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3, "beta": 2})
	h.play()

	err := h.run(Command{Name: arbiter.CmdPlaylist, Playlist: "nope"})
	assert.ErrorIs(t, err, catalog.ErrPlaylistNotFound)

	require.NoError(t, h.run(Command{Name: arbiter.CmdPlaylist, Playlist: "BETA"}))
	s := h.p.Snapshot(0, 0)
	assert.Equal(t, "beta", s.Playlist.Name)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 0, s.NowPlaying.LibraryIndex)
	assert.Equal(t, 2, h.voice.transport().startCount())

	name, ok := h.store.LoadLastPlaylist(guild)
	assert.True(t, ok)
	assert.Equal(t, "beta", name)
	assert.Equal(t, 1, h.store.immediate)
}

func TestPlayer_RestoresSavedPlaylist(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3, "beta": 2}, func(h *harness) {
		h.store.SaveLastPlaylist(guild, "beta")
	})
	assert.Equal(t, "beta", h.p.Snapshot(0, 0).Playlist.Name)
}

func TestPlayer_MissingSavedPlaylistFallsBack(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3}, func(h *harness) {
		h.store.SaveLastPlaylist(guild, "deleted")
	})
	assert.Equal(t, "alpha", h.p.Snapshot(0, 0).Playlist.Name)
}

func TestPlayer_EmptyLibrary(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdPlay, Channel: room}), ErrEmptyCatalog)
}

func TestPlayer_MissingFileIsSkipped(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.files.setMissing("/music/alpha/0.opus")
	h.play()
	assert.Equal(t, 1, h.current().LibraryIndex)
	assert.Equal(t, 1, h.voice.transport().startCount())
}

func TestPlayer_AllFilesMissing(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 2})
	h.files.setMissing("/music/alpha/0.opus", "/music/alpha/1.opus")
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdPlay, Channel: room}), ErrEmptyCatalog)
}

func TestPlayer_StopKeepsPosition(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	require.NoError(t, h.run(Command{Name: arbiter.CmdSkip}))
	pos := h.current()

	require.NoError(t, h.run(Command{Name: arbiter.CmdStop}))
	s := h.p.Snapshot(0, 0)
	assert.False(t, s.Connected)
	assert.Equal(t, Stopped, s.State)
	assert.True(t, pos.Is(s.NowPlaying))
	assert.Equal(t, 1, h.voice.disconnects)
	assert.Equal(t, 0, h.voice.forced)
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdStop}), ErrNotConnected)

	h.play()
	assert.True(t, pos.Is(h.current()))
	assert.Equal(t, 2, h.voice.connects)
}

func TestPlayer_PermissionDenied(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.voice.permErr = errors.New("cannot speak")
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdPlay, Channel: room}), ErrPermission)
	assert.False(t, h.p.Connected())
	assert.Equal(t, 0, h.voice.connects)
}

func TestPlayer_ConnectionLostOnStart(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.voice.startErr = ErrConnectionLost
	assert.ErrorIs(t, h.run(Command{Name: arbiter.CmdPlay, Channel: room}), ErrConnectionLost)
	assert.False(t, h.p.Connected())
	assert.Equal(t, 1, h.voice.forced)
}

func TestPlayer_MoveChannel(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	require.NoError(t, h.run(Command{Name: arbiter.CmdPlay, Channel: other}))
	assert.Equal(t, other, h.p.ChannelID())
	assert.Equal(t, 2, h.voice.connects)
	assert.Equal(t, 1, h.voice.disconnects)
	assert.Equal(t, 1, h.voice.transport().startCount())
}

func TestPlayer_ServerDisconnect(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	pos := h.current()

	h.p.HandleBotVoiceUpdate(context.Background(), nil)
	h.sync()
	assert.False(t, h.p.Connected())
	assert.Equal(t, 1, h.voice.forced)
	assert.True(t, pos.Is(h.current()))
}

func TestPlayer_ServerMove(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()

	moved := other
	h.p.HandleBotVoiceUpdate(context.Background(), &moved)
	h.sync()
	assert.Equal(t, other, h.p.ChannelID())
	saved, _ := h.store.LoadLastChannel(guild)
	assert.Equal(t, other, saved)
	assert.True(t, h.p.Connected())
}

func (h *harness) checkPresence() {
	h.p.CheckPresence(context.Background())
	h.sync()
}

func TestPlayer_PresenceKeepsPosition(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	pos := h.current()

	h.voice.setListeners(0)
	h.checkPresence()
	h.clock.Advance(10 * time.Second)
	h.checkPresence()
	assert.Equal(t, Paused, h.p.Snapshot(0, 0).State)

	h.voice.setListeners(1)
	h.checkPresence()
	assert.Equal(t, Playing, h.p.Snapshot(0, 0).State)

	h.voice.setListeners(0)
	for range 70 {
		h.checkPresence()
		h.clock.Advance(10 * time.Second)
	}
	s := h.p.Snapshot(0, 0)
	assert.False(t, s.Connected)
	assert.Equal(t, 1, h.voice.disconnects)
	assert.Equal(t, 1, h.voice.forced)
	assert.True(t, pos.Is(s.NowPlaying))
	assert.Equal(t, 1, h.voice.transport().startCount())
}

func TestPlayer_ManualPauseIsNotAutoResumed(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()
	require.NoError(t, h.run(Command{Name: arbiter.CmdPause}))

	h.voice.setListeners(0)
	h.checkPresence()
	h.clock.Advance(30 * time.Second)
	h.checkPresence()

	h.voice.setListeners(1)
	h.checkPresence()
	assert.Equal(t, Paused, h.p.Snapshot(0, 0).State)
}

func TestPlayer_HangRestarts(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()

	h.p.CheckHang(context.Background())
	h.sync()
	assert.Equal(t, 0, h.current().LibraryIndex)

	h.clock.Advance(12 * time.Minute)
	h.p.CheckHang(context.Background())
	h.sync()
	assert.Equal(t, 1, h.current().LibraryIndex)
	assert.Equal(t, 2, h.voice.transport().startCount())
}

func TestPlayer_ButtonCooldown(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	h.play()

	require.NoError(t, h.run(Command{Name: arbiter.CmdSkip, Button: true}))
	v := h.p.Dispatch(context.Background(), Command{User: user, Name: arbiter.CmdSkip, Button: true})
	assert.False(t, v.Accepted)
	assert.Equal(t, arbiter.ReasonCooldown, v.Reason)
	assert.True(t, v.Retry > 0)

	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.run(Command{Name: arbiter.CmdSkip, Button: true}))
	assert.Equal(t, 2, h.current().LibraryIndex)
}

func TestPlayer_UnknownCommand(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})
	assert.Error(t, h.run(Command{Name: "dance"}))
}

func TestRegistry(t *testing.T) {
	h := newHarness(t, map[string]int{"alpha": 3})

	assert.Same(t, h.p, h.reg.Get(guild))
	got, ok := h.reg.Lookup(guild)
	assert.True(t, ok)
	assert.Same(t, h.p, got)
	_, ok = h.reg.Lookup(guild + 1)
	assert.False(t, ok)

	second := h.reg.Get(guild + 1)
	require.NotNil(t, second)
	assert.NotSame(t, h.p, second)
	assert.Len(t, h.reg.Players(), 2)

	assert.False(t, h.reg.AnyConnected())
	h.play()
	assert.True(t, h.reg.AnyConnected())

	h.reg.Remove(context.Background(), guild+1)
	assert.Len(t, h.reg.Players(), 1)

	h.reg.Shutdown(context.Background())
	assert.Nil(t, h.reg.Get(guild))
	assert.Empty(t, h.reg.Players())
	assert.Equal(t, 1, h.voice.disconnects)
}
