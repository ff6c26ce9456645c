package player

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/sys"
)

// Everything in this file runs on the serial worker.

func (p *Player) play(ctx context.Context, channelID snowflake.ID) error {
	if channelID == 0 {
		channelID = p.ChannelID()
	}
	if channelID == 0 {
		return ErrNotConnected
	}
	if err := p.connect(ctx, channelID); err != nil {
		return err
	}
	if err := p.ensureCatalog(); err != nil {
		return err
	}

	t := p.currentTransport()
	if t.IsPaused() {
		t.Resume()
		p.setManualPaused(false)
		p.presence.Forget()
		return nil
	}
	if t.IsPlaying() {
		return nil
	}

	p.mu.Lock()
	if p.queue.Current() == nil {
		p.queue.Advance()
	}
	p.mu.Unlock()
	return p.playCurrent(ctx)
}

func (p *Player) pause(context.Context) error {
	t := p.currentTransport()
	if t == nil {
		return ErrNotConnected
	}
	if !t.IsPlaying() || t.IsPaused() {
		return ErrNothingPlaying
	}
	t.Pause()
	p.setManualPaused(true)
	p.presence.Forget()
	sys.LogPlayer("[%s] Paused", p.guildID)
	return nil
}

func (p *Player) resume(context.Context) error {
	t := p.currentTransport()
	if t == nil {
		return ErrNotConnected
	}
	if !t.IsPaused() {
		return ErrNothingPlaying
	}
	t.Resume()
	p.setManualPaused(false)
	p.presence.Forget()
	sys.LogPlayer("[%s] Resumed", p.guildID)
	return nil
}

func (p *Player) playPause(ctx context.Context) error {
	t := p.currentTransport()
	if t == nil {
		return ErrNotConnected
	}
	if t.IsPaused() {
		return p.resume(ctx)
	}
	if t.IsPlaying() {
		return p.pause(ctx)
	}
	return p.playCurrent(ctx)
}

func (p *Player) skip(ctx context.Context) error {
	if p.currentTransport() == nil {
		return ErrNotConnected
	}
	p.mu.RLock()
	cur := p.queue.Current()
	p.mu.RUnlock()
	if cur == nil {
		return ErrNothingPlaying
	}
	return p.advanceAndPlay(ctx)
}

func (p *Player) previous(ctx context.Context) error {
	if p.currentTransport() == nil {
		return ErrNotConnected
	}

	p.mu.Lock()
	looping := p.queue.Loop()
	t := p.queue.Previous()
	if t != nil && !looping {
		p.drink--
	}
	p.mu.Unlock()

	if t == nil {
		return ErrNoHistory
	}
	return p.playCurrent(ctx)
}

// stop leaves voice but keeps the queue position for the next play.
func (p *Player) stop(ctx context.Context) error {
	if p.currentTransport() == nil {
		return ErrNotConnected
	}
	p.disconnect(ctx, false)
	sys.LogPlayer("[%s] Stopped", p.guildID)
	return nil
}

func (p *Player) toggleShuffle(context.Context) error {
	p.mu.Lock()
	on := !p.queue.Shuffle()
	p.queue.SetShuffle(on)
	p.mu.Unlock()
	sys.LogPlayer("[%s] Shuffle %v", p.guildID, on)
	return nil
}

func (p *Player) toggleLoop(context.Context) error {
	p.mu.Lock()
	on := !p.queue.Loop()
	p.queue.SetLoop(on)
	p.mu.Unlock()
	sys.LogPlayer("[%s] Loop %v", p.guildID, on)
	return nil
}

func (p *Player) jump(ctx context.Context, index int) error {
	if err := p.ensureCatalog(); err != nil {
		return err
	}

	p.mu.Lock()
	t := p.queue.Jump(index)
	if t != nil && !p.queue.Loop() {
		p.drink++
	}
	p.mu.Unlock()

	if t == nil {
		return ErrOutOfRange
	}
	if p.currentTransport() == nil {
		return nil
	}
	return p.playCurrent(ctx)
}

func (p *Player) switchPlaylist(ctx context.Context, name string) error {
	pl, err := p.deps.Library.Find(name)
	if err != nil {
		return err
	}
	if err := p.loadPlaylist(pl); err != nil {
		return err
	}
	p.deps.Store.SaveLastPlaylistNow(p.guildID, pl.Name)

	p.mu.Lock()
	p.queue.Advance()
	p.mu.Unlock()

	if p.currentTransport() == nil {
		return nil
	}
	return p.playCurrent(ctx)
}

// ensureCatalog loads the saved playlist, or the first one, when the queue
// has no catalog yet.
func (p *Player) ensureCatalog() error {
	p.mu.RLock()
	loaded := p.queue.Len() > 0
	p.mu.RUnlock()
	if loaded {
		return nil
	}

	var (
		pl  catalog.Playlist
		err error
	)
	if name, ok := p.deps.Store.LoadLastPlaylist(p.guildID); ok {
		pl, err = p.deps.Library.Find(name)
		if err != nil {
			sys.LogWarn("[%s] Saved playlist %q is gone: %v", p.guildID, name, err)
		}
	}
	if pl.Name == "" {
		if pl, err = p.deps.Library.Default(); err != nil {
			return fmt.Errorf("%w: %v", ErrEmptyCatalog, err)
		}
	}
	return p.loadPlaylist(pl)
}

func (p *Player) loadPlaylist(pl catalog.Playlist) error {
	tracks, err := p.deps.Library.Load(pl)
	if err != nil {
		return fmt.Errorf("load playlist %s: %w", pl.Name, err)
	}
	if len(tracks) == 0 {
		return ErrEmptyCatalog
	}

	if t := p.currentTransport(); t != nil && (t.IsPlaying() || t.IsPaused()) {
		p.sessions.CancelCurrent()
		p.settle(t)
	}

	p.mu.Lock()
	p.queue.SetCatalog(tracks)
	p.playlist = pl
	p.mu.Unlock()

	p.deps.Store.SaveLastPlaylist(p.guildID, pl.Name)
	sys.LogPlayer("[%s] Loaded playlist %s (%d tracks)", p.guildID, pl.DisplayName, len(tracks))
	return nil
}

// connect joins channelID, moving from another channel if needed.
func (p *Player) connect(ctx context.Context, channelID snowflake.ID) error {
	p.mu.RLock()
	t, current := p.transport, p.channelID
	p.mu.RUnlock()
	if t != nil && current == channelID {
		return nil
	}

	if err := p.deps.Voice.CheckPermissions(p.guildID, channelID); err != nil {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}

	if t != nil {
		p.mu.Lock()
		p.reconnecting = true
		p.mu.Unlock()
		defer func() {
			p.mu.Lock()
			p.reconnecting = false
			p.mu.Unlock()
		}()
		sys.LogVoice("[%s] Moving from %s to %s", p.guildID, current, channelID)
		p.disconnect(ctx, false)
	}

	nt, err := p.deps.Voice.Connect(ctx, p.guildID, channelID)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", channelID, err)
	}

	p.mu.Lock()
	p.transport = nt
	p.channelID = channelID
	p.manualPaused = false
	p.mu.Unlock()

	p.presence.Reset()
	p.deps.Store.SaveLastChannel(p.guildID, channelID)
	sys.LogVoice("[%s] Connected to %s", p.guildID, channelID)
	return nil
}

// disconnect stops playback and leaves voice. Queue position is kept.
func (p *Player) disconnect(ctx context.Context, force bool) {
	p.sessions.CancelCurrent()

	p.mu.Lock()
	t := p.transport
	p.transport = nil
	p.channelID = 0
	p.manualPaused = false
	p.suppress = true
	p.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	if err := p.deps.Voice.Disconnect(ctx, p.guildID, force); err != nil {
		sys.LogWarn("[%s] Disconnect failed: %v", p.guildID, err)
	}

	p.setSuppress(false)
	p.presence.MarkDisconnected()
}

func (p *Player) setManualPaused(on bool) {
	p.mu.Lock()
	p.manualPaused = on
	p.mu.Unlock()
}
