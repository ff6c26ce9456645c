package player

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/sys"
	"github.com/leeineian/jill/watchdog"
)

// CheckPresence queues a presence evaluation. It is called on every voice
// state change in the guild and by the polling watchdog.
func (p *Player) CheckPresence(ctx context.Context) {
	if !p.Connected() {
		return
	}
	if _, err := p.arb.Enqueue(ctx, "presence", p.applyPresence, true); err != nil {
		sys.LogDebug("[%s] Presence check dropped: %v", p.guildID, err)
	}
}

func (p *Player) applyPresence(ctx context.Context) error {
	p.mu.RLock()
	t, channelID, manual := p.transport, p.channelID, p.manualPaused
	p.mu.RUnlock()
	if t == nil {
		return nil
	}

	alone := p.deps.Voice.Listeners(p.guildID, channelID) == 0
	action := p.presence.Evaluate(p.deps.Now(), alone, t.IsPlaying() && !t.IsPaused())

	switch action {
	case watchdog.ActionPause:
		t.Pause()
		sys.LogWatchdog("[%s] Alone in voice, auto-paused", p.guildID)
	case watchdog.ActionResume:
		if manual || !t.IsPaused() {
			return nil
		}
		t.Resume()
		sys.LogWatchdog("[%s] Listeners are back, resumed", p.guildID)
	case watchdog.ActionDisconnect:
		sys.LogWatchdog("[%s] Alone too long, disconnecting", p.guildID)
		p.disconnect(ctx, true)
	}
	return nil
}

// CheckHang queues a hang check. A wedged transport is stopped and the next
// track started.
func (p *Player) CheckHang(ctx context.Context) {
	if !p.Connected() {
		return
	}
	if _, err := p.arb.Enqueue(ctx, "hang", p.applyHang, true); err != nil {
		sys.LogDebug("[%s] Hang check dropped: %v", p.guildID, err)
	}
}

func (p *Player) applyHang(ctx context.Context) error {
	t := p.currentTransport()
	if t == nil {
		return nil
	}
	var attempt uint64
	if sess := p.sessions.Current(); sess != nil && !sess.Cancelled() {
		attempt = sess.ID
	}
	if !p.hang.Observe(attempt, t.IsPlaying() && !t.IsPaused(), p.deps.Now()) {
		return nil
	}

	sys.LogError("[%s] Playback hung, restarting", p.guildID)
	p.sessions.CancelCurrent()
	p.settle(t)
	return p.advanceAndPlay(ctx)
}

// HandleBotVoiceUpdate reacts to the bot's own voice state changing outside
// our control: a kick clears the transport, a move updates the channel.
func (p *Player) HandleBotVoiceUpdate(ctx context.Context, channelID *snowflake.ID) {
	_, err := p.arb.Enqueue(ctx, "voice update", func(ctx context.Context) error {
		p.mu.RLock()
		t, current, moving := p.transport, p.channelID, p.reconnecting
		p.mu.RUnlock()
		if t == nil || moving {
			return nil
		}

		if channelID == nil {
			sys.LogVoice("[%s] Disconnected by the server", p.guildID)
			p.disconnect(ctx, true)
			return nil
		}
		if *channelID != current {
			p.mu.Lock()
			p.channelID = *channelID
			p.mu.Unlock()
			p.deps.Store.SaveLastChannel(p.guildID, *channelID)
			sys.LogVoice("[%s] Moved to %s", p.guildID, *channelID)
			return p.applyPresence(ctx)
		}
		return nil
	}, true)
	if err != nil {
		sys.LogDebug("[%s] Voice update dropped: %v", p.guildID, err)
	}
}
