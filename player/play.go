package player

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/engine"
	"github.com/leeineian/jill/sys"
)

// advanceAndPlay moves to the next track and starts it. Runs on the worker.
func (p *Player) advanceAndPlay(ctx context.Context) error {
	p.mu.Lock()
	looping := p.queue.Loop()
	t := p.queue.Advance()
	if t != nil && !looping {
		p.drink++
	}
	p.mu.Unlock()

	if t == nil {
		return ErrEmptyCatalog
	}
	return p.playCurrent(ctx)
}

// playCurrent starts the now playing track on the transport. Missing files
// are skipped, at most once around the catalog. Runs on the worker.
func (p *Player) playCurrent(ctx context.Context) error {
	t := p.currentTransport()
	if t == nil {
		return ErrNotConnected
	}

	p.mu.RLock()
	track := p.queue.Current()
	size := p.queue.Len()
	p.mu.RUnlock()
	if track == nil {
		return ErrEmptyCatalog
	}

	var src io.ReadCloser
	for misses := 0; ; misses++ {
		var err error
		src, err = p.deps.Open(track.Path)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		sys.LogWarn("[%s] Missing file %s, skipping", p.guildID, track.Path)
		if misses+1 >= size {
			return ErrEmptyCatalog
		}
		p.mu.Lock()
		track = p.queue.Advance()
		p.mu.Unlock()
		if track == nil {
			return ErrEmptyCatalog
		}
	}

	sess := p.sessions.Mint(track.ID)
	p.settle(t)

	var once sync.Once
	release := func() {
		once.Do(func() { _ = src.Close() })
	}

	if err := t.Start(src, func(err error) { p.onFinished(sess, track, err, release) }); err != nil {
		release()
		if errors.Is(err, ErrConnectionLost) {
			sys.LogWarn("[%s] Voice connection lost while starting %s", p.guildID, track)
			p.disconnect(ctx, true)
		}
		return err
	}

	sys.LogPlayer("[%s] Now playing: %s", p.guildID, track)
	return nil
}

// settle stops whatever is playing and waits briefly for the transport to
// go quiet, with completions suppressed.
func (p *Player) settle(t Transport) {
	if !t.IsPlaying() && !t.IsPaused() {
		return
	}
	pt := p.timings.Playback

	p.setSuppress(true)
	defer p.setSuppress(false)

	t.Stop()
	deadline := time.Now().Add(pt.SettleMaxWait)
	for t.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(pt.SettlePoll)
	}
	time.Sleep(pt.SettleDelay)
}

// onFinished runs on the transport goroutine. It only reads state, then hands
// the advance to the worker as a priority op.
func (p *Player) onFinished(sess *engine.Session, track *catalog.Track, err error, release func()) {
	switch {
	case err == nil:
	case routine(err):
		sys.LogDebug("[%s] %s ended: %v", p.guildID, track, err)
	default:
		sys.LogWarn("[%s] %s failed: %v", p.guildID, track, err)
	}
	release()

	if !p.authoritative(sess, track.ID) {
		sys.LogDebug("[%s] Ignoring completion of %s (session %d)", p.guildID, track, sess.ID)
		return
	}

	p.mu.Lock()
	now := p.deps.Now()
	if !p.lastCallback.IsZero() && now.Sub(p.lastCallback) < p.timings.Playback.CallbackMinInterval {
		p.mu.Unlock()
		sys.LogDebug("[%s] Dropping duplicate completion of %s", p.guildID, track)
		return
	}
	p.lastCallback = now
	p.mu.Unlock()

	_, qerr := p.arb.Enqueue(context.Background(), "advance", func(ctx context.Context) error {
		if !p.authoritative(sess, track.ID) {
			return nil
		}
		return p.advanceAndPlay(ctx)
	}, true)
	if qerr != nil {
		sys.LogWarn("[%s] Could not queue next track: %v", p.guildID, qerr)
	}
}

func routine(err error) bool {
	return errors.Is(err, ErrStopped) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}
