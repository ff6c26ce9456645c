package proc

import (
	"context"
	"time"

	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/player"
	"github.com/leeineian/jill/store"
	"github.com/leeineian/jill/sys"
	"github.com/leeineian/jill/watchdog"
)

// RegisterDaemons wires the background loops started once the client is
// ready: presence and hang watchdogs, the library watcher and the store
// flusher.
func RegisterDaemons(reg *player.Registry, lib *catalog.Library, st store.Store, t *sys.Timings) {
	idle := func(d time.Duration) time.Duration { return d * time.Duration(t.Hang.IdleFactor) }

	sys.RegisterDaemon("Presence", func(ctx context.Context) (bool, func(), func()) {
		if !t.Presence.AutoPause && !t.Presence.AutoDisconnect {
			return false, nil, nil
		}
		loop := &watchdog.Loop{
			Name:         "Presence",
			Interval:     t.Presence.Interval,
			IdleInterval: idle(t.Presence.Interval),
			Active:       reg.AnyConnected,
			Tick:         reg.CheckPresence,
		}
		return true, func() { loop.Run(ctx) }, nil
	})

	sys.RegisterDaemon("Hang", func(ctx context.Context) (bool, func(), func()) {
		loop := &watchdog.Loop{
			Name:         "Hang",
			Interval:     t.Hang.Interval,
			IdleInterval: idle(t.Hang.Interval),
			Active:       reg.AnyConnected,
			Tick:         reg.CheckHang,
		}
		return true, func() { loop.Run(ctx) }, nil
	})

	sys.RegisterDaemon("Library", func(ctx context.Context) (bool, func(), func()) {
		return true, func() {
			if err := lib.Watch(ctx, t.Library.WatchDebounce); err != nil {
				sys.LogWarn("Library watcher stopped: %v", err)
			}
		}, nil
	})

	sys.RegisterDaemon("Store", func(ctx context.Context) (bool, func(), func()) {
		return true, func() { store.RunFlusher(ctx, st, t.Store.FlushInterval) }, func() {
			if err := st.Flush(); err != nil {
				sys.LogError(store.MsgStoreFlushFailed, err)
			}
		}
	})
}
