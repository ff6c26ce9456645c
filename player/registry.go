package player

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/arbiter"
	"github.com/leeineian/jill/engine"
	"github.com/leeineian/jill/sys"
	"github.com/leeineian/jill/watchdog"
)

// Registry owns one Player per guild. Players are created on first use and
// torn down only by Remove or Shutdown.
type Registry struct {
	deps   Deps
	shared *arbiter.Shared

	mu      sync.Mutex
	players map[snowflake.ID]*Player
	closed  bool
}

func NewRegistry(deps Deps) *Registry {
	deps.fill()
	return &Registry{
		deps:    deps,
		shared:  arbiter.NewShared(deps.Timings, deps.Now),
		players: make(map[snowflake.ID]*Player),
	}
}

// Get returns the guild's player, creating it and restoring its last
// playlist on first use. It returns nil after Shutdown.
func (r *Registry) Get(guildID snowflake.ID) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if p, ok := r.players[guildID]; ok {
		return p
	}

	t := r.deps.Timings
	p := New(guildID, r.deps,
		engine.NewQueue(engine.WithHistorySize(t.Playback.HistorySize)),
		arbiter.New(guildID, r.shared, t, r.deps.Protect, r.deps.Now),
		watchdog.NewPresence(t.Presence),
	)
	r.players[guildID] = p
	if _, err := p.Restore(context.Background()); err != nil {
		sys.LogDebug("[%s] Restore not queued: %v", guildID, err)
	}
	sys.LogPlayer("[%s] Player created", guildID)
	return p
}

func (r *Registry) Lookup(guildID snowflake.ID) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[guildID]
	return p, ok
}

// Players returns a snapshot of all live players.
func (r *Registry) Players() []*Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	return out
}

// AnyConnected reports whether any player holds a voice connection.
func (r *Registry) AnyConnected() bool {
	for _, p := range r.Players() {
		if p.Connected() {
			return true
		}
	}
	return false
}

func (r *Registry) CheckPresence(ctx context.Context) {
	for _, p := range r.Players() {
		p.CheckPresence(ctx)
	}
}

func (r *Registry) CheckHang(ctx context.Context) {
	for _, p := range r.Players() {
		p.CheckHang(ctx)
	}
}

// Remove closes and forgets one guild's player.
func (r *Registry) Remove(ctx context.Context, guildID snowflake.ID) {
	r.mu.Lock()
	p, ok := r.players[guildID]
	delete(r.players, guildID)
	r.mu.Unlock()
	if !ok {
		return
	}
	p.Close(ctx)
	r.shared.Breaker.Forget(guildID)
}

// Shutdown closes every player. Later Get calls return nil.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	players := r.players
	r.players = make(map[snowflake.ID]*Player)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Close(ctx)
		}()
	}
	wg.Wait()
	sys.LogPlayer("Closed %d players", len(players))
}
