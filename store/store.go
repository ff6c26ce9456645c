// Package store keeps the little state that must survive a restart: the last
// voice channel and playlist per guild, plus loader bookkeeping.
package store

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/sys"
)

const (
	MsgStoreFlushFailed = "Failed to flush state: %v"
	MsgStoreCorrupt     = "State file %s is corrupt, moved to %s: %v"
)

// Store is what players and the loader persist through. Saves are
// fire-and-forget; loads never fail, a miss just reports false.
type Store interface {
	LoadLastChannel(guildID snowflake.ID) (snowflake.ID, bool)
	SaveLastChannel(guildID, channelID snowflake.ID)
	LoadLastPlaylist(guildID snowflake.ID) (string, bool)
	SaveLastPlaylist(guildID snowflake.ID, name string)
	// SaveLastPlaylistNow writes through instead of waiting for the next flush.
	SaveLastPlaylistNow(guildID snowflake.ID, name string)
	Meta(key string) (string, bool)
	SetMeta(key, value string)
	Flush() error
	Close() error
}

// Open picks the backend named in cfg and creates its directory.
func Open(ctx context.Context, cfg *sys.Config) (Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	switch cfg.StoreBackend {
	case sys.StoreBackendSQLite:
		return OpenSQLite(ctx, filepath.Join(cfg.DataDir, sys.ProjectName+".db"))
	default:
		return OpenFile(filepath.Join(cfg.DataDir, "state.json"))
	}
}

// RunFlusher flushes s every interval until ctx is done, then once more.
func RunFlusher(ctx context.Context, s Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(); err != nil {
				sys.LogError(MsgStoreFlushFailed, err)
			}
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				sys.LogError(MsgStoreFlushFailed, err)
			}
		}
	}
}

// state is the in-memory view every backend serves loads from. dirty holds
// guilds changed since the last flush.
type state struct {
	mu        sync.Mutex
	channels  map[snowflake.ID]snowflake.ID
	playlists map[snowflake.ID]string
	meta      map[string]string
	dirty     map[snowflake.ID]struct{}
	metaDirty bool
}

func newState() *state {
	return &state{
		channels:  make(map[snowflake.ID]snowflake.ID),
		playlists: make(map[snowflake.ID]string),
		meta:      make(map[string]string),
		dirty:     make(map[snowflake.ID]struct{}),
	}
}

func (s *state) LoadLastChannel(guildID snowflake.ID) (snowflake.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.channels[guildID]
	return id, ok
}

func (s *state) SaveLastChannel(guildID, channelID snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels[guildID] == channelID {
		return
	}
	s.channels[guildID] = channelID
	s.dirty[guildID] = struct{}{}
}

func (s *state) LoadLastPlaylist(guildID snowflake.ID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.playlists[guildID]
	return name, ok
}

func (s *state) SaveLastPlaylist(guildID snowflake.ID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.playlists[guildID]; ok && cur == name {
		return
	}
	s.playlists[guildID] = name
	s.dirty[guildID] = struct{}{}
}

func (s *state) Meta(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.meta[key]
	return v, ok
}

func (s *state) SetMeta(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.meta[key]; ok && cur == value {
		return
	}
	s.meta[key] = value
	s.metaDirty = true
}

// record is one guild's persisted row.
type record struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Playlist  string
}

// takeDirty returns the changed guilds and meta, clearing the marks. Callers
// that fail to persist must hand them back with markDirty.
func (s *state) takeDirty() ([]record, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 && !s.metaDirty {
		return nil, nil
	}

	out := make([]record, 0, len(s.dirty))
	for id := range s.dirty {
		out = append(out, record{GuildID: id, ChannelID: s.channels[id], Playlist: s.playlists[id]})
	}
	var meta map[string]string
	if s.metaDirty {
		meta = maps.Clone(s.meta)
	}
	clear(s.dirty)
	s.metaDirty = false
	return out, meta
}

func (s *state) markDirty(recs []record, meta map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.dirty[r.GuildID] = struct{}{}
	}
	if meta != nil {
		s.metaDirty = true
	}
}

func (s *state) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}
