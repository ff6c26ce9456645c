package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leeineian/jill/sys"
)

// Library caches the playlist list until something invalidates it: an
// explicit Rescan, or a filesystem change seen by Watch.
type Library struct {
	scanner *Scanner

	mu         sync.RWMutex
	playlists  []Playlist
	stale      bool
	generation uint64
}

func NewLibrary(scanner *Scanner) *Library {
	return &Library{scanner: scanner, stale: true}
}

func (l *Library) Root() string {
	return l.scanner.Root
}

// Playlists returns the cached list, scanning first if it is stale.
func (l *Library) Playlists() ([]Playlist, error) {
	l.mu.RLock()
	if !l.stale {
		out := append([]Playlist(nil), l.playlists...)
		l.mu.RUnlock()
		return out, nil
	}
	l.mu.RUnlock()
	return l.Rescan()
}

func (l *Library) Rescan() ([]Playlist, error) {
	playlists, err := l.scanner.DiscoverPlaylists()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.playlists = playlists
	l.stale = false
	l.generation++
	l.mu.Unlock()

	sys.LogCatalog("Discovered %d playlists in %s", len(playlists), l.scanner.Root)
	return append([]Playlist(nil), playlists...), nil
}

func (l *Library) Invalidate() {
	l.mu.Lock()
	l.stale = true
	l.mu.Unlock()
}

// Generation increments on every completed scan.
func (l *Library) Generation() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.generation
}

// Find matches a playlist by directory name or display name, ignoring case.
func (l *Library) Find(name string) (Playlist, error) {
	playlists, err := l.Playlists()
	if err != nil {
		return Playlist{}, err
	}
	for _, p := range playlists {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.DisplayName, name) {
			return p, nil
		}
	}
	return Playlist{}, fmt.Errorf("%w: %s", ErrPlaylistNotFound, name)
}

// Default is the first playlist in sort order.
func (l *Library) Default() (Playlist, error) {
	playlists, err := l.Playlists()
	if err != nil {
		return Playlist{}, err
	}
	if len(playlists) == 0 {
		return Playlist{}, ErrPlaylistNotFound
	}
	return playlists[0], nil
}

func (l *Library) Load(p Playlist) ([]*Track, error) {
	return l.scanner.LoadTracks(p.Path)
}

// TrackNames lists display names in play order without minting track IDs.
func (l *Library) TrackNames(p Playlist) ([]string, error) {
	files, err := l.scanner.audioFiles(p.Path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = DisplayName(f)
	}
	return names, nil
}

// Watch invalidates the cache when the music folder or any playlist directory
// changes. Bursts of events collapse into one invalidation after debounce.
// It blocks until ctx is done.
func (l *Library) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := l.watchTree(watcher); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			sys.LogDebug("Catalog change: %s", ev)
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			sys.LogWarn("Catalog watcher error: %v", err)
		case <-timer.C:
			l.Invalidate()
			sys.LogCatalog("Music folder changed; playlists will be rescanned")
			if err := l.watchTree(watcher); err != nil {
				sys.LogWarn("Catalog watcher refresh failed: %v", err)
			}
		}
	}
}

func (l *Library) watchTree(watcher *fsnotify.Watcher) error {
	root := l.scanner.Root
	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			_ = watcher.Add(filepath.Join(root, e.Name()))
		}
	}
	return nil
}
