package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leeineian/jill/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o644))
}

func newTestScanner(root string) *Scanner {
	return NewScanner(root, sys.DefaultTimings().Library, NewIDAllocator())
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"01 - Intro.opus", "Intro"},
		{"12-Outro.ogg", "Outro"},
		{"No Number.opus", "No Number"},
		{"07 - .opus", "07 - "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DisplayName(tt.in), tt.in)
	}
	assert.Equal(t, "Vol. 2", PlaylistDisplayName("03 - Vol. 2"))
}

func TestIDAllocator(t *testing.T) {
	ids := NewIDAllocator()
	assert.Equal(t, int64(1), ids.Next())
	assert.Equal(t, int64(2), ids.Next())

	ids.Reset()
	assert.Equal(t, int64(1), ids.Next())
}

func TestTrackIdentity(t *testing.T) {
	a := &Track{ID: 1, Path: "/x.opus"}
	b := &Track{ID: 2, Path: "/x.opus"}
	assert.False(t, a.Is(b), "same path, different generation")
	assert.True(t, a.Is(&Track{ID: 1}))
	assert.True(t, (*Track)(nil).Is(nil))
}

func TestScanner_LoadTracksOrder(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "01 - Chill")
	touch(t, filepath.Join(dir, "10 - Ten.opus"))
	touch(t, filepath.Join(dir, "2 - Two.opus"))
	touch(t, filepath.Join(dir, "Loose.ogg"))
	touch(t, filepath.Join(dir, "cover.jpg"))
	touch(t, filepath.Join(dir, ".hidden.opus"))

	s := newTestScanner(root)
	tracks, err := s.LoadTracks(dir)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	assert.Equal(t, "Two", tracks[0].DisplayName)
	assert.Equal(t, "Ten", tracks[1].DisplayName)
	assert.Equal(t, "Loose", tracks[2].DisplayName)
	for i, tr := range tracks {
		assert.Equal(t, i, tr.LibraryIndex)
	}

	again, err := s.LoadTracks(dir)
	require.NoError(t, err)
	assert.NotEqual(t, tracks[0].ID, again[0].ID, "rescan yields a new generation")
}

func TestScanner_MaxTracks(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"1 - a.opus", "2 - b.opus", "3 - c.opus"} {
		touch(t, filepath.Join(root, "pl", n))
	}
	s := newTestScanner(root)
	s.MaxTracks = 2

	tracks, err := s.LoadTracks(filepath.Join(root, "pl"))
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
}

func TestScanner_DiscoverPlaylists(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "02 - Rock", "a.opus"))
	touch(t, filepath.Join(root, "01 - Jazz", "b.opus"))
	touch(t, filepath.Join(root, "Empty", "notes.txt"))
	touch(t, filepath.Join(root, ".trash", "c.opus"))

	playlists, err := newTestScanner(root).DiscoverPlaylists()
	require.NoError(t, err)
	require.Len(t, playlists, 2)
	assert.Equal(t, "01 - Jazz", playlists[0].Name)
	assert.Equal(t, "Jazz", playlists[0].DisplayName)
	assert.Equal(t, 1, playlists[0].TrackCount)
	assert.Equal(t, "Rock", playlists[1].DisplayName)
}

func TestScanner_RootPlaylist(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.opus"))
	touch(t, filepath.Join(root, "b.ogg"))

	playlists, err := newTestScanner(root).DiscoverPlaylists()
	require.NoError(t, err)
	require.Len(t, playlists, 1)
	assert.Equal(t, RootPlaylist, playlists[0].Name)
	assert.Equal(t, 2, playlists[0].TrackCount)
}

func TestLibrary_FindAndInvalidate(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "01 - Jazz", "a.opus"))
	lib := NewLibrary(newTestScanner(root))

	p, err := lib.Find("jazz")
	require.NoError(t, err)
	assert.Equal(t, "01 - Jazz", p.Name)
	gen := lib.Generation()

	_, err = lib.Find("rock")
	assert.ErrorIs(t, err, ErrPlaylistNotFound)

	touch(t, filepath.Join(root, "02 - Rock", "b.opus"))
	_, err = lib.Find("rock")
	assert.ErrorIs(t, err, ErrPlaylistNotFound, "cache is still warm")

	lib.Invalidate()
	p, err = lib.Find("rock")
	require.NoError(t, err)
	assert.Equal(t, "Rock", p.DisplayName)
	assert.Greater(t, lib.Generation(), gen)
}

func TestLibrary_TrackNames(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Jazz", "2 - Blue.opus"))
	touch(t, filepath.Join(root, "Jazz", "1 - So What.opus"))
	ids := NewIDAllocator()
	lib := NewLibrary(NewScanner(root, sys.DefaultTimings().Library, ids))

	p, err := lib.Find("jazz")
	require.NoError(t, err)
	names, err := lib.TrackNames(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"So What", "Blue"}, names)
	assert.Equal(t, int64(1), ids.Next(), "listing names does not mint IDs")
}

func TestLibrary_WatchInvalidates(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "01 - Jazz", "a.opus"))
	lib := NewLibrary(newTestScanner(root))
	_, err := lib.Playlists()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- lib.Watch(ctx, 20*time.Millisecond) }()

	// Give the watcher a moment to register before touching the tree.
	time.Sleep(50 * time.Millisecond)
	touch(t, filepath.Join(root, "02 - Rock", "b.opus"))

	assert.Eventually(t, func() bool {
		lib.mu.RLock()
		defer lib.mu.RUnlock()
		return lib.stale
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
