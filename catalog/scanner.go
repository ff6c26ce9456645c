package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/leeineian/jill/sys"
)

var ErrPlaylistNotFound = errors.New("playlist not found")

// Scanner walks the music folder. Subdirectories are playlists; when there
// are none, loose files in the root form the RootPlaylist.
type Scanner struct {
	Root       string
	MaxTracks  int
	Extensions []string
	IDs        *IDAllocator
}

func NewScanner(root string, lib sys.LibraryTimings, ids *IDAllocator) *Scanner {
	return &Scanner{
		Root:       root,
		MaxTracks:  lib.MaxPlaylistSize,
		Extensions: lib.Extensions,
		IDs:        ids,
	}
}

// DiscoverPlaylists lists playlists sorted the same way as tracks: numeric
// prefix first, then name.
func (s *Scanner) DiscoverPlaylists() ([]Playlist, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("read music folder: %w", err)
	}

	var playlists []Playlist
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.Root, e.Name())
		files, err := s.audioFiles(path)
		if err != nil {
			sys.LogWarn("Skipping playlist %s: %v", e.Name(), err)
			continue
		}
		if len(files) == 0 {
			continue
		}
		playlists = append(playlists, Playlist{
			Name:        e.Name(),
			Path:        absPath(path),
			TrackCount:  len(files),
			DisplayName: PlaylistDisplayName(e.Name()),
		})
	}

	if len(playlists) == 0 {
		files, err := s.audioFiles(s.Root)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			playlists = append(playlists, Playlist{
				Name:        RootPlaylist,
				Path:        absPath(s.Root),
				TrackCount:  len(files),
				DisplayName: "Library",
			})
		}
	}

	slices.SortStableFunc(playlists, func(a, b Playlist) int {
		return compareNames(a.Name, b.Name)
	})
	return playlists, nil
}

// LoadTracks returns a fresh generation of Tracks for the playlist directory.
// LibraryIndex follows sorted order starting at 0.
func (s *Scanner) LoadTracks(playlistPath string) ([]*Track, error) {
	files, err := s.audioFiles(playlistPath)
	if err != nil {
		return nil, err
	}

	tracks := make([]*Track, 0, len(files))
	for i, name := range files {
		tracks = append(tracks, &Track{
			ID:           s.IDs.Next(),
			Path:         filepath.Join(playlistPath, name),
			LibraryIndex: i,
			DisplayName:  DisplayName(name),
		})
	}
	return tracks, nil
}

func (s *Scanner) audioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !s.isAudio(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}

	slices.SortStableFunc(files, compareNames)
	if s.MaxTracks > 0 && len(files) > s.MaxTracks {
		sys.LogCatalog("Playlist %s has %d files; keeping the first %d", filepath.Base(dir), len(files), s.MaxTracks)
		files = files[:s.MaxTracks]
	}
	return files, nil
}

func (s *Scanner) isAudio(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(s.Extensions, ext)
}

func compareNames(a, b string) int {
	ka, kb := sortKey(a), sortKey(b)
	if ka != kb {
		return ka - kb
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
