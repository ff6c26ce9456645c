package catalog

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// RootPlaylist names the playlist built from files sitting directly in the
// music folder when it has no subdirectories.
const RootPlaylist = "_root"

// unnumbered sorts files without a numeric prefix after every numbered one.
const unnumbered = 999999

var numericPrefix = regexp.MustCompile(`^(\d+)\s*-\s*`)

// Track is one playable file. Identity is ID, never Path: a rescan produces
// new Tracks even for unchanged files.
type Track struct {
	ID           int64
	Path         string
	LibraryIndex int
	DisplayName  string
}

// Is reports whether t and other are the same track generation.
func (t *Track) Is(other *Track) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.ID == other.ID
}

func (t *Track) String() string {
	if t == nil {
		return "<none>"
	}
	return t.DisplayName
}

// Playlist is a directory of tracks, identified by its directory name.
type Playlist struct {
	Name        string
	Path        string
	TrackCount  int
	DisplayName string
}

// IDAllocator hands out process-unique track ids. The zero value starts at 1.
type IDAllocator struct {
	next atomic.Int64
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

func (a *IDAllocator) Next() int64 {
	return a.next.Add(1)
}

// Reset restarts numbering. Only tests should need this.
func (a *IDAllocator) Reset() {
	a.next.Store(0)
}

// DisplayName strips the numeric prefix and extension from a file name:
// "01 - Intro.opus" -> "Intro".
func DisplayName(file string) string {
	return stripPrefix(strings.TrimSuffix(file, filepath.Ext(file)))
}

// PlaylistDisplayName strips only the numeric prefix; directory names keep
// any dots they contain.
func PlaylistDisplayName(dir string) string {
	return stripPrefix(dir)
}

func stripPrefix(name string) string {
	if stripped := strings.TrimSpace(numericPrefix.ReplaceAllString(name, "")); stripped != "" {
		return stripped
	}
	return name
}

func sortKey(name string) int {
	m := numericPrefix.FindStringSubmatch(name)
	if m == nil {
		return unnumbered
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return unnumbered
	}
	return n
}
