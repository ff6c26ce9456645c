package player

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jill/catalog"
)

type transportState int

const (
	idle transportState = iota
	running
	held
)

type fakeTransport struct {
	mu       sync.Mutex
	state    transportState
	finish   func(error)
	starts   int
	stops    int
	startErr error
}

func (t *fakeTransport) Start(src io.ReadCloser, onFinished func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startErr != nil {
		return t.startErr
	}
	t.state = running
	t.finish = onFinished
	t.starts++
	return nil
}

func (t *fakeTransport) Stop() {
	t.mu.Lock()
	f := t.finish
	t.finish = nil
	wasActive := t.state != idle
	t.state = idle
	t.stops++
	t.mu.Unlock()
	if wasActive && f != nil {
		f(ErrStopped)
	}
}

func (t *fakeTransport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == running {
		t.state = held
	}
}

func (t *fakeTransport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == held {
		t.state = running
	}
}

func (t *fakeTransport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == running
}

func (t *fakeTransport) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == held
}

// callback returns the completion handler of the running track.
func (t *fakeTransport) callback() func(error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finish
}

// end simulates the track finishing on its own.
func (t *fakeTransport) end(err error) {
	t.mu.Lock()
	f := t.finish
	t.finish = nil
	t.state = idle
	t.mu.Unlock()
	if f != nil {
		f(err)
	}
}

func (t *fakeTransport) startCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}

type fakeVoice struct {
	mu          sync.Mutex
	last        *fakeTransport
	listeners   int
	connects    int
	disconnects int
	forced      int
	permErr     error
	startErr    error
}

func (v *fakeVoice) Connect(_ context.Context, _, _ snowflake.ID) (Transport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connects++
	v.last = &fakeTransport{startErr: v.startErr}
	return v.last, nil
}

func (v *fakeVoice) Disconnect(_ context.Context, _ snowflake.ID, force bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnects++
	if force {
		v.forced++
	}
	return nil
}

func (v *fakeVoice) Listeners(_, _ snowflake.ID) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.listeners
}

func (v *fakeVoice) CheckPermissions(_, _ snowflake.ID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.permErr
}

func (v *fakeVoice) setListeners(n int) {
	v.mu.Lock()
	v.listeners = n
	v.mu.Unlock()
}

func (v *fakeVoice) transport() *fakeTransport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

type fakeLibrary struct {
	ids       *catalog.IDAllocator
	playlists []catalog.Playlist
}

func newFakeLibrary(sizes map[string]int) *fakeLibrary {
	lib := &fakeLibrary{ids: catalog.NewIDAllocator()}
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if n, ok := sizes[name]; ok {
			lib.playlists = append(lib.playlists, catalog.Playlist{Name: name, Path: "/music/" + name, TrackCount: n, DisplayName: name})
		}
	}
	return lib
}

func (l *fakeLibrary) Find(name string) (catalog.Playlist, error) {
	for _, p := range l.playlists {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return catalog.Playlist{}, fmt.Errorf("%w: %s", catalog.ErrPlaylistNotFound, name)
}

func (l *fakeLibrary) Default() (catalog.Playlist, error) {
	if len(l.playlists) == 0 {
		return catalog.Playlist{}, catalog.ErrPlaylistNotFound
	}
	return l.playlists[0], nil
}

func (l *fakeLibrary) Load(p catalog.Playlist) ([]*catalog.Track, error) {
	tracks := make([]*catalog.Track, p.TrackCount)
	for i := range tracks {
		tracks[i] = &catalog.Track{
			ID:           l.ids.Next(),
			Path:         fmt.Sprintf("%s/%d.opus", p.Path, i),
			LibraryIndex: i,
			DisplayName:  fmt.Sprintf("%s %d", p.Name, i),
		}
	}
	return tracks, nil
}

type memStore struct {
	mu        sync.Mutex
	channels  map[snowflake.ID]snowflake.ID
	playlists map[snowflake.ID]string
	immediate int
}

func newMemStore() *memStore {
	return &memStore{channels: map[snowflake.ID]snowflake.ID{}, playlists: map[snowflake.ID]string{}}
}

func (s *memStore) LoadLastChannel(g snowflake.ID) (snowflake.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[g]
	return c, ok
}

func (s *memStore) SaveLastChannel(g, c snowflake.ID) {
	s.mu.Lock()
	s.channels[g] = c
	s.mu.Unlock()
}

func (s *memStore) LoadLastPlaylist(g snowflake.ID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.playlists[g]
	return n, ok
}

func (s *memStore) SaveLastPlaylist(g snowflake.ID, name string) {
	s.mu.Lock()
	s.playlists[g] = name
	s.mu.Unlock()
}

func (s *memStore) SaveLastPlaylistNow(g snowflake.ID, name string) {
	s.mu.Lock()
	s.playlists[g] = name
	s.immediate++
	s.mu.Unlock()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeFiles serves empty readers for every path except the missing ones.
type fakeFiles struct {
	mu      sync.Mutex
	missing map[string]bool
	opened  int
	closed  int
}

type countingCloser struct {
	io.Reader
	files *fakeFiles
}

func (c countingCloser) Close() error {
	c.files.mu.Lock()
	c.files.closed++
	c.files.mu.Unlock()
	return nil
}

func (f *fakeFiles) open(path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[path] {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	f.opened++
	return countingCloser{Reader: strings.NewReader(""), files: f}, nil
}

func (f *fakeFiles) setMissing(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing == nil {
		f.missing = map[string]bool{}
	}
	for _, p := range paths {
		f.missing[p] = true
	}
}
