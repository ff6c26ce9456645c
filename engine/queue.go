package engine

import (
	"math/rand/v2"
	"slices"

	"github.com/leeineian/jill/catalog"
)

// DefaultHistorySize bounds the played list when no capacity is given.
const DefaultHistorySize = 100

// Queue is the per-tenant ring of played, now playing and upcoming tracks.
// It is not safe for concurrent use; the owning player serializes access.
type Queue struct {
	catalog    []*catalog.Track
	played     []*catalog.Track
	nowPlaying *catalog.Track
	upcoming   []*catalog.Track

	capacity int
	shuffle  bool
	loop     bool
	rnd      *rand.Rand
}

type QueueOption func(*Queue)

// WithRand replaces the shuffle source, for deterministic tests.
func WithRand(r *rand.Rand) QueueOption {
	return func(q *Queue) { q.rnd = r }
}

// WithHistorySize sets how many played tracks are kept.
func WithHistorySize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{capacity: DefaultHistorySize}
	for _, opt := range opts {
		opt(q)
	}
	if q.rnd == nil {
		q.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return q
}

// SetCatalog replaces the catalog and resets the queue around it.
func (q *Queue) SetCatalog(tracks []*catalog.Track) {
	q.catalog = slices.Clone(tracks)
	q.Reset(q.shuffle)
}

// Catalog returns the tracks in library order.
func (q *Queue) Catalog() []*catalog.Track {
	return slices.Clone(q.catalog)
}

// Reset clears history and now playing, then refills upcoming from the
// catalog. It does nothing on an empty catalog.
func (q *Queue) Reset(shuffle bool) {
	if len(q.catalog) == 0 {
		return
	}
	q.shuffle = shuffle
	q.played = nil
	q.nowPlaying = nil
	q.upcoming = q.refill(q.catalog)
}

// Advance moves to the next track and returns it, or nil on an empty catalog.
// When upcoming runs dry it is refilled from the catalog, so a playlist never
// ends. In loop mode the current track is returned untouched.
func (q *Queue) Advance() *catalog.Track {
	if len(q.catalog) == 0 {
		return nil
	}
	if q.loop && q.nowPlaying != nil {
		return q.nowPlaying
	}

	if q.nowPlaying != nil {
		q.pushHistory(q.nowPlaying)
	}
	if len(q.upcoming) == 0 {
		q.upcoming = q.refill(q.catalog)
	}
	q.nowPlaying = q.upcoming[0]
	q.upcoming = q.upcoming[1:]
	return q.nowPlaying
}

// Previous steps back one track and returns it, or nil with no history.
// In loop mode the current track is returned untouched.
func (q *Queue) Previous() *catalog.Track {
	if q.loop && q.nowPlaying != nil {
		return q.nowPlaying
	}
	if len(q.played) == 0 {
		return nil
	}

	last := q.played[len(q.played)-1]
	q.played = q.played[:len(q.played)-1]
	if q.nowPlaying != nil {
		q.upcoming = slices.Insert(q.upcoming, 0, q.nowPlaying)
	}
	q.nowPlaying = last
	return last
}

// Jump plays the catalog track at index and rebuilds upcoming from the tracks
// after it. It returns nil for an out of range index.
func (q *Queue) Jump(index int) *catalog.Track {
	if index < 0 || index >= len(q.catalog) {
		return nil
	}
	target := q.catalog[index]

	if q.nowPlaying != nil {
		q.pushHistory(q.nowPlaying)
	}
	q.nowPlaying = target

	var rest []*catalog.Track
	for _, t := range q.catalog {
		if t.LibraryIndex > target.LibraryIndex {
			rest = append(rest, t)
		}
	}
	q.upcoming = q.refill(rest)
	return target
}

// SetShuffle shuffles the remaining upcoming tracks when turned on, and puts
// them back in library order when turned off. History is never touched.
func (q *Queue) SetShuffle(on bool) {
	q.shuffle = on
	if on {
		q.shuffleTracks(q.upcoming)
		return
	}
	slices.SortStableFunc(q.upcoming, func(a, b *catalog.Track) int {
		return a.LibraryIndex - b.LibraryIndex
	})
}

func (q *Queue) SetLoop(on bool) {
	q.loop = on
}

func (q *Queue) Shuffle() bool { return q.shuffle }
func (q *Queue) Loop() bool    { return q.loop }

// Current returns the now playing track, or nil.
func (q *Queue) Current() *catalog.Track {
	return q.nowPlaying
}

// Len returns the catalog size.
func (q *Queue) Len() int {
	return len(q.catalog)
}

// Snapshot is a read-only copy of the queue for presentation.
type Snapshot struct {
	NowPlaying *catalog.Track
	Upcoming   []*catalog.Track
	History    []*catalog.Track
	Remaining  int
	Total      int
	Shuffle    bool
	Loop       bool
}

// Snapshot copies up to preview upcoming tracks and the last historyTail
// played tracks, most recent last.
func (q *Queue) Snapshot(preview, historyTail int) Snapshot {
	s := Snapshot{
		NowPlaying: q.nowPlaying,
		Remaining:  len(q.upcoming),
		Total:      len(q.catalog),
		Shuffle:    q.shuffle,
		Loop:       q.loop,
	}
	if preview > 0 {
		s.Upcoming = slices.Clone(q.upcoming[:min(preview, len(q.upcoming))])
	}
	if historyTail > 0 {
		s.History = slices.Clone(q.played[max(0, len(q.played)-historyTail):])
	}
	return s
}

func (q *Queue) pushHistory(t *catalog.Track) {
	q.played = append(q.played, t)
	if over := len(q.played) - q.capacity; over > 0 {
		q.played = slices.Delete(q.played, 0, over)
	}
}

func (q *Queue) refill(src []*catalog.Track) []*catalog.Track {
	out := slices.Clone(src)
	if q.shuffle {
		q.shuffleTracks(out)
	}
	return out
}

func (q *Queue) shuffleTracks(tracks []*catalog.Track) {
	q.rnd.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}
