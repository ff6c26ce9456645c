package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/jill/sys"
)

// document is the JSON layout on disk. Keys are guild ids.
type document struct {
	Channels  map[string]string `json:"last_channels"`
	Playlists map[string]string `json:"last_playlists"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// FileStore keeps state in one JSON file, rewritten atomically on flush.
type FileStore struct {
	*state
	path    string
	writeMu sync.Mutex
}

// OpenFile loads path if it exists. A file that does not parse is moved
// aside to path.bak and the store starts empty.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{state: newState(), path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		bak := path + ".bak"
		if rerr := os.Rename(path, bak); rerr != nil {
			return nil, fmt.Errorf("move corrupt %s aside: %w", path, rerr)
		}
		sys.LogWarn(MsgStoreCorrupt, path, bak, err)
		return s, nil
	}

	for g, c := range doc.Channels {
		gid, err1 := snowflake.Parse(g)
		cid, err2 := snowflake.Parse(c)
		if err1 != nil || err2 != nil {
			continue
		}
		s.channels[gid] = cid
	}
	for g, name := range doc.Playlists {
		if gid, err := snowflake.Parse(g); err == nil {
			s.playlists[gid] = name
		}
	}
	for k, v := range doc.Meta {
		s.meta[k] = v
	}
	sys.LogStore("Loaded state for %d guilds from %s", len(s.channels)+len(s.playlists), path)
	return s, nil
}

func (s *FileStore) SaveLastPlaylistNow(guildID snowflake.ID, name string) {
	s.SaveLastPlaylist(guildID, name)
	if err := s.Flush(); err != nil {
		sys.LogError(MsgStoreFlushFailed, err)
	}
}

// Flush writes the whole document if anything changed since the last flush.
func (s *FileStore) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	recs, meta := s.takeDirty()
	if recs == nil && meta == nil {
		return nil
	}

	data, err := json.MarshalIndent(s.document(), "", "  ")
	if err == nil {
		err = writeAtomic(s.path, data)
	}
	if err != nil {
		s.markDirty(recs, meta)
		return err
	}
	sys.LogStore("Flushed %d guild change(s) (%s)", len(recs), humanize.Bytes(uint64(len(data))))
	return nil
}

func (s *FileStore) Close() error {
	return s.Flush()
}

func (s *FileStore) document() document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := document{
		Channels:  make(map[string]string, len(s.channels)),
		Playlists: make(map[string]string, len(s.playlists)),
		Meta:      make(map[string]string, len(s.meta)),
	}
	for g, c := range s.channels {
		doc.Channels[g.String()] = c.String()
	}
	for g, name := range s.playlists {
		doc.Playlists[g.String()] = name
	}
	for k, v := range s.meta {
		doc.Meta[k] = v
	}
	return doc
}

// writeAtomic replaces path with data via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
