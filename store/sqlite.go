package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/jill/sys"
	"github.com/mattn/go-sqlite3"
)

const (
	MsgDatabasePragmaError = "failed to set pragma %s: %w"
	MsgDatabaseTableError  = "failed to create table: %w"
	MsgDatabaseInitSuccess = "Database initialized: %s"

	queryTimeout = 5 * time.Second
)

// SQLiteStore serves loads from memory and writes changed guilds to SQLite
// on flush.
type SQLiteStore struct {
	*state
	db *sql.DB
}

func OpenSQLite(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	_ = sqlite3.SQLiteDriver{}
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)

	s := &SQLiteStore{state: newState(), db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	sys.LogStore(MsgDatabaseInitSuccess, dataSourceName)
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := s.db.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := s.db.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS guild_state (
			guild_id TEXT PRIMARY KEY,
			channel_id TEXT,
			playlist TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, channel_id, playlist FROM guild_state`)
	if err != nil {
		return err
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var gid string
		var cid, playlist sql.NullString
		if err := rows.Scan(&gid, &cid, &playlist); err != nil {
			return err
		}
		guildID, err := snowflake.Parse(gid)
		if err != nil {
			continue
		}
		if cid.Valid {
			if channelID, err := snowflake.Parse(cid.String); err == nil {
				s.channels[guildID] = channelID
			}
		}
		if playlist.Valid {
			s.playlists[guildID] = playlist.String
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	metaRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM bot_config`)
	if err != nil {
		return err
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var k, v string
		if err := metaRows.Scan(&k, &v); err != nil {
			return err
		}
		s.meta[k] = v
	}
	return metaRows.Err()
}

func (s *SQLiteStore) SaveLastPlaylistNow(guildID snowflake.ID, name string) {
	s.SaveLastPlaylist(guildID, name)
	if err := s.Flush(); err != nil {
		sys.LogError(MsgStoreFlushFailed, err)
	}
}

// Flush upserts every guild changed since the last flush in one transaction.
func (s *SQLiteStore) Flush() error {
	recs, meta := s.takeDirty()
	if recs == nil && meta == nil {
		return nil
	}
	if err := s.write(recs, meta); err != nil {
		s.markDirty(recs, meta)
		return err
	}
	sys.LogStore("Flushed %s guild change(s)", humanize.Comma(int64(len(recs))))
	return nil
}

func (s *SQLiteStore) write(recs []record, meta map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range recs {
		var channel, playlist any
		if r.ChannelID != 0 {
			channel = r.ChannelID.String()
		}
		if r.Playlist != "" {
			playlist = r.Playlist
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO guild_state (guild_id, channel_id, playlist) VALUES (?, ?, ?)
			ON CONFLICT(guild_id) DO UPDATE SET
				channel_id = excluded.channel_id,
				playlist = excluded.playlist,
				updated_at = CURRENT_TIMESTAMP
		`, r.GuildID.String(), channel, playlist); err != nil {
			return err
		}
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bot_config (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	err := s.Flush()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
