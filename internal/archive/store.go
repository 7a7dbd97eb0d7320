// Package archive persists terminal playbook records to SQLite so finished
// episodes survive restarts and stay queryable from the operator API.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"tradlet-core/internal/tradlet"
)

const schema = `
CREATE TABLE IF NOT EXISTS playbooks (
	id          TEXT PRIMARY KEY,
	group_id    TEXT NOT NULL,
	template    TEXT NOT NULL,
	instrument  TEXT NOT NULL,
	direction   TEXT NOT NULL,
	state       TEXT NOT NULL,
	vol_opening INTEGER NOT NULL,
	vol_open    INTEGER NOT NULL,
	vol_closing INTEGER NOT NULL,
	vol_close   INTEGER NOT NULL,
	vol_pos     INTEGER NOT NULL,
	mny_opening TEXT NOT NULL,
	mny_open    TEXT NOT NULL,
	mny_closing TEXT NOT NULL,
	mny_close   TEXT NOT NULL,
	open_policy  TEXT NOT NULL,
	close_policy TEXT NOT NULL,
	open_time    TIMESTAMP NOT NULL,
	archived_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_playbooks_group ON playbooks(group_id, archived_at);
`

// Store is the playbook archive backed by a single SQLite file.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates the database file and schema if needed.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("archive: database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "archive").Logger()}, nil
}

// SaveTerminal writes one finished playbook. The id is the primary key, so a
// redelivered record overwrites rather than duplicates.
func (s *Store) SaveTerminal(groupID string, rec tradlet.Record) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO playbooks
		(id, group_id, template, instrument, direction, state,
		 vol_opening, vol_open, vol_closing, vol_close, vol_pos,
		 mny_opening, mny_open, mny_closing, mny_close,
		 open_policy, close_policy, open_time, archived_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, groupID, rec.Template, rec.Instrument, rec.Direction, rec.State,
		rec.Volume.Opening, rec.Volume.Open, rec.Volume.Closing, rec.Volume.Close, rec.Volume.Pos,
		rec.Money.Opening, rec.Money.Open, rec.Money.Closing, rec.Money.Close,
		rec.Action.Open, rec.Action.Close, rec.OpenTime.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive: save playbook %s: %w", rec.ID, err)
	}
	s.log.Debug().Str("playbook", rec.ID).Str("group", groupID).Str("state", rec.State).
		Msg("playbook archived")
	return nil
}

// ArchivedRecord is one stored playbook plus its archive metadata.
type ArchivedRecord struct {
	GroupID    string    `json:"groupId"`
	ArchivedAt time.Time `json:"archivedAt"`
	tradlet.Record
}

// List returns the most recently archived playbooks, newest first. A groupID
// of "" matches every group.
func (s *Store) List(groupID string, limit int) ([]ArchivedRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, group_id, template, instrument, direction, state,
		vol_opening, vol_open, vol_closing, vol_close, vol_pos,
		mny_opening, mny_open, mny_closing, mny_close,
		open_policy, close_policy, open_time, archived_at
		FROM playbooks`
	args := []any{}
	if groupID != "" {
		query += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY archived_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list playbooks: %w", err)
	}
	defer rows.Close()

	var out []ArchivedRecord
	for rows.Next() {
		var r ArchivedRecord
		err := rows.Scan(&r.ID, &r.GroupID, &r.Template, &r.Instrument, &r.Direction, &r.State,
			&r.Volume.Opening, &r.Volume.Open, &r.Volume.Closing, &r.Volume.Close, &r.Volume.Pos,
			&r.Money.Opening, &r.Money.Open, &r.Money.Closing, &r.Money.Close,
			&r.Action.Open, &r.Action.Close, &r.OpenTime, &r.ArchivedAt)
		if err != nil {
			return nil, fmt.Errorf("archive: scan playbook: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying DB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
