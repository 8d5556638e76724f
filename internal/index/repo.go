package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/tasksync/internal/apperr"
	"github.com/starford/tasksync/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	Link      string    `json:"link,omitempty"`
	IsTask    bool      `json:"is_task"`
	Closed    bool      `json:"closed"`
	UpdatedAt time.Time `json:"updated_at"`
	// LastOutcome and SyncedAt describe the most recent reconciliation.
	LastOutcome string    `json:"last_outcome,omitempty"`
	SyncedAt    time.Time `json:"synced_at,omitzero"`
}

// Task returns the task metadata recorded in the snapshot.
func (r *NoteRow) Task() *models.TaskMetadata {
	return &models.TaskMetadata{Tags: r.Tags, Link: r.Link}
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	// Status is "open", "closed" or empty for both.
	Status string
	// Query matches title or path, case-insensitively.
	Query  string
	Limit  int
	Offset int
}

const noteColumns = `path, title, checksum, tags, link, is_task, closed, updated_at, last_outcome, synced_at`

// UpsertNote inserts or replaces the snapshot of a note. The sync bookkeeping
// columns are kept.
func (db *DB) UpsertNote(n NoteRow) error {
	tagsJSON, err := json.Marshal(n.Tags)
	if err != nil {
		return fmt.Errorf("index: marshal tags: %w", err)
	}
	if n.Tags == nil {
		tagsJSON = []byte("[]")
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}

	_, err = db.conn.Exec(`
		INSERT INTO notes (path, title, checksum, tags, link, is_task, closed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			link       = excluded.link,
			is_task    = excluded.is_task,
			closed     = excluded.closed,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, string(tagsJSON), n.Link, n.IsTask, n.Closed, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}
	return nil
}

// DeleteNote removes a note snapshot.
func (db *DB) DeleteNote(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// GetNote returns the snapshot of one note.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE path = ?`, path)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

// ListTasks returns task notes ordered by path, plus the total matching count.
func (db *DB) ListTasks(f TaskFilter) ([]NoteRow, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where := []string{"is_task = 1"}
	var args []any
	switch f.Status {
	case models.TagOpen:
		where = append(where, "closed = 0")
	case models.TagClosed:
		where = append(where, "closed = 1")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "(title LIKE ? OR path LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count tasks: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes WHERE `+cond+` ORDER BY path LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list tasks: %w", err)
	}
	defer rows.Close()

	out := []NoteRow{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("index: scan task: %w", err)
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

// FindByLink returns the paths of every note pointing at link.
func (db *DB) FindByLink(link string) ([]string, error) {
	if link == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`SELECT path FROM notes WHERE link = ? ORDER BY path`, link)
	if err != nil {
		return nil, fmt.Errorf("index: find by link: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordOutcome stores the result of the latest reconciliation of a note.
// Unknown paths are ignored.
func (db *DB) RecordOutcome(path, outcome string, at time.Time) error {
	_, err := db.conn.Exec(`UPDATE notes SET last_outcome = ?, synced_at = ? WHERE path = ?`, outcome, at.UTC(), path)
	if err != nil {
		return fmt.Errorf("index: record outcome: %w", err)
	}
	return nil
}

// AllChecksums returns path → checksum for every snapshot.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*NoteRow, error) {
	var (
		n        NoteRow
		tagsJSON string
		synced   sql.NullTime
	)
	if err := s.Scan(&n.Path, &n.Title, &n.Checksum, &tagsJSON, &n.Link, &n.IsTask, &n.Closed,
		&n.UpdatedAt, &n.LastOutcome, &synced); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", n.Path, err)
	}
	if synced.Valid {
		n.SyncedAt = synced.Time
	}
	return &n, nil
}
