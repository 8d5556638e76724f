// Package syncservice drives the reconciliation engine from the daemon's
// triggers: manual requests, the scan scheduler and vault delete events.
package syncservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/tasksync/internal/apperr"
	"github.com/starford/tasksync/internal/index"
	"github.com/starford/tasksync/internal/metadata"
	"github.com/starford/tasksync/internal/models"
	"github.com/starford/tasksync/internal/reconcile"
	"github.com/starford/tasksync/internal/sse"
	"github.com/starford/tasksync/internal/status"
	"github.com/starford/tasksync/internal/storage"
)

// TaskItem is a task note as listed by the control surfaces.
type TaskItem struct {
	Path        string     `json:"path"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Tags        []string   `json:"tags"`
	Link        string     `json:"link,omitempty"`
	LastOutcome string     `json:"last_outcome,omitempty"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskDetail is the full representation of one task note.
type TaskDetail struct {
	TaskItem
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
}

// SyncResult reports a single-note reconciliation.
type SyncResult struct {
	Path    string            `json:"path"`
	Outcome reconcile.Outcome `json:"outcome"`
	Link    string            `json:"link,omitempty"`
}

// Publisher receives task events for streaming clients.
type Publisher interface {
	Publish(ev sse.Event)
	PublishTaskEvent(kind string, ev sse.TaskEvent)
}

// Config wires the remote side of the engine.
type Config struct {
	Remote      reconcile.Remote
	Translator  reconcile.Translator
	Mapper      *status.Mapper
	SyncContent bool
	Concurrency int
	Logger      *slog.Logger
	// Publisher may be nil.
	Publisher Publisher
}

// Service coordinates storage, the snapshot index and the engine.
type Service struct {
	store  storage.Provider
	db     *index.DB
	notes  *metadata.Accessor
	engine *reconcile.Engine
	pub    Publisher
	logger *slog.Logger

	scanning atomic.Bool

	mu     sync.RWMutex
	active string
}

// NewService creates a new sync service.
func NewService(store storage.Provider, db *index.DB, cfg Config) *Service {
	s := &Service{
		store:  store,
		db:     db,
		notes:  metadata.New(store),
		pub:    cfg.Publisher,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.engine = reconcile.New(s.notes, s.notes, cfg.Remote, cfg.Translator, reconcile.Options{
		Mapper:      cfg.Mapper,
		SyncContent: cfg.SyncContent,
		Concurrency: cfg.Concurrency,
		Logger:      s.logger,
		Notify:      s.onReconciled,
	})
	return s
}

// SyncNote reconciles one note, the manual trigger.
func (s *Service) SyncNote(ctx context.Context, notePath string) (*SyncResult, error) {
	notePath, err := cleanPath(notePath)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(notePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if err := index.IndexFile(s.db, notePath, data); err != nil {
		return nil, err
	}

	out, err := s.engine.ReconcileOne(ctx, notePath)
	res := &SyncResult{Path: notePath, Outcome: out}
	s.reindex(notePath)
	if row, rerr := s.db.GetNote(notePath); rerr == nil {
		res.Link = row.Link
	}
	return res, err
}

// SyncAll reconciles every note except the active one. Only one scan runs
// at a time; a second request gets apperr.ErrConflict.

func (s *Service) SyncAll(ctx context.Context) (*reconcile.Summary, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("sync: scan already running: %w", apperr.ErrConflict)
	}
	defer s.scanning.Store(false)

	if err := index.Sync(s.db, s.store, s.logger, s.HandleIndexEvent(ctx)); err != nil {
		s.logger.Warn("sync: snapshot refresh failed", slog.String("error", err.Error()))
	}
	paths, err := s.notes.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: list notes: %w", err)
	}

	sum := s.engine.ReconcileAll(ctx, paths, s.Active())

	// Notes deleted during the scan are reported here too.
	if err := index.Sync(s.db, s.store, s.logger, s.HandleIndexEvent(ctx)); err != nil {
		s.logger.Warn("sync: snapshot refresh failed", slog.String("error", err.Error()))
	}
	if s.pub != nil {
		s.pub.Publish(sse.Event{Type: "scan.finished", Data: sum})
	}
	return &sum, nil
}

// Scanning reports whether a bulk scan is in progress.
func (s *Service) Scanning() bool {
	return s.scanning.Load()
}

// RunScheduler runs SyncAll every interval until ctx is cancelled. A tick
// that finds a scan still running is skipped.
func (s *Service) RunScheduler(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler: started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil {
				if errors.Is(err, apperr.ErrConflict) {
					s.logger.Info("scheduler: previous scan still running, tick skipped")
					continue
				}
				s.logger.Error("scheduler: scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// SetActive records the note currently open in an editor. Bulk scans skip it.
func (s *Service) SetActive(notePath string) error {
	p, err := cleanPath(notePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = p
	return nil
}

// ClearActive forgets the active note.
func (s *Service) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = ""
}

// Active returns the active note path, or "" if none.
func (s *Service) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ListTasks returns task notes from the snapshot.
func (s *Service) ListTasks(_ context.Context, f index.TaskFilter) ([]TaskItem, int, error) {
	rows, total, err := s.db.ListTasks(f)
	if err != nil {
		return nil, 0, err
	}
	items := make([]TaskItem, len(rows))
	for i := range rows {
		items[i] = taskItem(&rows[i])
	}
	return items, total, nil
}

// GetTask reads a task note from storage and enriches it with sync state.
func (s *Service) GetTask(ctx context.Context, notePath string) (*TaskDetail, error) {
	notePath, err := cleanPath(notePath)
	if err != nil {
		return nil, err
	}
	note, err := s.notes.ReadNote(ctx, notePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if !note.Task.IsTask() {
		return nil, apperr.ErrNotFound
	}

	row := &index.NoteRow{
		Path:   note.Path,
		Title:  note.Title,
		Tags:   note.Task.Tags,
		Link:   note.Task.Link,
		Closed: note.Task.Closed(),
	}
	if snap, err := s.db.GetNote(notePath); err == nil {
		row.UpdatedAt = snap.UpdatedAt
		row.LastOutcome = snap.LastOutcome
		row.SyncedAt = snap.SyncedAt
	}
	return &TaskDetail{
		TaskItem:    taskItem(row),
		Content:     string(note.Content),
		Checksum:    note.Checksum,
		Frontmatter: note.Frontmatter,
	}, nil
}

// HandleIndexEvent returns the snapshot callback that turns vanished notes
// into remote deletions.
func (s *Service) HandleIndexEvent(ctx context.Context) index.EventCallback {
	return func(ev index.Event) {
		switch ev.Kind {
		case index.EventDeleted:
			if ev.Previous == nil {
				return
			}
			if _, err := s.engine.OnNoteDeleted(ctx, ev.Path, ev.Previous.Task()); err != nil {
				s.logger.Error("sync: remote cleanup failed",
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
			}
		case index.EventMoved:
			s.logger.Info("sync: note moved, remote kept",
				slog.String("from", ev.Path),
				slog.String("to", ev.To))
			if s.pub != nil && ev.Previous != nil && ev.Previous.IsTask {
				s.pub.PublishTaskEvent(sse.KindMoved, sse.TaskEvent{Path: ev.Path, To: ev.To, URL: ev.Previous.Link})
			}
		}
	}
}

func (s *Service) onReconciled(ev reconcile.Event) {
	if ev.Outcome != reconcile.OutcomeDeleted {
		if err := s.db.RecordOutcome(ev.Path, ev.Outcome.String(), time.Now()); err != nil {
			s.logger.Warn("sync: record outcome failed",
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
		}
	}
	if s.pub == nil {
		return
	}
	var kind string
	switch ev.Outcome {
	case reconcile.OutcomeCreated:
		kind = sse.KindCreated
	case reconcile.OutcomeUpdated:
		kind = sse.KindUpdated
	case reconcile.OutcomeUnlinked:
		kind = sse.KindUnlinked
	case reconcile.OutcomeDeleted:
		kind = sse.KindDeleted
	default:
		return
	}
	s.pub.PublishTaskEvent(kind, sse.TaskEvent{Path: ev.Path, URL: ev.URL})
}

func (s *Service) reindex(notePath string) {
	data, err := s.store.Read(notePath)
	if err != nil {
		return
	}
	if err := index.IndexFile(s.db, notePath, data); err != nil {
		s.logger.Warn("sync: reindex failed", slog.String("path", notePath), slog.String("error", err.Error()))
	}
}

func taskItem(r *index.NoteRow) TaskItem {
	st := models.TagOpen
	if r.Closed {
		st = models.TagClosed
	}
	item := TaskItem{
		Path:        r.Path,
		Title:       r.Title,
		Status:      st,
		Tags:        nonNilSlice(r.Tags),
		Link:        r.Link,
		LastOutcome: r.LastOutcome,
		UpdatedAt:   r.UpdatedAt,
	}
	if !r.SyncedAt.IsZero() {
		t := r.SyncedAt
		item.SyncedAt = &t
	}
	return item
}

// cleanPath normalises a vault-relative note path.
func cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if p == "" || p == "." || !strings.HasSuffix(p, ".md") {
		return "", fmt.Errorf("sync: %q is not a note path: %w", p, apperr.ErrNotFound)
	}
	return p, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
