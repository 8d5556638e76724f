// Package reconcile decides, for one note at a time, how the vault and the
// remote task database are brought back in line.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/tasksync/internal/apperr"
	"github.com/starford/tasksync/internal/keymutex"
	"github.com/starford/tasksync/internal/models"
	"github.com/starford/tasksync/internal/notion"
	"github.com/starford/tasksync/internal/status"
)

// NoteStore reads notes.
type NoteStore interface {
	ReadNote(ctx context.Context, path string) (*models.Note, error)
}

// MetadataStore rewrites single front-matter keys.
type MetadataStore interface {
	WriteField(ctx context.Context, path, key string, value any) error
}

// Remote is the record API the engine drives.
type Remote interface {
	CreatePage(ctx context.Context, title, status string, children []notion.Block) (string, error)
	GetPage(ctx context.Context, id string) (*notion.Record, error)
	UpdatePageProperties(ctx context.Context, id, title, status string) error
	ReplaceChildren(ctx context.Context, id string, children []notion.Block) error
	DeleteBlock(ctx context.Context, id string) error
}

// Translator converts note content into remote blocks.
type Translator interface {
	Translate(content []byte) ([]notion.Block, error)
}

// Event describes a completed reconciliation.
type Event struct {
	Path    string
	Outcome Outcome
	URL     string
}

// Options configures an Engine.
type Options struct {
	Mapper *status.Mapper
	// SyncContent replaces the remote body on every update.
	SyncContent bool
	// Concurrency bounds ReconcileAll. Defaults to 4.
	Concurrency int
	Logger      *slog.Logger
	// Notify, if set, is called after every reconciliation that changed
	// something on either side.
	Notify func(Event)
}

// Engine reconciles task notes with remote records.
type Engine struct {
	notes  NoteStore
	meta   MetadataStore
	remote Remote
	tr     Translator

	mapper      *status.Mapper
	syncContent bool
	concurrency int
	logger      *slog.Logger
	notify      func(Event)

	locks keymutex.KeyMutex
}

// New creates an Engine.
func New(notes NoteStore, meta MetadataStore, remote Remote, tr Translator, opts Options) *Engine {
	e := &Engine{
		notes:       notes,
		meta:        meta,
		remote:      remote,
		tr:          tr,
		mapper:      opts.Mapper,
		syncContent: opts.SyncContent,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		notify:      opts.Notify,
	}
	if e.mapper == nil {
		e.mapper = status.Default()
	}
	if e.concurrency <= 0 {
		e.concurrency = 4
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// ReconcileOne brings one note and its remote record in line. Calls for the
// same path are serialized.
func (e *Engine) ReconcileOne(ctx context.Context, path string) (Outcome, error) {
	unlock := e.locks.Lock(path)
	defer unlock()

	out, url, err := e.reconcile(ctx, path)
	if out.changed() {
		e.emit(Event{Path: path, Outcome: out, URL: url})
	}
	return out, err
}

func (e *Engine) reconcile(ctx context.Context, path string) (Outcome, string, error) {
	note, err := e.notes.ReadNote(ctx, path)
	if err != nil {
		return OutcomeSkipped, "", fmt.Errorf("reconcile: read %s: %w", path, err)
	}
	meta := note.Task
	if !meta.IsTask() {
		return OutcomeSkipped, "", nil
	}
	if !meta.Linked() {
		return e.create(ctx, note)
	}

	id, ok := notion.IDFromURL(meta.Link)
	if !ok {
		e.logger.Warn("reconcile: invalid link, leaving note untouched",
			slog.String("path", path),
			slog.String("link", meta.Link))
		return OutcomeInvalidLink, "", fmt.Errorf("reconcile: %s: %q: %w", path, meta.Link, apperr.ErrMalformedLink)
	}

	page, err := e.remote.GetPage(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		if err := e.meta.WriteField(ctx, path, models.KeyLink, ""); err != nil {
			return OutcomeSkipped, "", fmt.Errorf("reconcile: clear link of %s: %w", path, err)
		}
		e.logger.Info("reconcile: remote record gone, link cleared",
			slog.String("path", path),
			slog.String("link", meta.Link))
		return OutcomeUnlinked, meta.Link, nil
	}
	if err != nil {
		return OutcomeSkipped, "", fmt.Errorf("reconcile: fetch remote for %s: %w", path, err)
	}
	return e.update(ctx, note, id, page)
}

func (e *Engine) create(ctx context.Context, note *models.Note) (Outcome, string, error) {
	closed := note.Task.Closed()

	children, err := e.tr.Translate(note.Content)
	if err != nil {
		e.logger.Warn("reconcile: body not translated, creating without content",
			slog.String("path", note.Path),
			slog.String("error", err.Error()))
		children = nil
	}

	url, err := e.remote.CreatePage(ctx, note.Title, e.mapper.InitialRemote(closed), children)
	if err != nil {
		return OutcomeSkipped, "", fmt.Errorf("reconcile: create remote for %s: %w", note.Path, err)
	}
	if err := e.meta.WriteField(ctx, note.Path, models.KeyLink, url); err != nil {
		// The record exists but the note does not point at it; the next
		// cycle will create a second one.
		e.logger.Error("reconcile: remote created but link not stored",
			slog.String("path", note.Path),
			slog.String("url", url),
			slog.String("error", err.Error()))
		return OutcomeCreated, url, fmt.Errorf("reconcile: store link of %s: %w", note.Path, err)
	}
	e.logger.Info("reconcile: created remote task",
		slog.String("path", note.Path),
		slog.String("url", url))
	return OutcomeCreated, url, nil
}

func (e *Engine) update(ctx context.Context, note *models.Note, id string, page *notion.Record) (Outcome, string, error) {
	changed := false

	local, tags := e.resolve(note.Task.Tags, page.Status)
	if !sameSet(tags, note.Task.Tags) {
		if err := e.meta.WriteField(ctx, note.Path, models.KeyTags, tags); err != nil {
			return OutcomeSkipped, "", fmt.Errorf("reconcile: write tags of %s: %w", note.Path, err)
		}
		changed = true
	}

	remoteStatus := page.Status
	if local == status.Closed {
		remoteStatus = e.mapper.RemoteOnClose()
	}
	if remoteStatus != page.Status || note.Title != page.Title {
		if err := e.remote.UpdatePageProperties(ctx, id, note.Title, remoteStatus); err != nil {
			return OutcomeSkipped, "", fmt.Errorf("reconcile: update remote for %s: %w", note.Path, err)
		}
		changed = true
	}

	if e.syncContent {
		children, err := e.tr.Translate(note.Content)
		if err != nil {
			e.logger.Warn("reconcile: body not translated, keeping remote content",
				slog.String("path", note.Path),
				slog.String("error", err.Error()))
		} else {
			if err := e.remote.ReplaceChildren(ctx, id, children); err != nil {
				return OutcomeSkipped, "", fmt.Errorf("reconcile: replace content for %s: %w", note.Path, err)
			}
			changed = true
		}
	}

	if !changed {
		return OutcomeUnchanged, note.Task.Link, nil
	}
	e.logger.Info("reconcile: updated task",
		slog.String("path", note.Path),
		slog.String("status", string(local)),
		slog.String("remote_status", remoteStatus))
	return OutcomeUpdated, note.Task.Link, nil
}

// resolve merges the local tags with the remote status. A local close always
// wins; otherwise the remote status decides. The result carries exactly one
// of the open and closed tags.
func (e *Engine) resolve(tags []string, remote string) (status.Local, []string) {
	local := e.mapper.ToLocal(remote)
	if slices.Contains(tags, models.TagClosed) {
		local = status.Closed
	}
	out := make([]string, 0, len(tags)+1)
	for _, t := range tags {
		if t == models.TagOpen || t == models.TagClosed || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return local, append(out, string(local))
}

// OnNoteDeleted removes the remote record of a note that no longer exists.
// meta is the last known front-matter of the note.
func (e *Engine) OnNoteDeleted(ctx context.Context, path string, meta *models.TaskMetadata) (Outcome, error) {
	if !meta.Linked() {
		return OutcomeSkipped, nil
	}
	id, ok := notion.IDFromURL(meta.Link)
	if !ok {
		e.logger.Debug("reconcile: deleted note has no usable link",
			slog.String("path", path),
			slog.String("link", meta.Link))
		return OutcomeSkipped, nil
	}
	if err := e.remote.DeleteBlock(ctx, id); err != nil {
		return OutcomeSkipped, fmt.Errorf("reconcile: delete remote for %s: %w", path, err)
	}
	e.logger.Info("reconcile: deleted remote task",
		slog.String("path", path),
		slog.String("link", meta.Link))
	e.emit(Event{Path: path, Outcome: OutcomeDeleted, URL: meta.Link})
	return OutcomeDeleted, nil
}

func (e *Engine) emit(ev Event) {
	if e.notify != nil {
		e.notify(ev)
	}
}

func sameSet(a, b []string) bool {
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(slices.Compact(as), slices.Compact(bs))
}
