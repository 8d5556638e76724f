// Package metadata reads and writes the task front-matter of vault notes.
package metadata

import (
	"context"
	"fmt"
	"sort"

	"github.com/starford/tasksync/internal/keymutex"
	"github.com/starford/tasksync/internal/models"
	"github.com/starford/tasksync/internal/parser"
	"github.com/starford/tasksync/internal/storage"
)

// Accessor is the note persistence surface used by the sync engine.
// WriteField is the only mutation path and is serialized per note.
type Accessor struct {
	store storage.Provider
	locks keymutex.KeyMutex
}

// New creates an Accessor over store.
func New(store storage.Provider) *Accessor {
	return &Accessor{store: store}
}

// ReadNote loads and parses a note.
func (a *Accessor) ReadNote(_ context.Context, path string) (*models.Note, error) {
	data, err := a.store.Read(path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(path, data)
	if err != nil {
		return nil, err
	}
	return &models.Note{
		Path:        path,
		Title:       res.Title,
		Content:     data,
		Body:        res.Body,
		Frontmatter: res.Frontmatter,
		Task:        res.Task(),
		Checksum:    storage.Checksum(data),
	}, nil
}

// ReadTaskMetadata returns the task projection, or nil if the note has no
// front-matter.
func (a *Accessor) ReadTaskMetadata(ctx context.Context, path string) (*models.TaskMetadata, error) {
	note, err := a.ReadNote(ctx, path)
	if err != nil {
		return nil, err
	}
	return note.Task, nil
}

// IsTask reports whether the note carries the task tag.
func (a *Accessor) IsTask(ctx context.Context, path string) (bool, error) {
	meta, err := a.ReadTaskMetadata(ctx, path)
	if err != nil {
		return false, err
	}
	return meta.IsTask(), nil
}

// WriteField sets one front-matter key. The read, modify and write happen
// under the note's lock so concurrent writers cannot drop each other's keys.
func (a *Accessor) WriteField(_ context.Context, path, key string, value any) error {
	unlock := a.locks.Lock(path)
	defer unlock()

	data, err := a.store.Read(path)
	if err != nil {
		return err
	}
	out, err := parser.SetField(data, key, value)
	if err != nil {
		return fmt.Errorf("metadata: %s: %w", path, err)
	}
	if err := a.store.Write(path, out); err != nil {
		return err
	}
	return nil
}

// ListNotes returns every note path in the vault, sorted.
func (a *Accessor) ListNotes(_ context.Context) ([]string, error) {
	metas, err := a.store.List("")
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	sort.Strings(paths)
	return paths, nil
}
