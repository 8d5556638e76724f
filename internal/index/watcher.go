package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tasksync/internal/apperr"
	"github.com/starford/tasksync/internal/storage"
)

// EventKind classifies a snapshot change.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
	EventMoved   EventKind = "moved"
)

// Event is a watcher- or sync-driven snapshot change.
type Event struct {
	Kind EventKind
	Path string
	// Previous is the last snapshot of a deleted or moved note.
	Previous *NoteRow
	// To is the new path of a moved note.
	To string
}

// EventCallback is called after a snapshot change.
type EventCallback func(Event)

func emit(cb EventCallback, ev Event) {
	if cb != nil {
		cb(ev)
	}
}

// renameSettle is how long renames are collected before the vault is
// re-walked to pair old and new paths.
const renameSettle = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful snapshot mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a debounced Sync, which tells moves apart
// from deletions by the link the note carried.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	scheduleSync := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(renameSettle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(renameSettle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			if err := Sync(db, store, logger, cb); err != nil {
				logger.Warn("watcher: resync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if storage.IsHidden(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// A directory moved in may carry notes that were
					// moved away from elsewhere in the vault.
					scheduleSync()
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				// A renamed directory only reports its own path.
				if ev.Op&fsnotify.Rename != 0 {
					scheduleSync()
				}
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				known, _ := db.GetChecksum(rel)
				data, readErr := store.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if storage.Checksum(data) == known {
					continue
				}
				if idxErr := IndexFile(db, rel, data); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := EventUpdated
				if known == "" {
					kind = EventCreated
				}
				logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", string(kind)))
				emit(cb, Event{Kind: kind, Path: rel})

			case ev.Op&fsnotify.Remove != 0:
				if cb == nil {
					if pending, _ := pendingDelete(db, rel); pending {
						continue
					}
				}
				stale, delErr := dropStale(db, rel)
				if errors.Is(delErr, apperr.ErrNotFound) {
					continue
				}
				if delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel), slog.String("kind", string(stale.Kind)))
				emit(cb, stale)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only; the new path
				// arrives as a Create if it stays inside the vault. The
				// snapshot is kept until the settle pass so the link can
				// be matched against the new path.
				logger.Debug("watcher: rename pending", slog.String("path", rel))
				scheduleSync()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
