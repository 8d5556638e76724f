package index

import (
	"log/slog"
	"time"

	"github.com/starford/tasksync/internal/parser"
	"github.com/starford/tasksync/internal/storage"
)

// Sync walks the vault and brings the snapshot up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are dropped; each one is reported as moved when
//     another note now carries its link, and as deleted otherwise
//
// cb may be nil. Without a callback a vanished note that still carries a
// link is kept, so the deletion is reported by the next pass that has one.
func Sync(db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	// Index the disk side first so a moved note's link is already known
	// under its new path when the old path is examined.
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		old, known := checksums[m.Path]
		if old == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("path", m.Path))
		kind := EventUpdated
		if !known {
			kind = EventCreated
		}
		emit(cb, Event{Kind: kind, Path: m.Path})
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if cb == nil {
			pending, err := pendingDelete(db, p)
			if err != nil {
				logger.Warn("sync: inspect stale failed", slog.String("path", p), slog.String("error", err.Error()))
				continue
			}
			if pending {
				logger.Debug("sync: linked note kept until reported", slog.String("path", p))
				continue
			}
		}
		ev, err := dropStale(db, p)
		if err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p), slog.String("kind", string(ev.Kind)))
		emit(cb, ev)
	}

	return nil
}

// IndexFile parses data and upserts its snapshot.
func IndexFile(db *DB, path string, data []byte) error {
	res, err := parser.Parse(path, data)
	if err != nil {
		return err
	}
	meta := res.Task()

	row := NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  storage.Checksum(data),
		Tags:      res.Tags,
		Link:      res.Link,
		IsTask:    meta.IsTask(),
		Closed:    meta.Closed(),
		UpdatedAt: time.Now().UTC(),
	}
	return db.UpsertNote(row)
}

// pendingDelete reports whether dropping path would lose a remote link that
// no other note carries.
func pendingDelete(db *DB, path string) (bool, error) {
	prev, err := db.GetNote(path)
	if err != nil {
		return false, err
	}
	if prev.Link == "" {
		return false, nil
	}
	others, err := db.FindByLink(prev.Link)
	if err != nil {
		return false, err
	}
	return len(others) == 0, nil
}

// dropStale removes the snapshot of a path that no longer exists and
// classifies the disappearance.
func dropStale(db *DB, path string) (Event, error) {
	prev, err := db.GetNote(path)
	if err != nil {
		return Event{}, err
	}
	if err := db.DeleteNote(path); err != nil {
		return Event{}, err
	}

	ev := Event{Kind: EventDeleted, Path: path, Previous: prev}
	if prev.Link == "" {
		return ev, nil
	}
	others, err := db.FindByLink(prev.Link)
	if err != nil {
		return Event{}, err
	}
	if len(others) > 0 {
		ev.Kind = EventMoved
		ev.To = others[0]
	}
	return ev, nil
}
