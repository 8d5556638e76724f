package syncservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/tasksync/internal/apperr"
	"github.com/starford/tasksync/internal/blocks"
	"github.com/starford/tasksync/internal/index"
	"github.com/starford/tasksync/internal/metadata"
	"github.com/starford/tasksync/internal/notion"
	"github.com/starford/tasksync/internal/reconcile"
	"github.com/starford/tasksync/internal/sse"
	"github.com/starford/tasksync/internal/status"
	"github.com/starford/tasksync/internal/storage"
	"github.com/starford/tasksync/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(ev sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Type)
}

func (r *recorder) PublishTaskEvent(kind string, _ sse.TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "task."+kind)
}

func (r *recorder) has(typ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == typ {
			return true
		}
	}
	return false
}

type fixture struct {
	svc   *Service
	fake  *testutil.FakeNotion
	store *storage.FS
	db    *index.DB
	pub   *recorder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := testutil.NewFakeNotion(t)
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	pub := &recorder{}
	client := notion.NewClient(notion.Config{
		Token:      testutil.FakeToken,
		DatabaseID: "db1",
		BaseURL:    fake.URL(),
	}, notion.WithLogger(logger))
	svc := NewService(store, db, Config{
		Remote:     client,
		Translator: blocks.New(),
		Mapper:     status.Default(),
		Logger:     logger,
		Publisher:  pub,
	})
	return &fixture{svc: svc, fake: fake, store: store, db: db, pub: pub}
}

func TestSyncNote_CreatesAndRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.WriteNote(t, f.store, "Buy milk.md", "---\ntags: [task, open]\n---\n")

	res, err := f.svc.SyncNote(ctx, "Buy milk.md")
	if err != nil {
		t.Fatalf("SyncNote: %v", err)
	}
	if res.Outcome != reconcile.OutcomeCreated || res.Link == "" {
		t.Fatalf("result = %+v", res)
	}
	if len(f.fake.Pages()) != 1 {
		t.Errorf("pages = %d, want 1", len(f.fake.Pages()))
	}

	row, err := f.db.GetNote("Buy milk.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if row.LastOutcome != "created" || row.SyncedAt.IsZero() {
		t.Errorf("row = %+v", row)
	}
	if row.Link != res.Link {
		t.Errorf("snapshot link = %q, want %q", row.Link, res.Link)
	}
	if !f.pub.has("task.created") {
		t.Errorf("events = %v, want task.created", f.pub.events)
	}

	res, err = f.svc.SyncNote(ctx, "Buy milk.md")
	if err != nil || res.Outcome != reconcile.OutcomeUnchanged {
		t.Errorf("second sync: %+v, %v", res, err)
	}
}

func TestSyncNote_NotFound(t *testing.T) {
	f := setup(t)
	for _, p := range []string{"missing.md", "", "image.png"} {
		if _, err := f.svc.SyncNote(context.Background(), p); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("SyncNote(%q) err = %v, want ErrNotFound", p, err)
		}
	}
}

func TestSyncNote_MalformedLink(t *testing.T) {
	f := setup(t)
	testutil.WriteNote(t, f.store, "bad.md", "---\ntags: [task, open]\nlink: https://example.com/nope\n---\n")

	res, err := f.svc.SyncNote(context.Background(), "bad.md")
	if !errors.Is(err, apperr.ErrMalformedLink) {
		t.Fatalf("err = %v, want ErrMalformedLink", err)
	}
	if res.Outcome != reconcile.OutcomeInvalidLink {
		t.Errorf("outcome = %v", res.Outcome)
	}
}

func TestSyncAll_SkipsActiveNote(t *testing.T) {
	f := setup(t)
	testutil.WriteNote(t, f.store, "a.md", "---\ntags: [task]\n---\n")
	testutil.WriteNote(t, f.store, "b.md", "---\ntags: [task]\n---\n")
	testutil.WriteNote(t, f.store, "c.md", "not a task\n")
	if err := f.svc.SetActive("b.md"); err != nil {
		t.Fatal(err)
	}

	sum, err := f.svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if sum.Total != 2 || sum.Outcomes[reconcile.OutcomeCreated] != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(f.fake.Pages()) != 1 {
		t.Errorf("pages = %d, want 1", len(f.fake.Pages()))
	}
	meta, _ := metadata.New(f.store).ReadTaskMetadata(context.Background(), "b.md")
	if meta.Linked() {
		t.Error("active note was reconciled")
	}
	if !f.pub.has("scan.finished") {
		t.Errorf("events = %v, want scan.finished", f.pub.events)
	}

	f.svc.ClearActive()
	if f.svc.Active() != "" {
		t.Error("active note not cleared")
	}
}

func TestSyncAll_RejectsOverlap(t *testing.T) {
	f := setup(t)
	f.svc.scanning.Store(true)
	if _, err := f.svc.SyncAll(context.Background()); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	f.svc.scanning.Store(false)
	if _, err := f.svc.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll after scan finished: %v", err)
	}
}

func TestHandleIndexEvent_DeletesRemotePage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.WriteNote(t, f.store, "gone.md", "---\ntags: [task]\n---\n")
	if _, err := f.svc.SyncNote(ctx, "gone.md"); err != nil {
		t.Fatal(err)
	}
	row, err := f.db.GetNote("gone.md")
	if err != nil {
		t.Fatal(err)
	}
	f.fake.ResetRequests()

	f.svc.HandleIndexEvent(ctx)(index.Event{Kind: index.EventDeleted, Path: "gone.md", Previous: row})

	if n := f.fake.Count("DELETE /blocks/"); n != 1 {
		t.Errorf("deletes = %d, want 1 (requests %v)", n, f.fake.Requests())
	}
	if !f.pub.has("task.deleted") {
		t.Errorf("events = %v, want task.deleted", f.pub.events)
	}
}

func TestHandleIndexEvent_MoveKeepsPage(t *testing.T) {
	f := setup(t)
	row := &index.NoteRow{Path: "old.md", IsTask: true, Link: "https://www.notion.so/x-0123456789abcdef0123456789abcdef"}

	f.svc.HandleIndexEvent(context.Background())(index.Event{Kind: index.EventMoved, Path: "old.md", To: "new.md", Previous: row})

	if n := f.fake.Count("DELETE"); n != 0 {
		t.Errorf("deletes = %d, want 0", n)
	}
	if !f.pub.has("task.moved") {
		t.Errorf("events = %v, want task.moved", f.pub.events)
	}
}

func TestListAndGetTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.WriteNote(t, f.store, "open.md", "---\ntags: [task, open]\n---\nbody\n")
	testutil.WriteNote(t, f.store, "done.md", "---\ntags: [task, closed]\n---\n")
	testutil.WriteNote(t, f.store, "plain.md", "hello\n")
	if err := index.Sync(f.db, f.store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil); err != nil {
		t.Fatal(err)
	}

	items, total, err := f.svc.ListTasks(ctx, index.TaskFilter{Status: "open"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Path != "open.md" || items[0].Status != "open" {
		t.Errorf("items = %+v, total = %d", items, total)
	}

	detail, err := f.svc.GetTask(ctx, "open.md")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if detail.Title != "open" || detail.Checksum == "" || detail.Content == "" {
		t.Errorf("detail = %+v", detail)
	}
	if _, err := f.svc.GetTask(ctx, "plain.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetTask(plain) err = %v, want ErrNotFound", err)
	}
}

func TestSyncAll_ReportsDeleteMissedByEarlierRefresh(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	testutil.WriteNote(t, f.store, "gone.md", "---\ntags: [task]\n---\n")
	res, err := f.svc.SyncNote(ctx, "gone.md")
	if err != nil {
		t.Fatal(err)
	}
	id, ok := notion.IDFromURL(res.Link)
	if !ok {
		t.Fatalf("link %q", res.Link)
	}

	if err := os.Remove(filepath.Join(f.store.Root(), "gone.md")); err != nil {
		t.Fatal(err)
	}
	// A refresh with nobody listening must not forget the link.
	if err := index.Sync(f.db, f.store, logger, nil); err != nil {
		t.Fatal(err)
	}
	f.fake.ResetRequests()

	if _, err := f.svc.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if _, err := f.svc.SyncAll(ctx); err != nil {
		t.Fatalf("second SyncAll: %v", err)
	}
	if n := f.fake.Count("DELETE /blocks/" + id); n != 1 {
		t.Errorf("deletes of %s = %d, want 1 (requests %v)", id, n, f.fake.Requests())
	}
	if _, err := f.db.GetNote("gone.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("snapshot after reported delete: err = %v, want ErrNotFound", err)
	}
}
