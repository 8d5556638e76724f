package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/tasksync/internal/blocks"
	"github.com/starford/tasksync/internal/index"
	"github.com/starford/tasksync/internal/notion"
	"github.com/starford/tasksync/internal/status"
	"github.com/starford/tasksync/internal/storage"
	"github.com/starford/tasksync/internal/syncservice"
	"github.com/starford/tasksync/internal/testutil"
)

type env struct {
	svc    *syncservice.Service
	router http.Handler
	store  *storage.FS
	db     *index.DB
	fake   *testutil.FakeNotion
}

// testEnv sets up a temp vault, SQLite DB, fake remote, service, and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	return testEnvFull(t, authToken, testutil.FakeToken, nil)
}

func testEnvFull(t *testing.T, authToken, notionToken string, sseHandler http.Handler) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	fake := testutil.NewFakeNotion(t)

	client := notion.NewClient(notion.Config{
		Token:      notionToken,
		DatabaseID: "db1",
		BaseURL:    fake.URL(),
	}, notion.WithLogger(logger))
	svc := syncservice.NewService(store, db, syncservice.Config{
		Remote:     client,
		Translator: blocks.New(),
		Mapper:     status.Default(),
		Logger:     logger,
	})
	router := NewRouter(svc, authToken != "", authToken, sseHandler)
	return &env{svc: svc, router: router, store: store, db: db, fake: fake}
}

func (e *env) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) index(t *testing.T) {
	t.Helper()
	if err := index.Sync(e.db, e.store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil); err != nil {
		t.Fatalf("index.Sync: %v", err)
	}
}

func TestListTasks(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteNote(t, e.store, "tasks/a.md", "---\ntags: [task, open]\n---\n")
	testutil.WriteNote(t, e.store, "tasks/b.md", "---\ntags: [task, closed]\n---\n")
	testutil.WriteNote(t, e.store, "journal.md", "no tags\n")
	e.index(t)

	w := e.do(t, http.MethodGet, "/tasks", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp TaskListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Tasks) != 2 {
		t.Errorf("total = %d, tasks = %d, want 2", resp.Total, len(resp.Tasks))
	}

	w = e.do(t, http.MethodGet, "/tasks?status=closed", nil, "")
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Tasks[0].Path != "tasks/b.md" {
		t.Errorf("closed = %+v", resp)
	}

	w = e.do(t, http.MethodGet, "/tasks?status=maybe", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", w.Code)
	}
}

func TestGetTask(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteNote(t, e.store, "tasks/Write report.md", "---\ntags: [task]\n---\nbody\n")

	w := e.do(t, http.MethodGet, "/tasks/tasks%2FWrite%20report.md", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var task TaskDetail
	_ = json.Unmarshal(w.Body.Bytes(), &task)
	if task.Title != "Write report" || task.Status != "open" {
		t.Errorf("task = %+v", task)
	}

	w = e.do(t, http.MethodGet, "/tasks/missing.md", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
}

func TestSyncNote(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteNote(t, e.store, "Buy milk.md", "---\ntags: [task, open]\n---\n")

	w := e.do(t, http.MethodPost, "/sync/Buy%20milk.md", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Outcome string `json:"outcome"`
		Link    string `json:"link"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Outcome != "created" || res.Link == "" {
		t.Errorf("result = %+v", res)
	}
	if len(e.fake.Pages()) != 1 {
		t.Errorf("pages = %d, want 1", len(e.fake.Pages()))
	}
}

func TestSyncNote_Errors(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteNote(t, e.store, "bad.md", "---\ntags: [task]\nlink: not a url\n---\n")

	if w := e.do(t, http.MethodPost, "/sync/missing.md", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/sync/bad.md", nil, ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed link = %d, want 422", w.Code)
	}
}

func TestSyncNote_UpstreamFailure(t *testing.T) {
	e := testEnvFull(t, "", "secret_wrong", nil)
	testutil.WriteNote(t, e.store, "a.md", "---\ntags: [task]\n---\n")

	if w := e.do(t, http.MethodPost, "/sync/a.md", nil, ""); w.Code != http.StatusBadGateway {
		t.Errorf("rejected token = %d, want 502", w.Code)
	}
}

func TestSyncAll(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteNote(t, e.store, "a.md", "---\ntags: [task]\n---\n")
	testutil.WriteNote(t, e.store, "b.md", "---\ntags: [task, closed]\n---\n")

	w := e.do(t, http.MethodPost, "/sync", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var sum struct {
		Total    int            `json:"total"`
		Outcomes map[string]int `json:"outcomes"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.Total != 2 || sum.Outcomes["created"] != 2 {
		t.Errorf("summary = %+v", sum)
	}

	w = e.do(t, http.MethodGet, "/tasks?status=closed", nil, "")
	var resp TaskListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Tasks[0].LastOutcome != "created" {
		t.Errorf("closed tasks after scan = %+v", resp)
	}
}

func TestSyncAll_ClientGone(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteNote(t, e.store, "a.md", "---\ntags: [task]\n---\n")
	testutil.WriteNote(t, e.store, "b.md", "---\ntags: [task]\n---\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/sync", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if n := len(e.fake.Pages()); n != 2 {
		t.Errorf("pages = %d, want 2", n)
	}
}

func TestActiveNote(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPut, "/active", map[string]string{"path": "tasks/a.md"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("set = %d, body = %s", w.Code, w.Body.String())
	}
	if e.svc.Active() != "tasks/a.md" {
		t.Errorf("active = %q", e.svc.Active())
	}

	w = e.do(t, http.MethodGet, "/status", nil, "")
	var st StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Active != "tasks/a.md" || st.Scanning {
		t.Errorf("status = %+v", st)
	}

	if w = e.do(t, http.MethodPut, "/active", map[string]string{}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing path = %d, want 400", w.Code)
	}
	if w = e.do(t, http.MethodPut, "/active", map[string]string{"path": "image.png"}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-note path = %d, want 400", w.Code)
	}

	if w = e.do(t, http.MethodDelete, "/active", nil, ""); w.Code != http.StatusNoContent {
		t.Errorf("clear = %d, want 204", w.Code)
	}
	w = e.do(t, http.MethodGet, "/active", nil, "")
	var active ActiveNoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &active)
	if active.Path != "" {
		t.Errorf("active after clear = %q", active.Path)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := e.do(t, http.MethodGet, "/tasks", nil, "secret123"); w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := e.do(t, http.MethodPost, "/sync", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := e.do(t, http.MethodGet, "/tasks", nil, "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/tasks", nil, ""); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvFull(t, "secret", testutil.FakeToken, sseStub)
	if w := e.do(t, http.MethodGet, "/events", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvFull(t, "tok", testutil.FakeToken, sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
