package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// FakeToken is the bearer token FakeNotion accepts.
const FakeToken = "secret_test"

// FakePage is the state FakeNotion keeps for one page.
type FakePage struct {
	ID         string
	DatabaseID string
	Title      string
	Status     string
	Tags       []string
	Archived   bool
	Children   []map[string]any
}

// FakeNotion is an in-memory stand-in for the pages and blocks endpoints.
type FakeNotion struct {
	Server *httptest.Server

	mu         sync.Mutex
	seq        int
	pages      map[string]*FakePage
	blockOwner map[string]string
	requests   []string
	failAppend bool
	deleting   map[string]int
}

var slugRe = regexp.MustCompile(`[^A-Za-z0-9]+`)

// NewFakeNotion starts a fake API server that is closed when the test ends.
func NewFakeNotion(t *testing.T) *FakeNotion {
	t.Helper()
	f := &FakeNotion{
		pages:      make(map[string]*FakePage),
		blockOwner: make(map[string]string),
		deleting:   make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(f.record, f.auth)
	r.Post("/pages", f.createPage)
	r.Get("/pages/{id}", f.getPage)
	r.Patch("/pages/{id}", f.updatePage)
	r.Get("/blocks/{id}/children", f.listChildren)
	r.Patch("/blocks/{id}/children", f.appendChildren)
	r.Delete("/blocks/{id}", f.deleteBlock)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API base URL.
func (f *FakeNotion) URL() string {
	return f.Server.URL
}

// PageURL returns the public URL of a page, in the Title-<id> form.
func (f *FakeNotion) PageURL(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return ""
	}
	return pageURL(p)
}

func pageURL(p *FakePage) string {
	slug := strings.Trim(slugRe.ReplaceAllString(p.Title, "-"), "-")
	if slug == "" {
		return "https://www.notion.so/" + p.ID
	}
	return "https://www.notion.so/" + slug + "-" + p.ID
}

// AddPage seeds a page and returns its id.
func (f *FakeNotion) AddPage(title, status string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &FakePage{ID: f.nextID(), Title: title, Status: status}
	f.pages[p.ID] = p
	return p.ID
}

// AddChildren seeds body blocks under a page.
func (f *FakeNotion) AddChildren(id string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pages[id]
	for i := 0; i < n; i++ {
		bid := f.nextID()
		p.Children = append(p.Children, map[string]any{"object": "block", "id": bid, "type": "paragraph"})
		f.blockOwner[bid] = id
	}
}

// Page returns a copy of the page state.
func (f *FakeNotion) Page(id string) (FakePage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return FakePage{}, false
	}
	cp := *p
	cp.Children = append([]map[string]any(nil), p.Children...)
	return cp, true
}

// Pages returns copies of every page.
func (f *FakeNotion) Pages() []FakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakePage, 0, len(f.pages))
	for _, p := range f.pages {
		out = append(out, *p)
	}
	return out
}

// SetStatus changes a page status as if edited remotely.
func (f *FakeNotion) SetStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[id].Status = status
}

// Archive trashes a page as if deleted remotely.
func (f *FakeNotion) Archive(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[id].Archived = true
}

// Remove drops a page entirely so lookups 404.
func (f *FakeNotion) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, id)
}

// FailAppend makes body appends fail with 400.
func (f *FakeNotion) FailAppend(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAppend = fail
}

// Requests returns the "METHOD /path" log of received requests.
func (f *FakeNotion) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// Count returns how many requests started with prefix, e.g. "PATCH /pages".
func (f *FakeNotion) Count(prefix string) int {
	n := 0
	for _, r := range f.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (f *FakeNotion) ResetRequests() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

func (f *FakeNotion) nextID() string {
	f.seq++
	return fmt.Sprintf("%032x", f.seq)
}

func (f *FakeNotion) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeNotion) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+FakeToken {
			apiError(w, http.StatusUnauthorized, "unauthorized", "API token is invalid.")
			return
		}
		if r.Header.Get("Notion-Version") == "" {
			apiError(w, http.StatusBadRequest, "missing_version", "Notion-Version header failed validation")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type fakeProperty struct {
	Title []struct {
		Text struct {
			Content string `json:"content"`
		} `json:"text"`
	} `json:"title"`
	Status *struct {
		Name string `json:"name"`
	} `json:"status"`
	MultiSelect []struct {
		Name string `json:"name"`
	} `json:"multi_select"`
}

func (f *FakeNotion) applyProperties(p *FakePage, props map[string]fakeProperty) {
	if v, ok := props["Name"]; ok {
		var sb strings.Builder
		for _, t := range v.Title {
			sb.WriteString(t.Text.Content)
		}
		p.Title = sb.String()
	}
	if v, ok := props["Status"]; ok && v.Status != nil {
		p.Status = v.Status.Name
	}
	if v, ok := props["Tags"]; ok {
		p.Tags = nil
		for _, o := range v.MultiSelect {
			p.Tags = append(p.Tags, o.Name)
		}
	}
}

func (f *FakeNotion) createPage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent struct {
			DatabaseID string `json:"database_id"`
		} `json:"parent"`
		Properties map[string]fakeProperty `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Parent.DatabaseID == "" {
		apiError(w, http.StatusBadRequest, "validation_error", "body.parent.database_id should be defined")
		return
	}
	f.mu.Lock()
	p := &FakePage{ID: f.nextID(), DatabaseID: req.Parent.DatabaseID}
	f.applyProperties(p, req.Properties)
	f.pages[p.ID] = p
	body := pageJSON(p)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (f *FakeNotion) getPage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	p, ok := f.pages[chi.URLParam(r, "id")]
	var body map[string]any
	if ok {
		body = pageJSON(p)
	}
	f.mu.Unlock()
	if !ok {
		apiError(w, http.StatusNotFound, "object_not_found", "Could not find page.")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *FakeNotion) updatePage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Properties map[string]fakeProperty `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	f.mu.Lock()
	p, ok := f.pages[chi.URLParam(r, "id")]
	var body map[string]any
	if ok {
		f.applyProperties(p, req.Properties)
		body = pageJSON(p)
	}
	f.mu.Unlock()
	if !ok {
		apiError(w, http.StatusNotFound, "object_not_found", "Could not find page.")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *FakeNotion) listChildren(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if size <= 0 || size > 100 {
		size = 100
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("start_cursor"))

	f.mu.Lock()
	p, ok := f.pages[chi.URLParam(r, "id")]
	var results []map[string]any
	hasMore := false
	if ok {
		end := min(start+size, len(p.Children))
		if start < end {
			results = append(results, p.Children[start:end]...)
		}
		hasMore = end < len(p.Children)
	}
	f.mu.Unlock()
	if !ok {
		apiError(w, http.StatusNotFound, "object_not_found", "Could not find block.")
		return
	}
	var next any
	if hasMore {
		next = strconv.Itoa(start + size)
	}
	if results == nil {
		results = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object":      "list",
		"results":     results,
		"has_more":    hasMore,
		"next_cursor": next,
	})
}

func (f *FakeNotion) appendChildren(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Children []map[string]any `json:"children"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		apiError(w, http.StatusBadRequest, "validation_error", "body.children failed validation")
		return
	}
	if len(req.Children) > 100 {
		apiError(w, http.StatusBadRequest, "validation_error", "body.children.length should be ≤ 100")
		return
	}
	p, ok := f.pages[chi.URLParam(r, "id")]
	if !ok {
		apiError(w, http.StatusNotFound, "object_not_found", "Could not find block.")
		return
	}
	for _, c := range req.Children {
		id := f.nextID()
		c["id"] = id
		c["object"] = "block"
		p.Children = append(p.Children, c)
		f.blockOwner[id] = p.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "results": req.Children})
}

func (f *FakeNotion) deleteBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	if p, ok := f.pages[id]; ok {
		defer f.mu.Unlock()
		if p.Archived {
			apiError(w, http.StatusBadRequest, "validation_error", "Can't edit block that is archived. You must unarchive the block before editing.")
			return
		}
		p.Archived = true
		writeJSON(w, http.StatusOK, pageJSON(p))
		return
	}
	owner, ok := f.blockOwner[id]
	if !ok {
		f.mu.Unlock()
		apiError(w, http.StatusNotFound, "object_not_found", "Could not find block.")
		return
	}
	f.deleting[owner]++
	overlap := f.deleting[owner] > 1
	f.mu.Unlock()

	// Hold the slot briefly so overlapping deletes on one parent are visible.
	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleting[owner]--
	if overlap {
		apiError(w, http.StatusConflict, "conflict_error", "Conflict occurred while saving. Please try again.")
		return
	}
	delete(f.blockOwner, id)
	if p, ok := f.pages[owner]; ok {
		kept := p.Children[:0]
		for _, c := range p.Children {
			if c["id"] != id {
				kept = append(kept, c)
			}
		}
		p.Children = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "block", "id": id, "archived": true})
}

func pageJSON(p *FakePage) map[string]any {
	return map[string]any{
		"object":   "page",
		"id":       p.ID,
		"url":      pageURL(p),
		"archived": p.Archived,
		"in_trash": p.Archived,
		"properties": map[string]any{
			"Name": map[string]any{
				"type": "title",
				"title": []any{map[string]any{
					"type":       "text",
					"text":       map[string]any{"content": p.Title},
					"plain_text": p.Title,
				}},
			},
			"Status": map[string]any{
				"type":   "status",
				"status": map[string]any{"name": p.Status},
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"object":  "error",
		"status":  status,
		"code":    code,
		"message": msg,
	})
}
