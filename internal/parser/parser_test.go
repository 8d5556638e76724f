package parser

import (
	"strings"
	"testing"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntags:\n  - task\n  - open\nlink: https://www.notion.so/Buy-milk-abc123\n---\n# Buy milk\nBody text.\n")
	r, err := Parse("inbox/Buy milk.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Buy milk" {
		t.Errorf("title = %q, want %q", r.Title, "Buy milk")
	}
	if len(r.Tags) != 2 || r.Tags[0] != "task" || r.Tags[1] != "open" {
		t.Errorf("tags = %v, want [task open]", r.Tags)
	}
	if r.Link != "https://www.notion.so/Buy-milk-abc123" {
		t.Errorf("link = %q", r.Link)
	}
	if r.Body != "# Buy milk\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
	meta := r.Task()
	if meta == nil || !meta.IsTask() || meta.Closed() {
		t.Errorf("task metadata = %+v", meta)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse("note.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Task() != nil {
		t.Error("note without frontmatter should have no task metadata")
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse("bad.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestParse_EmptyFrontmatter(t *testing.T) {
	r, _ := Parse("e.md", []byte("---\n---\nbody"))
	if r.Frontmatter == nil {
		t.Fatal("empty frontmatter block should still count as present")
	}
	if r.Task().IsTask() {
		t.Error("empty frontmatter is not a task")
	}
	if r.Body != "body" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestExtractTags_StringForm(t *testing.T) {
	tags := extractTags(map[string]any{"tags": "#task, closed task"})
	if len(tags) != 2 || tags[0] != "task" || tags[1] != "closed" {
		t.Errorf("tags = %v, want [task closed]", tags)
	}
}

func TestExtractTags_IgnoresNonStrings(t *testing.T) {
	tags := extractTags(map[string]any{"tags": []any{"task", 42, " ", "open"}})
	if len(tags) != 2 || tags[0] != "task" || tags[1] != "open" {
		t.Errorf("tags = %v, want [task open]", tags)
	}
}

func TestTitleFromPath(t *testing.T) {
	cases := map[string]string{
		"a/b/Call mom.md": "Call mom",
		"plain.md":        "plain",
		"dir\\win.md":     "win",
		"no-ext":          "no-ext",
	}
	for in, want := range cases {
		if got := TitleFromPath(in); got != want {
			t.Errorf("TitleFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBody_StripsFrontmatter(t *testing.T) {
	got := Body([]byte("---\ntags: [task]\n---\n\nHello\n"))
	if got != "Hello\n" {
		t.Errorf("body = %q", got)
	}
}

func TestSetField_ReplacesAndKeepsOrder(t *testing.T) {
	input := []byte("---\ntitle: x\nlink: old\nextra: 1\n---\nBody stays\n")
	out, err := SetField(input, "link", "https://new")
	if err != nil {
		t.Fatalf("SetField: %v", err)
	}
	want := "---\ntitle: x\nlink: https://new\nextra: 1\n---\nBody stays\n"
	if string(out) != want {
		t.Errorf("output =\n%s\nwant\n%s", out, want)
	}
}

func TestSetField_AppendsMissingKey(t *testing.T) {
	input := []byte("---\ntags:\n  - task\n---\nBody\n")
	out, err := SetField(input, "link", "https://www.notion.so/T-1")
	if err != nil {
		t.Fatalf("SetField: %v", err)
	}
	r, _ := Parse("t.md", out)
	if r.Link != "https://www.notion.so/T-1" {
		t.Errorf("link = %q", r.Link)
	}
	if len(r.Tags) != 1 || r.Tags[0] != "task" {
		t.Errorf("tags = %v", r.Tags)
	}
	if r.Body != "Body\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestSetField_TagsList(t *testing.T) {
	input := []byte("---\ntags: [task, open]\n---\n")
	out, err := SetField(input, "tags", []string{"task", "closed"})
	if err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if !strings.Contains(string(out), "tags: [task, closed]") {
		t.Errorf("flow style not preserved:\n%s", out)
	}
}

func TestSetField_CreatesFrontmatter(t *testing.T) {
	out, err := SetField([]byte("Just body\n"), "link", "")
	if err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if string(out) != "---\nlink: \"\"\n---\nJust body\n" {
		t.Errorf("output = %q", out)
	}
}

func TestSetField_InvalidYAML(t *testing.T) {
	if _, err := SetField([]byte("---\n: : {{{\n---\n"), "link", "x"); err == nil {
		t.Error("expected error for invalid frontmatter")
	}
}
