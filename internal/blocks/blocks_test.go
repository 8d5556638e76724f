package blocks

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/tasksync/internal/notion"
)

func translate(t *testing.T, md string) []notion.Block {
	t.Helper()
	out, err := Translate([]byte(md))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	return out
}

func types(bs []notion.Block) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Type
	}
	return out
}

func wantTypes(t *testing.T, bs []notion.Block, want ...string) {
	t.Helper()
	got := types(bs)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("types = %v, want %v", got, want)
	}
}

func findRun(runs []notion.RichText, content string) (notion.RichText, bool) {
	for _, r := range runs {
		if r.Text != nil && r.Text.Content == content {
			return r, true
		}
	}
	return notion.RichText{}, false
}

func TestTranslate_StripsFrontmatter(t *testing.T) {
	out := translate(t, "---\ntags: [task]\nlink: https://x/y/T-1\n---\nBody text\n")
	wantTypes(t, out, notion.TypeParagraph)
	if got := notion.PlainText(out[0].Paragraph.RichText); got != "Body text" {
		t.Errorf("text = %q, want %q", got, "Body text")
	}
}

func TestTranslate_Empty(t *testing.T) {
	out := translate(t, "---\ntags: [task]\n---\n")
	if out == nil || len(out) != 0 {
		t.Errorf("blocks = %v, want empty non-nil slice", out)
	}
}

func TestTranslate_Headings(t *testing.T) {
	out := translate(t, "# One\n\n## Two\n\n### Three\n\n##### Five\n")
	wantTypes(t, out, notion.TypeHeading1, notion.TypeHeading2, notion.TypeHeading3, notion.TypeHeading3)
	if got := notion.PlainText(out[3].Heading3.RichText); got != "Five" {
		t.Errorf("h5 text = %q, want %q", got, "Five")
	}
}

func TestTranslate_Annotations(t *testing.T) {
	out := translate(t, "Plain **bold** *it* `code` ~~gone~~ [site](https://example.com) [note](other.md)\n")
	wantTypes(t, out, notion.TypeParagraph)
	runs := out[0].Paragraph.RichText

	checks := []struct {
		content string
		check   func(notion.RichText) bool
	}{
		{"bold", func(r notion.RichText) bool { return r.Annotations != nil && r.Annotations.Bold }},
		{"it", func(r notion.RichText) bool { return r.Annotations != nil && r.Annotations.Italic }},
		{"code", func(r notion.RichText) bool { return r.Annotations != nil && r.Annotations.Code }},
		{"gone", func(r notion.RichText) bool { return r.Annotations != nil && r.Annotations.Strikethrough }},
		{"site", func(r notion.RichText) bool { return r.Text.Link != nil && r.Text.Link.URL == "https://example.com" }},
	}
	for _, c := range checks {
		r, ok := findRun(runs, c.content)
		if !ok {
			t.Errorf("run %q missing in %+v", c.content, runs)
			continue
		}
		if !c.check(r) {
			t.Errorf("run %q has wrong style: %+v", c.content, r)
		}
	}
	if r, ok := findRun(runs, "Plain "); !ok || r.Annotations != nil {
		t.Errorf("leading run = %+v, ok = %v", r, ok)
	}
	if strings.Contains(notion.PlainText(runs), "other.md") {
		t.Error("relative link target leaked into text")
	}
	for _, r := range runs {
		if r.Text.Link != nil && r.Text.Link.URL == "other.md" {
			t.Error("relative link should not be linked")
		}
	}
}

func TestTranslate_Lists(t *testing.T) {
	out := translate(t, "- a\n- b\n  - c\n\n1. one\n2. two\n")
	wantTypes(t, out,
		notion.TypeBulletedListItem, notion.TypeBulletedListItem,
		notion.TypeNumberedListItem, notion.TypeNumberedListItem)

	b := out[1].BulletedListItem
	if got := notion.PlainText(b.RichText); got != "b" {
		t.Errorf("item text = %q, want %q", got, "b")
	}
	wantTypes(t, b.Children, notion.TypeBulletedListItem)
	if got := notion.PlainText(b.Children[0].BulletedListItem.RichText); got != "c" {
		t.Errorf("child text = %q, want %q", got, "c")
	}
}

func TestTranslate_TaskList(t *testing.T) {
	out := translate(t, "- [ ] todo\n- [x] done\n")
	wantTypes(t, out, notion.TypeToDo, notion.TypeToDo)
	if out[0].ToDo.Checked || !out[1].ToDo.Checked {
		t.Errorf("checked = %v, %v, want false, true", out[0].ToDo.Checked, out[1].ToDo.Checked)
	}
	if got := notion.PlainText(out[0].ToDo.RichText); got != "todo" {
		t.Errorf("todo text = %q, want %q", got, "todo")
	}
}

func TestTranslate_DeepNestingIsLifted(t *testing.T) {
	out := translate(t, "- l0\n  - l1\n    - l2\n      - l3\n")
	wantTypes(t, out, notion.TypeBulletedListItem)

	l1 := out[0].BulletedListItem.Children
	wantTypes(t, l1, notion.TypeBulletedListItem)

	l2 := l1[0].BulletedListItem.Children
	wantTypes(t, l2, notion.TypeBulletedListItem, notion.TypeBulletedListItem)
	if len(l2[0].BulletedListItem.Children) != 0 {
		t.Error("third level must not carry children")
	}
	if got := notion.PlainText(l2[1].BulletedListItem.RichText); got != "l3" {
		t.Errorf("lifted text = %q, want %q", got, "l3")
	}
}

func TestTranslate_Code(t *testing.T) {
	cases := []struct {
		md   string
		lang string
	}{
		{"```go\nfmt.Println()\n```\n", "go"},
		{"```js\nx()\n```\n", "javascript"},
		{"```brainfudge\n+++\n```\n", "plain text"},
		{"```\nraw\n```\n", "plain text"},
		{"    indented\n", "plain text"},
	}
	for _, tc := range cases {
		out := translate(t, tc.md)
		wantTypes(t, out, notion.TypeCode)
		if out[0].Code.Language != tc.lang {
			t.Errorf("%q: language = %q, want %q", tc.md, out[0].Code.Language, tc.lang)
		}
	}

	out := translate(t, "```go\nfmt.Println()\n```\n")
	if got := notion.PlainText(out[0].Code.RichText); got != "fmt.Println()" {
		t.Errorf("code = %q, want %q", got, "fmt.Println()")
	}
}

func TestTranslate_QuoteAndDivider(t *testing.T) {
	out := translate(t, "> quoted\n\nabove\n\n---\n\nbelow\n")
	wantTypes(t, out, notion.TypeQuote, notion.TypeParagraph, notion.TypeDivider, notion.TypeParagraph)
	if got := notion.PlainText(out[0].Quote.RichText); got != "quoted" {
		t.Errorf("quote = %q, want %q", got, "quoted")
	}
}

func TestTranslate_Table(t *testing.T) {
	out := translate(t, "| a | b |\n|---|---|\n| 1 | 2 |\n| 3 |\n")
	wantTypes(t, out, notion.TypeTable)
	tbl := out[0].Table
	if tbl.TableWidth != 2 || !tbl.HasColumnHeader {
		t.Errorf("table = %+v", tbl)
	}
	wantTypes(t, tbl.Children, notion.TypeTableRow, notion.TypeTableRow, notion.TypeTableRow)
	for i, row := range tbl.Children {
		if len(row.TableRow.Cells) != 2 {
			t.Errorf("row %d cells = %d, want 2", i, len(row.TableRow.Cells))
		}
	}
	if got := notion.PlainText(tbl.Children[1].TableRow.Cells[1]); got != "2" {
		t.Errorf("cell = %q, want %q", got, "2")
	}
}

func TestTranslate_SplitsLongRuns(t *testing.T) {
	long := strings.Repeat("x", 2*maxRunLength+500)
	out := translate(t, long+"\n")
	wantTypes(t, out, notion.TypeParagraph)
	runs := out[0].Paragraph.RichText
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	for _, r := range runs {
		if n := len([]rune(r.Text.Content)); n > maxRunLength {
			t.Errorf("run length = %d, over limit", n)
		}
	}
	if notion.PlainText(runs) != long {
		t.Error("split lost content")
	}
}

func TestTranslate_InvalidUTF8(t *testing.T) {
	_, err := Translate([]byte("ok \xff\xfe broken"))
	var te *TranslationError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TranslationError", err)
	}
}

func TestLanguage(t *testing.T) {
	cases := map[string]string{
		"":       "plain text",
		"Go":     "go",
		"yml":    "yaml",
		"c++":    "c++",
		"nope":   "plain text",
		"python": "python",
	}
	for in, want := range cases {
		if got := language(in); got != want {
			t.Errorf("language(%q) = %q, want %q", in, got, want)
		}
	}
}
