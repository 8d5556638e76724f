package blocks

import (
	"net/url"

	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/util"

	"github.com/starford/tasksync/internal/notion"
)

type style struct {
	ann  notion.Annotations
	link string
}

type span struct {
	text string
	st   style
}

// inline flattens the inline children of n into rich text runs. Adjacent
// text with the same style is merged.
func (c *converter) inline(n ast.Node) []notion.RichText {
	var spans []span
	c.walkInline(n, style{}, &spans)

	out := []notion.RichText{}
	for _, s := range spans {
		out = append(out, splitRuns(s.text, s.st)...)
	}
	return out
}

func (c *converter) walkInline(parent ast.Node, st style, spans *[]span) {
	for node := parent.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Text:
			v := n.Segment.Value(c.src)
			if !n.IsRaw() {
				v = util.UnescapePunctuations(util.ResolveNumericReferences(util.ResolveEntityNames(v)))
			}
			add(spans, string(v), st)
			if n.SoftLineBreak() || n.HardLineBreak() {
				add(spans, "\n", st)
			}
		case *ast.String:
			add(spans, string(n.Value), st)
		case *ast.CodeSpan:
			s := st
			s.ann.Code = true
			add(spans, c.raw(n), s)
		case *ast.Emphasis:
			s := st
			if n.Level >= 2 {
				s.ann.Bold = true
			} else {
				s.ann.Italic = true
			}
			c.walkInline(n, s, spans)
		case *east.Strikethrough:
			s := st
			s.ann.Strikethrough = true
			c.walkInline(n, s, spans)
		case *ast.Link:
			s := st
			s.link = linkTarget(string(n.Destination))
			c.walkInline(n, s, spans)
		case *ast.AutoLink:
			s := st
			s.link = linkTarget(string(n.URL(c.src)))
			add(spans, string(n.Label(c.src)), s)
		case *ast.Image:
			s := st
			s.link = linkTarget(string(n.Destination))
			if n.ChildCount() == 0 {
				add(spans, string(n.Destination), s)
				continue
			}
			c.walkInline(n, s, spans)
		case *ast.RawHTML:
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				add(spans, string(seg.Value(c.src)), st)
			}
		case *east.TaskCheckBox:
			// carried by the to_do checked flag
		default:
			c.walkInline(n, st, spans)
		}
	}
}

func (c *converter) raw(n ast.Node) string {
	var out []byte
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch t := child.(type) {
		case *ast.Text:
			out = append(out, t.Segment.Value(c.src)...)
		case *ast.String:
			out = append(out, t.Value...)
		}
	}
	return string(out)
}

func add(spans *[]span, text string, st style) {
	if text == "" {
		return
	}
	if n := len(*spans); n > 0 && (*spans)[n-1].st == st {
		(*spans)[n-1].text += text
		return
	}
	*spans = append(*spans, span{text: text, st: st})
}

// linkTarget keeps absolute web and mail links; the API rejects anything else.
func linkTarget(dest string) string {
	u, err := url.Parse(dest)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return ""
		}
		return dest
	case "mailto":
		return dest
	}
	return ""
}

// splitRuns renders text as one or more runs no longer than maxRunLength
// characters each.
func splitRuns(text string, st style) []notion.RichText {
	if text == "" {
		return []notion.RichText{}
	}
	var out []notion.RichText
	runes := []rune(text)
	for start := 0; start < len(runes); start += maxRunLength {
		end := min(start+maxRunLength, len(runes))
		out = append(out, run(string(runes[start:end]), st))
	}
	return out
}

func run(content string, st style) notion.RichText {
	rt := notion.RichText{Type: "text", Text: &notion.Text{Content: content}}
	if st.link != "" {
		rt.Text.Link = &notion.Link{URL: st.link}
	}
	if !st.ann.IsZero() {
		ann := st.ann
		rt.Annotations = &ann
	}
	return rt
}
