package blocks

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"

	"github.com/starford/tasksync/internal/notion"
)

type converter struct {
	src []byte
}

func (c *converter) children(parent ast.Node, depth int) []notion.Block {
	var out []notion.Block
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, c.block(n, depth)...)
	}
	return out
}

func (c *converter) block(node ast.Node, depth int) []notion.Block {
	switch n := node.(type) {
	case *ast.Heading:
		return []notion.Block{heading(n.Level, c.inline(n))}
	case *ast.Paragraph, *ast.TextBlock:
		rt := c.inline(n)
		if len(rt) == 0 {
			return nil
		}
		return []notion.Block{textBlock(notion.TypeParagraph, rt)}
	case *ast.List:
		var out []notion.Block
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			out = append(out, c.listItem(item, n.IsOrdered(), depth)...)
		}
		return out
	case *ast.FencedCodeBlock:
		return []notion.Block{codeBlock(c.lines(n), language(string(n.Language(c.src))))}
	case *ast.CodeBlock:
		return []notion.Block{codeBlock(c.lines(n), "")}
	case *ast.Blockquote:
		return c.quote(n, depth)
	case *ast.ThematicBreak:
		return []notion.Block{{Type: notion.TypeDivider, Divider: &struct{}{}}}
	case *east.Table:
		return []notion.Block{c.table(n)}
	case *ast.HTMLBlock:
		raw := c.lines(n)
		if n.HasClosure() {
			raw += string(n.ClosureLine.Value(c.src))
		}
		raw = strings.TrimRight(raw, "\n")
		if raw == "" {
			return nil
		}
		return []notion.Block{textBlock(notion.TypeParagraph, splitRuns(raw, style{}))}
	}
	return c.children(node, depth)
}

// listItem converts one item. Items at maxDepth cannot carry children, so
// their nested blocks are emitted as following siblings.
func (c *converter) listItem(item ast.Node, ordered bool, depth int) []notion.Block {
	var (
		rt      []notion.RichText
		checked *bool
	)
	rest := item.FirstChild()
	switch first := rest.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		if cb, ok := first.FirstChild().(*east.TaskCheckBox); ok {
			v := cb.IsChecked
			checked = &v
		}
		rt = c.inline(first)
		if checked != nil && len(rt) > 0 {
			rt[0].Text.Content = strings.TrimLeft(rt[0].Text.Content, " ")
		}
		rest = first.NextSibling()
	}
	if rt == nil {
		rt = []notion.RichText{}
	}

	var b notion.Block
	switch {
	case checked != nil:
		b = notion.Block{Type: notion.TypeToDo, ToDo: &notion.ToDoBlock{RichText: rt, Checked: *checked}}
	case ordered:
		b = textBlock(notion.TypeNumberedListItem, rt)
	default:
		b = textBlock(notion.TypeBulletedListItem, rt)
	}

	var nested []notion.Block
	for n := rest; n != nil; n = n.NextSibling() {
		nested = append(nested, c.block(n, depth+1)...)
	}
	return attach(b, nested, depth)
}

func (c *converter) quote(q *ast.Blockquote, depth int) []notion.Block {
	rt := []notion.RichText{}
	rest := q.FirstChild()
	if p, ok := rest.(*ast.Paragraph); ok {
		rt = c.inline(p)
		rest = p.NextSibling()
	}
	var nested []notion.Block
	for n := rest; n != nil; n = n.NextSibling() {
		nested = append(nested, c.block(n, depth+1)...)
	}
	return attach(textBlock(notion.TypeQuote, rt), nested, depth)
}

func (c *converter) table(t *east.Table) notion.Block {
	var (
		rows   []notion.Block
		width  int
		header bool
	)
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		if _, ok := r.(*east.TableHeader); ok {
			header = true
		}
		var cells [][]notion.RichText
		for cell := r.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, c.inline(cell))
		}
		width = max(width, len(cells))
		rows = append(rows, notion.Block{Type: notion.TypeTableRow, TableRow: &notion.TableRowBlock{Cells: cells}})
	}
	for i := range rows {
		for len(rows[i].TableRow.Cells) < width {
			rows[i].TableRow.Cells = append(rows[i].TableRow.Cells, []notion.RichText{})
		}
	}
	return notion.Block{Type: notion.TypeTable, Table: &notion.TableBlock{
		TableWidth:      width,
		HasColumnHeader: header,
		Children:        rows,
	}}
}

func (c *converter) lines(n ast.Node) string {
	var sb strings.Builder
	segs := n.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		sb.Write(seg.Value(c.src))
	}
	return sb.String()
}

func attach(b notion.Block, nested []notion.Block, depth int) []notion.Block {
	if len(nested) == 0 {
		return []notion.Block{b}
	}
	if depth >= maxDepth {
		return append([]notion.Block{b}, nested...)
	}
	switch {
	case b.ToDo != nil:
		b.ToDo.Children = nested
	case b.BulletedListItem != nil:
		b.BulletedListItem.Children = nested
	case b.NumberedListItem != nil:
		b.NumberedListItem.Children = nested
	case b.Quote != nil:
		b.Quote.Children = nested
	default:
		return append([]notion.Block{b}, nested...)
	}
	return []notion.Block{b}
}

func heading(level int, rt []notion.RichText) notion.Block {
	switch level {
	case 1:
		return textBlock(notion.TypeHeading1, rt)
	case 2:
		return textBlock(notion.TypeHeading2, rt)
	default:
		return textBlock(notion.TypeHeading3, rt)
	}
}

func textBlock(typ string, rt []notion.RichText) notion.Block {
	b := notion.Block{Type: typ}
	tb := &notion.TextBlock{RichText: rt}
	switch typ {
	case notion.TypeParagraph:
		b.Paragraph = tb
	case notion.TypeHeading1:
		b.Heading1 = tb
	case notion.TypeHeading2:
		b.Heading2 = tb
	case notion.TypeHeading3:
		b.Heading3 = tb
	case notion.TypeBulletedListItem:
		b.BulletedListItem = tb
	case notion.TypeNumberedListItem:
		b.NumberedListItem = tb
	case notion.TypeQuote:
		b.Quote = tb
	}
	return b
}

func codeBlock(content, lang string) notion.Block {
	return notion.Block{Type: notion.TypeCode, Code: &notion.CodeBlock{
		RichText: splitRuns(strings.TrimRight(content, "\n"), style{}),
		Language: language(lang),
	}}
}
