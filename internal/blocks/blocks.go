// Package blocks converts note Markdown into Notion content blocks.
package blocks

import (
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/starford/tasksync/internal/notion"
	"github.com/starford/tasksync/internal/parser"
)

const (
	// maxDepth is how deep children may nest in one append request.
	maxDepth = 2
	// maxRunLength is the API limit on the content of one rich text run.
	maxRunLength = 2000
)

// TranslationError reports content that cannot be converted to blocks.
type TranslationError struct {
	Reason string
}

func (e *TranslationError) Error() string {
	return "blocks: translate: " + e.Reason
}

// Translator turns Markdown into blocks. It is safe for concurrent use.
type Translator struct {
	md goldmark.Markdown
}

// New creates a Translator with GitHub Flavored Markdown enabled.
func New() *Translator {
	return &Translator{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

var std = New()

// Translate converts a whole note file using the package translator.
func Translate(content []byte) ([]notion.Block, error) {
	return std.Translate(content)
}

// Translate strips the front-matter of content and converts the remaining
// Markdown into blocks in source order.
func (t *Translator) Translate(content []byte) ([]notion.Block, error) {
	if !utf8.Valid(content) {
		return nil, &TranslationError{Reason: "content is not valid UTF-8"}
	}
	src := []byte(parser.Body(content))
	doc := t.md.Parser().Parse(text.NewReader(src))

	c := &converter{src: src}
	out := c.children(doc, 0)
	if out == nil {
		out = []notion.Block{}
	}
	return out, nil
}
