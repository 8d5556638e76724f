// Package parser reads and rewrites YAML front-matter in Markdown notes.
package parser

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/tasksync/internal/models"
)

const delim = "---"

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
	Tags        []string
	Link        string
}

// Task returns the task projection of the front-matter, or nil when the note
// has none.
func (r *Result) Task() *models.TaskMetadata {
	if r.Frontmatter == nil {
		return nil
	}
	return &models.TaskMetadata{Tags: r.Tags, Link: r.Link}
}

// Parse extracts front-matter, body, tags and link from raw Markdown bytes.
// The title is the file name without its .md extension.
func Parse(notePath string, data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       TitleFromPath(notePath),
		Tags:        extractTags(fm),
		Link:        extractLink(fm),
	}, nil
}

// Body returns the Markdown content with any front-matter block removed.
func Body(data []byte) string {
	_, body := splitFrontmatter(data)
	return body
}

// TitleFromPath returns the note basename without the .md extension.
func TitleFromPath(notePath string) string {
	base := path.Base(strings.ReplaceAll(notePath, "\\", "/"))
	return strings.TrimSuffix(base, ".md")
}

// split locates the front-matter block. rest is everything after the closing
// delimiter line, byte for byte.
func split(data []byte) (block, rest []byte, ok bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, data, false
	}
	after := trimmed[len(delim):]
	nl := bytes.IndexByte(after, '\n')
	if nl < 0 || len(bytes.TrimSpace(after[:nl])) != 0 {
		return nil, data, false
	}
	inner := after[nl+1:]

	end := 0
	if !bytes.HasPrefix(inner, []byte(delim)) {
		i := bytes.Index(inner, []byte("\n"+delim))
		if i < 0 {
			return nil, data, false
		}
		end = i + 1
	}
	block = inner[:end]
	tail := inner[end+len(delim):]
	if i := bytes.IndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	} else {
		tail = nil
	}
	return block, tail, true
}

// splitFrontmatter separates YAML front-matter from the body. Missing or
// invalid front-matter yields a nil map and the whole input as body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	block, rest, ok := split(data)
	if !ok {
		return nil, string(data)
	}
	var fm map[string]any
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, string(data)
	}
	if fm == nil {
		// "---\n---" is front-matter with no keys.
		fm = map[string]any{}
	}
	return fm, strings.TrimLeft(string(rest), "\n\r")
}

// extractTags reads the "tags" key, accepting a YAML list or a comma/space
// separated string. A leading # is dropped.
func extractTags(fm map[string]any) []string {
	raw, ok := fm[models.KeyTags]
	if !ok {
		return nil
	}
	var items []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case string:
		items = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	}

	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, s := range items {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func extractLink(fm map[string]any) string {
	if s, ok := fm[models.KeyLink].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// SetField sets one top-level front-matter key and returns the rewritten
// note. Existing key order, comments and the body are preserved. A note
// without front-matter gets a new block.
func SetField(data []byte, key string, value any) ([]byte, error) {
	block, rest, ok := split(data)
	if !ok {
		rest = data
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(block)) > 0 {
		if err := yaml.Unmarshal(block, &doc); err != nil {
			return nil, fmt.Errorf("parser: decode frontmatter: %w", err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parser: frontmatter is not a mapping")
	}

	val := &yaml.Node{}
	if err := val.Encode(value); err != nil {
		return nil, fmt.Errorf("parser: encode %s: %w", key, err)
	}

	replaced := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != key {
			continue
		}
		old := root.Content[i+1]
		if old.Style&yaml.FlowStyle != 0 && val.Kind == yaml.SequenceNode {
			val.Style = yaml.FlowStyle
		}
		val.LineComment = old.LineComment
		root.Content[i+1] = val
		replaced = true
		break
	}
	if !replaced {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			val,
		)
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	buf.WriteString(delim + "\n")
	buf.Write(rest)
	return buf.Bytes(), nil
}
