// Package models defines the domain types for tasksync.
package models

import (
	"slices"
	"time"
)

// Front-matter keys and tags the sync engine understands.
const (
	KeyTags = "tags"
	KeyLink = "link"

	TagTask   = "task"
	TagOpen   = "open"
	TagClosed = "closed"
)

// Note represents a parsed Markdown file in the vault.
type Note struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     []byte         `json:"-"`
	Body        string         `json:"body"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	// Task is nil when the note has no front-matter.
	Task     *TaskMetadata `json:"task,omitempty"`
	Checksum string        `json:"checksum"`
}

// TaskMetadata is the task-tracking projection of a note's front-matter.
type TaskMetadata struct {
	Tags []string `json:"tags"`
	Link string   `json:"link,omitempty"`
}

// HasTag reports whether tag is present.
func (m *TaskMetadata) HasTag(tag string) bool {
	return m != nil && slices.Contains(m.Tags, tag)
}

// IsTask reports whether the note is in scope for synchronization.
func (m *TaskMetadata) IsTask() bool {
	return m.HasTag(TagTask)
}

// Closed reports the local status. Absence of both open and closed means open.
func (m *TaskMetadata) Closed() bool {
	return m.HasTag(TagClosed)
}

// Linked reports whether a remote record URL is stored.
func (m *TaskMetadata) Linked() bool {
	return m != nil && m.Link != ""
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
