// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/tasksync/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	// Hidden directories such as .obsidian and .trash are skipped.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path (relative to vault root).
	Write(path string, content []byte) error
}
