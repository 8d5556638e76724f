package index

import "time"

// NoteIndex defines the interface for note snapshot operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(n NoteRow) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	GetNote(path string) (*NoteRow, error)
	ListTasks(f TaskFilter) ([]NoteRow, int, error)
	FindByLink(link string) ([]string, error)
	RecordOutcome(path, outcome string, at time.Time) error
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
