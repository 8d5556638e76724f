// Package status maps between the remote status vocabulary and the local
// open/closed tag vocabulary.
package status

// Local is the two-state status carried by note tags.
type Local string

const (
	Open   Local = "open"
	Closed Local = "closed"
)

// Remote statuses of the default task database template.
const (
	NotStarted = "Not started"
	InProgress = "In progress"
	Done       = "Done"
)

// DefaultTable is the stock remote→local projection.
func DefaultTable() map[string]Local {
	return map[string]Local{
		NotStarted: Open,
		InProgress: Open,
		Done:       Closed,
	}
}

// Mapper projects remote statuses onto local ones and back.
// The zero value is not usable; use New or Default.
type Mapper struct {
	table       map[string]Local
	doneStatus  string
	openInitial string
}

// New builds a Mapper. Empty arguments fall back to the default vocabulary.
func New(table map[string]Local, doneStatus, openInitial string) *Mapper {
	if len(table) == 0 {
		table = DefaultTable()
	}
	if doneStatus == "" {
		doneStatus = Done
	}
	if openInitial == "" {
		openInitial = NotStarted
	}
	cp := make(map[string]Local, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &Mapper{table: cp, doneStatus: doneStatus, openInitial: openInitial}
}

// Default returns a Mapper over DefaultTable.
func Default() *Mapper {
	return New(nil, "", "")
}

// ToLocal maps a remote status. Unknown statuses count as open.
func (m *Mapper) ToLocal(remote string) Local {
	if l, ok := m.table[remote]; ok && l == Closed {
		return Closed
	}
	return Open
}

// RemoteOnClose is the remote status written for a locally closed task.
func (m *Mapper) RemoteOnClose() string {
	return m.doneStatus
}

// InitialRemote is the status a new remote record is created with.
func (m *Mapper) InitialRemote(closed bool) string {
	if closed {
		return m.doneStatus
	}
	return m.openInitial
}
