package reconcile

// Outcome is the result of reconciling one note.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCreated
	OutcomeUpdated
	OutcomeUnchanged
	OutcomeUnlinked
	OutcomeInvalidLink
	OutcomeDeleted
)

var outcomeNames = [...]string{
	OutcomeSkipped:     "skipped",
	OutcomeCreated:     "created",
	OutcomeUpdated:     "updated",
	OutcomeUnchanged:   "unchanged",
	OutcomeUnlinked:    "unlinked",
	OutcomeInvalidLink: "invalid_link",
	OutcomeDeleted:     "deleted",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// MarshalText renders the outcome name in JSON and logs.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o Outcome) changed() bool {
	switch o {
	case OutcomeCreated, OutcomeUpdated, OutcomeUnlinked, OutcomeDeleted:
		return true
	}
	return false
}
