package tasks

// Status represents the current state of a task
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// IsTerminal reports whether the status is final
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// canTransition encodes the legal lifecycle moves. Transitions are
// monotonic except the bounded retrying/in_progress cycle.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusSkipped
	case StatusInProgress:
		return to == StatusRetrying || to == StatusCompleted || to == StatusFailed
	case StatusRetrying:
		return to == StatusInProgress || to == StatusFailed
	}
	return false
}
