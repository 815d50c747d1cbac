package comfy

import "time"

// State is a job's position in the submission lifecycle.
type State string

const (
	StateCreated   State = "CREATED"
	StateSubmitted State = "SUBMITTED"
	StateRunning   State = "RUNNING"
	StatePending   State = "PENDING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateNotFound  State = "NOT_FOUND"
	StateTimedOut  State = "TIMED_OUT"
)

// IsTerminal reports whether no further transition can leave s.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateNotFound, StateTimedOut:
		return true
	default:
		return false
	}
}

// Job is one remote execution. Only monitoring advances State.
type Job struct {
	ID        string
	State     State
	StartedAt time.Time
	Deadline  time.Time
	// Failure carries the server's message when State is FAILED.
	Failure string
}

// advance moves the job to next unless it is already terminal.
func (j *Job) advance(next State) bool {
	if j == nil || j.State.IsTerminal() || j.State == next {
		return false
	}
	j.State = next
	return true
}
