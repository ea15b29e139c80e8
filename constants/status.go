package constants

import "strings"

// JobStatus is the coarse OCR job state the client acts on.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING" // queued or processing on the server
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// ParseJobStatus folds a server status string into a JobStatus.
// Matching is case-insensitive: the backend has been seen returning both
// "done" and "DONE". Anything that is neither done nor failed is pending.
func ParseJobStatus(s string) JobStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DONE", "COMPLETED", "SUCCESS":
		return JobStatusDone
	case "FAILED", "ERROR":
		return JobStatusFailed
	default:
		return JobStatusPending
	}
}

// Terminal reports whether no further polling is needed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// RunState is the lifecycle of a capture run as stored in the run store.
type RunState string

// Stable values (store these exact strings in DB).
const (
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateFailed    RunState = "FAILED"
	RunStateOrphaned  RunState = "ORPHANED" // uploaded and OCR'd, but the final save failed
	RunStateCancelled RunState = "CANCELLED"
)

// RunStates lists every state, in display order.
var RunStates = []RunState{RunStateRunning, RunStateCompleted, RunStateFailed, RunStateOrphaned, RunStateCancelled}

// ParseRunState matches s case-insensitively against RunStates.
func ParseRunState(s string) (RunState, bool) {
	up := RunState(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range RunStates {
		if st == up {
			return st, true
		}
	}
	return "", false
}
