package scheduler

import (
	"strings"
	"time"

	"github.com/jehertzi/netapp-eng-vol-moves/internal/ontap"
)

// State is the lifecycle state of one volume move job.
type State string

// Volumes waiting for a slot live in the scheduler's pending queue, not
// in the tracker; a Job exists only once dispatch is attempted.
const (
	StateDispatched State = "dispatched"
	StatePolling    State = "polling"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// Job is the tracker record for one volume move. Owned by the scheduler;
// all fields are guarded by the scheduler mutex once the job is in the
// active set.
type Job struct {
	Volume       string
	Handle       ontap.JobHandle
	State        State
	Percent      int
	Reason       string
	StartedAt    time.Time
	FinishedAt   time.Time
	LastPolledAt time.Time
}

// JobStatus is a read-only copy of a job, safe to hand out of the lock.
type JobStatus struct {
	Volume     string    `json:"volume"`
	State      State     `json:"state"`
	Percent    int       `json:"percent"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func (j *Job) status() JobStatus {
	return JobStatus{
		Volume:     j.Volume,
		State:      j.State,
		Percent:    j.Percent,
		Reason:     j.Reason,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// Class is the outcome classification of one cluster-reported job state.
type Class int

const (
	// ClassTransient covers every state string that is not a recognized
	// terminal state, including vocabulary the cluster may grow later.
	ClassTransient Class = iota
	ClassSucceeded
	ClassFailed
)

// Classify maps a cluster-reported state string to an outcome class.
// Matching is case-insensitive and ignores surrounding whitespace.
func Classify(state string) Class {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "success", "complete", "completed":
		return ClassSucceeded
	case "failure", "error", "failed":
		return ClassFailed
	default:
		return ClassTransient
	}
}
