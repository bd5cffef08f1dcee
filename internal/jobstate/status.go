// Package jobstate implements the job state machine as a set of pure
// functions over Status and Event values. Nothing in this package performs
// I/O; callers are responsible for persisting the result of a transition.
package jobstate

import "fmt"

// Status is the lifecycle stage of a job.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusPlanning  Status = "PLANNING"
	StatusCoding    Status = "CODING"
	StatusReviewing Status = "REVIEWING"
	StatusPROpen    Status = "PR_OPEN"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Event is a named trigger that may cause a Status transition.
type Event string

const (
	EventStartPlanning   Event = "START_PLANNING"
	EventCancel          Event = "CANCEL"
	EventFail            Event = "FAIL"
	EventPlanSucceeded   Event = "PLAN_SUCCEEDED"
	EventPlanFailed      Event = "PLAN_FAILED"
	EventCodeSucceeded   Event = "CODE_SUCCEEDED"
	EventCodeFailed      Event = "CODE_FAILED"
	EventReviewApproved  Event = "REVIEW_APPROVED"
	EventReviewRejected  Event = "REVIEW_REJECTED"
	EventReviewFailed    Event = "REVIEW_FAILED"
	// EventReviewExhausted closes the rejection-loop-cap gap the teacher's
	// reconciler left open: it is fired by the Reviewing Worker instead of
	// EventReviewRejected once the payload's attempts counter reaches
	// PipelineConfig.MaxReviewAttempts, so the job fails with a distinct,
	// inspectable reason rather than looping.
	EventReviewExhausted Event = "REVIEW_EXHAUSTED"
	EventPROpened        Event = "PR_OPENED"
	EventPRFailed        Event = "PR_FAILED"
)

// transitions maps a (Status, Event) pair to the resulting Status. It is the
// single source of truth for ValidTransition and Next; terminal statuses are
// listed separately in terminal below.
var transitions = map[Status]map[Event]Status{
	StatusQueued: {
		EventStartPlanning: StatusPlanning,
		EventCancel:        StatusCancelled,
		EventFail:          StatusFailed,
	},
	StatusPlanning: {
		EventPlanSucceeded: StatusCoding,
		EventPlanFailed:    StatusFailed,
		EventCancel:        StatusCancelled,
	},
	StatusCoding: {
		EventCodeSucceeded: StatusReviewing,
		EventCodeFailed:    StatusFailed,
		EventCancel:        StatusCancelled,
	},
	StatusReviewing: {
		EventReviewApproved:  StatusPROpen,
		EventReviewRejected:  StatusCoding,
		EventReviewFailed:    StatusFailed,
		EventReviewExhausted: StatusFailed,
		EventCancel:          StatusCancelled,
	},
	StatusPROpen: {
		EventPROpened: StatusCompleted,
		EventPRFailed: StatusFailed,
	},
}

// terminal is the set of statuses with no outbound transitions.
var terminal = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// Next returns the Status that results from applying event to from. ok is
// false if the pair is not a recognized transition, in which case the
// returned Status is the zero value and must not be used.
func Next(from Status, event Event) (to Status, ok bool) {
	byEvent, exists := transitions[from]
	if !exists {
		return "", false
	}
	to, ok = byEvent[event]
	return to, ok
}

// ValidTransition reports whether event is a legal trigger from from.
func ValidTransition(from Status, event Event) bool {
	_, ok := Next(from, event)
	return ok
}

// IsTerminal reports whether status has no outbound transitions.
func IsTerminal(status Status) bool {
	return terminal[status]
}

// ErrInvalidTransition is returned by Apply when event is not a legal
// trigger from the job's current status.
type ErrInvalidTransition struct {
	From  Status
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("jobstate: event %q is not valid from status %q", e.Event, e.From)
}

// Apply is the validating counterpart to Next: it returns an error instead
// of a boolean so callers in the worker stages can use errors.As directly.
func Apply(from Status, event Event) (Status, error) {
	to, ok := Next(from, event)
	if !ok {
		return "", &ErrInvalidTransition{From: from, Event: event}
	}
	return to, nil
}

// Stage names a pipeline queue. Distinct from Status: a Status describes a
// job's position in the lifecycle, a Stage names the worker pool and queue
// that advances it.
type Stage string

const (
	StagePlanning  Stage = "planning"
	StageCoding    Stage = "coding"
	StageReviewing Stage = "reviewing"
	StagePROpen    Stage = "pr-open"
)

// Stages lists every pipeline stage in execution order.
var Stages = []Stage{StagePlanning, StageCoding, StageReviewing, StagePROpen}

// EntryStatus reports the Status a worker for a given pipeline stage expects
// to find a job in when it claims a message for that stage. Workers other
// than the Planning Worker must abort without transitioning if the job's
// current status does not match (see the entry-state abandonment rule).
func EntryStatus(stage Stage) Status {
	switch stage {
	case StagePlanning:
		return StatusQueued
	case StageCoding:
		return StatusCoding
	case StageReviewing:
		return StatusReviewing
	case StagePROpen:
		return StatusPROpen
	default:
		return ""
	}
}
