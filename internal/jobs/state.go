package jobs

import (
	"fmt"

	"speechflow/internal/domain"
)

// Transition validates and applies one state machine edge on the job.
// Terminal states are absorbing; reaching one again is rejected.
func Transition(job *domain.Job, to domain.JobState) error {
	if job.State == to {
		return nil
	}
	if !validTransition(job.State, to) {
		return fmt.Errorf("invalid transition: %s -> %s", job.State, to)
	}
	job.State = to
	return nil
}

// validTransition enforces the allowed job state machine edges. A job with
// no state yet can only be marked pending.
func validTransition(from, to domain.JobState) bool {
	switch from {
	case "":
		return to == domain.JobStatePending
	case domain.JobStatePending:
		return to == domain.JobStateLoadingModel || to == domain.JobStateFailed || to == domain.JobStateCancelled
	case domain.JobStateLoadingModel:
		return to == domain.JobStateRunning || to == domain.JobStateFailed || to == domain.JobStateCancelled
	case domain.JobStateRunning:
		return to == domain.JobStateSucceeded || to == domain.JobStateFailed || to == domain.JobStateCancelled
	default:
		return false
	}
}
