package jobs

import (
	"testing"

	"speechflow/internal/domain"
)

// TestTransitionHappyPath walks the full lifecycle of a successful job,
// starting from the unset state a freshly submitted job carries.
func TestTransitionHappyPath(t *testing.T) {
	job := &domain.Job{}
	for _, next := range []domain.JobState{
		domain.JobStatePending,
		domain.JobStateLoadingModel,
		domain.JobStateRunning,
		domain.JobStateSucceeded,
	} {
		if err := Transition(job, next); err != nil {
			t.Fatalf("Transition(%s): %v", next, err)
		}
	}
	if !job.State.Terminal() {
		t.Fatal("succeeded should be terminal")
	}
}

// TestTransitionRejectsInvalidEdges verifies the state machine is closed.
func TestTransitionRejectsInvalidEdges(t *testing.T) {
	cases := []struct {
		from, to domain.JobState
	}{
		{"", domain.JobStateRunning},
		{"", domain.JobStateCancelled},
		{domain.JobStatePending, domain.JobStateSucceeded},
		{domain.JobStateRunning, domain.JobStateLoadingModel},
		{domain.JobStateSucceeded, domain.JobStateRunning},
		{domain.JobStateCancelled, domain.JobStatePending},
		{domain.JobStateFailed, domain.JobStateSucceeded},
	}
	for _, tc := range cases {
		job := &domain.Job{State: tc.from}
		if err := Transition(job, tc.to); err == nil {
			t.Errorf("Transition(%s -> %s) should fail", tc.from, tc.to)
		}
	}
}

// TestTransitionCancelFromAnyActiveState verifies every active state can
// reach cancelled.
func TestTransitionCancelFromAnyActiveState(t *testing.T) {
	for _, from := range []domain.JobState{
		domain.JobStatePending,
		domain.JobStateLoadingModel,
		domain.JobStateRunning,
	} {
		job := &domain.Job{State: from}
		if err := Transition(job, domain.JobStateCancelled); err != nil {
			t.Errorf("Transition(%s -> cancelled): %v", from, err)
		}
	}
}

// TestTransitionSameStateIsNoop verifies repeated transitions are idempotent.
func TestTransitionSameStateIsNoop(t *testing.T) {
	job := &domain.Job{State: domain.JobStateRunning}
	if err := Transition(job, domain.JobStateRunning); err != nil {
		t.Fatalf("self transition: %v", err)
	}
}
