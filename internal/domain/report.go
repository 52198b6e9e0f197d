package domain

// JobOutcome records one job's terminal result inside a batch report. Every
// submitted input produces exactly one outcome, failures included.
type JobOutcome struct {
	JobID       string   `json:"jobId"`
	Input       string   `json:"input"`
	State       JobState `json:"state"`
	OutputPath  string   `json:"outputPath,omitempty"`
	ResultText  string   `json:"resultText,omitempty"`
	ErrorDetail string   `json:"errorDetail,omitempty"`
}

// BatchReport aggregates the terminal outcomes of one runner invocation.
type BatchReport struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Cancelled int          `json:"cancelled"`
	Outcomes  []JobOutcome `json:"outcomes"`
}

// Add appends an outcome and updates the aggregate counters.
func (r *BatchReport) Add(outcome JobOutcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	switch outcome.State {
	case JobStateSucceeded:
		r.Succeeded++
	case JobStateCancelled:
		r.Cancelled++
	default:
		r.Failed++
	}
}

// FailedOutcomes returns only the outcomes that ran and failed.
func (r *BatchReport) FailedOutcomes() []JobOutcome {
	var failed []JobOutcome
	for _, o := range r.Outcomes {
		if o.State == JobStateFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Complete reports whether every submitted job reached a terminal state.
func (r *BatchReport) Complete() bool {
	return len(r.Outcomes) == r.Total
}
