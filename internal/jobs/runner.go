// Package jobs executes transcription and summarization jobs: sequencing,
// state transitions, partial-failure isolation and cooperative cancellation.
package jobs

import (
	"context"

	"github.com/rs/zerolog"

	"speechflow/internal/backend"
	"speechflow/internal/domain"
	"speechflow/internal/faults"
	"speechflow/internal/modelcache"
	"speechflow/internal/output"
)

// Runner executes batches of jobs against cached engines. One batch shares
// one backend: the engine is acquired once, then jobs run sequentially under
// the handle's invocation lock.
type Runner struct {
	cache  *modelcache.Cache
	writer *output.Writer
	log    zerolog.Logger
}

// NewRunner constructs a runner on top of the given engine cache.
func NewRunner(cache *modelcache.Cache, writer *output.Writer, log zerolog.Logger) *Runner {
	return &Runner{
		cache:  cache,
		writer: writer,
		log:    log.With().Str("component", "runner").Logger(),
	}
}

// Fingerprints lists the engines currently resident in the runner's cache.
func (r *Runner) Fingerprints() []string {
	return r.cache.Fingerprints()
}

// Run executes every job in batch sequentially and returns a report with one
// terminal outcome per job. Job-level failures are isolated: a failed job is
// recorded and the batch moves on. The returned error is non-nil only when
// the batch cannot start at all, i.e. the engine acquisition fails; in that
// case every job is reported failed (or cancelled) with the acquisition
// error.
//
// Cancellation is cooperative with checkpoints between jobs: once ctx is
// cancelled, the job whose result has not been recorded yet and all jobs
// after it finish as CANCELLED. A result computed after the cancellation is
// observed is discarded, never written.
func (r *Runner) Run(ctx context.Context, batch []domain.Job, sink Sink) (domain.BatchReport, error) {
	report := domain.BatchReport{Total: len(batch)}
	if len(batch) == 0 {
		return report, nil
	}
	if sink == nil {
		sink = NewBus(0)
	}

	for i := range batch {
		r.transition(&batch[i], domain.JobStatePending)
		r.publishState(sink, &batch[i], "queued")
	}

	handle, err := r.acquire(ctx, batch, sink)
	if err != nil {
		for i := range batch {
			job := &batch[i]
			if faults.Is(err, faults.KindCancelled) {
				r.finishCancelled(sink, job, &report)
				continue
			}
			r.finishFailed(sink, job, &report, err)
		}
		return report, err
	}

	completed := 0
	cancelledAt := -1
	for i := range batch {
		job := &batch[i]

		// Checkpoint: a cancel observed here stops before the job starts.
		if ctx.Err() != nil {
			cancelledAt = i
			break
		}

		r.runJob(ctx, handle, job, sink)

		// A cancel that landed while the job was in flight already
		// discarded its result; stop at this job.
		if job.State == domain.JobStateCancelled {
			cancelledAt = i
			break
		}

		completed++
		report.Add(outcomeOf(job))
		r.publishTerminal(sink, job)
		sink.Publish(Event{
			Type:      EventTypeProgress,
			Percent:   float64(completed) / float64(len(batch)) * 100,
			Completed: completed,
			Total:     len(batch),
		})
	}

	if cancelledAt >= 0 {
		for i := cancelledAt; i < len(batch); i++ {
			r.finishCancelled(sink, &batch[i], &report)
		}
	}

	r.log.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("cancelled", report.Cancelled).
		Msg("batch complete")
	return report, nil
}

// acquire fetches the batch's engine handle, moving every job through the
// loading state while the cache works.
func (r *Runner) acquire(ctx context.Context, batch []domain.Job, sink Sink) (*modelcache.EngineHandle, error) {
	for i := range batch {
		r.transition(&batch[i], domain.JobStateLoadingModel)
	}
	sink.Publish(Event{
		Type:    EventTypeStatus,
		State:   domain.JobStateLoadingModel,
		Message: batch[0].Backend.Describe(),
	})
	return r.cache.Acquire(ctx, batch[0].Backend)
}

// runJob executes one job under the handle's invocation lock and leaves the
// job in a terminal state. Failures stay on the job; they never propagate.
func (r *Runner) runJob(ctx context.Context, handle *modelcache.EngineHandle, job *domain.Job, sink Sink) {
	r.transition(job, domain.JobStateRunning)
	r.publishState(sink, job, "")

	err := handle.Invoke(func(engine backend.Engine) error {
		switch job.Kind {
		case domain.JobKindTranscribe:
			return r.transcribe(ctx, engine, job)
		case domain.JobKindSummarize:
			return r.summarize(ctx, engine, job)
		default:
			return faults.Config("unknown job kind %q", job.Kind)
		}
	})
	if err != nil {
		if faults.Is(err, faults.KindCancelled) || ctx.Err() != nil {
			job.ResultText = ""
			r.transition(job, domain.JobStateCancelled)
			return
		}
		r.transition(job, domain.JobStateFailed)
		job.ErrorDetail = err.Error()
		r.log.Warn().Str("job", job.ID).Str("input", job.Input()).Err(err).Msg("job failed")
		return
	}
	r.transition(job, domain.JobStateSucceeded)
}

// transcribe runs the recognizer and persists the rendered transcript.
func (r *Runner) transcribe(ctx context.Context, engine backend.Engine, job *domain.Job) error {
	rec, ok := engine.(backend.Recognizer)
	if !ok {
		return faults.Config("backend %s cannot transcribe", engine.Name())
	}

	result, err := rec.Transcribe(ctx, job.InputPath)
	if err != nil {
		return err
	}
	job.ResultText = result.Rendered()

	if ctx.Err() != nil {
		return faults.Cancelled("job cancelled before its transcript was written")
	}
	if job.OutputPath != "" {
		if err := r.writer.Write(job.OutputPath, job.ResultText); err != nil {
			return err
		}
	}
	return nil
}

// summarize runs the summarizer and optionally persists the summary.
func (r *Runner) summarize(ctx context.Context, engine backend.Engine, job *domain.Job) error {
	sum, ok := engine.(backend.Summarizer)
	if !ok {
		return faults.Config("backend %s cannot summarize", engine.Name())
	}

	text := job.InputText
	if text == "" {
		return faults.Config("summarize job has no input text")
	}

	summary, err := sum.Summarize(ctx, text, job.Summary.MaxLength, job.Summary.Language)
	if err != nil {
		return err
	}
	job.ResultText = summary

	if ctx.Err() != nil {
		return faults.Cancelled("job cancelled before its summary was written")
	}
	if job.OutputPath != "" {
		if err := r.writer.Write(job.OutputPath, summary); err != nil {
			return err
		}
	}
	return nil
}

// transition applies one table-validated state change; a rejected edge is a
// runner bug and is logged rather than propagated.
func (r *Runner) transition(job *domain.Job, to domain.JobState) {
	if err := Transition(job, to); err != nil {
		r.log.Error().Str("job", job.ID).Err(err).Msg("state transition rejected")
	}
}

// finishFailed records a terminal failure for a job that never ran.
func (r *Runner) finishFailed(sink Sink, job *domain.Job, report *domain.BatchReport, err error) {
	r.transition(job, domain.JobStateFailed)
	job.ErrorDetail = err.Error()
	report.Add(outcomeOf(job))
	r.publishTerminal(sink, job)
}

// finishCancelled records a terminal cancellation, discarding any result.
func (r *Runner) finishCancelled(sink Sink, job *domain.Job, report *domain.BatchReport) {
	job.ResultText = ""
	job.OutputPath = ""
	job.ErrorDetail = ""
	r.transition(job, domain.JobStateCancelled)
	report.Add(outcomeOf(job))
	r.publishTerminal(sink, job)
}

// publishState emits a status event for the job's current state.
func (r *Runner) publishState(sink Sink, job *domain.Job, message string) {
	if sink == nil {
		return
	}
	sink.Publish(Event{
		Type:    EventTypeStatus,
		JobID:   job.ID,
		State:   job.State,
		Message: message,
	})
}

// publishTerminal emits the event matching the job's terminal state.
func (r *Runner) publishTerminal(sink Sink, job *domain.Job) {
	if sink == nil {
		return
	}
	switch job.State {
	case domain.JobStateSucceeded:
		sink.Publish(Event{
			Type:   EventTypeFinished,
			JobID:  job.ID,
			State:  job.State,
			Output: job.OutputPath,
		})
	case domain.JobStateCancelled:
		sink.Publish(Event{
			Type:  EventTypeCancelled,
			JobID: job.ID,
			State: job.State,
		})
	default:
		sink.Publish(Event{
			Type:    EventTypeError,
			JobID:   job.ID,
			State:   job.State,
			Message: job.ErrorDetail,
		})
	}
}

// outcomeOf snapshots a job's terminal result for the batch report.
func outcomeOf(job *domain.Job) domain.JobOutcome {
	return domain.JobOutcome{
		JobID:       job.ID,
		Input:       job.Input(),
		State:       job.State,
		OutputPath:  job.OutputPath,
		ResultText:  job.ResultText,
		ErrorDetail: job.ErrorDetail,
	}
}
