// Package orchestrator owns running submissions: it assigns IDs, launches
// batches on the runner, exposes their events and reports, and routes
// cancellation requests.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speechflow/internal/domain"
	"speechflow/internal/jobs"
)

// ErrUnknownSubmission is returned for IDs the orchestrator never issued.
var ErrUnknownSubmission = errors.New("unknown submission id")

// ErrAlreadyFinished is returned when cancelling a completed submission.
var ErrAlreadyFinished = errors.New("submission already finished")

// maxFinishedSubmissions caps how many completed submissions stay resident;
// beyond it the oldest finished reports are evicted.
const maxFinishedSubmissions = 64

// submission tracks one batch from launch to terminal report.
type submission struct {
	id     string
	total  int
	cancel context.CancelFunc
	done   chan struct{}
	bus    *jobs.Bus

	mu     sync.Mutex
	report domain.BatchReport
	err    error
}

// SubmissionStatus is a point-in-time snapshot of one submission.
type SubmissionStatus struct {
	ID       string `json:"id"`
	Total    int    `json:"total"`
	Finished bool   `json:"finished"`
}

// Service runs submissions asynchronously on a shared runner. Each
// submission owns a sequenced bus that its subscribers read incrementally;
// a global bus additionally receives every event for single-client pollers.
type Service struct {
	runner      *jobs.Runner
	bus         *jobs.Bus
	eventBuffer int
	log         zerolog.Logger

	mu          sync.Mutex
	submissions map[string]*submission
	finished    []string
}

// NewService builds an orchestrator around the given runner. eventBuffer
// bounds how many events polling clients can lag behind on each bus.
func NewService(runner *jobs.Runner, eventBuffer int, log zerolog.Logger) *Service {
	return &Service{
		runner:      runner,
		bus:         jobs.NewBus(eventBuffer),
		eventBuffer: eventBuffer,
		log:         log.With().Str("component", "orchestrator").Logger(),
		submissions: make(map[string]*submission),
	}
}

// stampingSink tags every event with the owning submission before it fans
// out, so merged streams stay attributable.
type stampingSink struct {
	id   string
	next jobs.Sink
}

func (s stampingSink) Publish(event jobs.Event) jobs.Event {
	event.SubmissionID = s.id
	return s.next.Publish(event)
}

// SubmitJob launches a single job and returns its submission ID.
func (s *Service) SubmitJob(job domain.Job) string {
	return s.SubmitBatch([]domain.Job{job})
}

// SubmitBatch launches a batch asynchronously and returns its submission ID.
// Jobs without an ID get one assigned.
func (s *Service) SubmitBatch(batch []domain.Job) string {
	id := uuid.NewString()
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &submission{
		id:     id,
		total:  len(batch),
		cancel: cancel,
		done:   make(chan struct{}),
		bus:    jobs.NewBus(s.eventBuffer),
	}

	s.mu.Lock()
	s.submissions[id] = sub
	s.mu.Unlock()

	s.log.Info().Str("submission", id).Int("jobs", len(batch)).Msg("submission accepted")

	sink := stampingSink{id: id, next: jobs.Tee{sub.bus, s.bus}}
	go func() {
		defer cancel()
		report, err := s.runner.Run(ctx, batch, sink)

		sub.mu.Lock()
		sub.report = report
		sub.err = err
		sub.mu.Unlock()

		s.retire(id)
		close(sub.done)
	}()

	return id
}

// retire records a finished submission and evicts the oldest finished
// entries beyond the retention cap.
func (s *Service) retire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished = append(s.finished, id)
	for len(s.finished) > maxFinishedSubmissions {
		evicted := s.finished[0]
		s.finished = s.finished[1:]
		delete(s.submissions, evicted)
	}
}

// Cancel requests cooperative cancellation of a running submission. The
// submission still finishes on its own: remaining jobs drain as cancelled
// and the report completes.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	sub, ok := s.submissions[id]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSubmission
	}

	select {
	case <-sub.done:
		return ErrAlreadyFinished
	default:
	}

	s.log.Info().Str("submission", id).Msg("cancellation requested")
	sub.cancel()
	return nil
}

// Events returns every submission's events with sequence greater than
// sinceSeq, merged on the global bus. Meant for single-client pollers such
// as the desktop UI; concurrent subscribers should use SubmissionEvents.
func (s *Service) Events(sinceSeq int64) []jobs.Event {
	return s.bus.Since(sinceSeq)
}

// SubmissionEvents returns one submission's own event stream after sinceSeq.
func (s *Service) SubmissionEvents(id string, sinceSeq int64) ([]jobs.Event, error) {
	s.mu.Lock()
	sub, ok := s.submissions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSubmission
	}
	return sub.bus.Since(sinceSeq), nil
}

// Report returns the submission's report. finished is false while the batch
// is still running, in which case the report is empty.
func (s *Service) Report(id string) (report domain.BatchReport, finished bool, err error) {
	s.mu.Lock()
	sub, ok := s.submissions[id]
	s.mu.Unlock()
	if !ok {
		return domain.BatchReport{}, false, ErrUnknownSubmission
	}

	select {
	case <-sub.done:
	default:
		return domain.BatchReport{}, false, nil
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.report, true, sub.err
}

// Wait blocks until the submission finishes or ctx expires, then returns
// its report.
func (s *Service) Wait(ctx context.Context, id string) (domain.BatchReport, error) {
	s.mu.Lock()
	sub, ok := s.submissions[id]
	s.mu.Unlock()
	if !ok {
		return domain.BatchReport{}, ErrUnknownSubmission
	}

	select {
	case <-sub.done:
	case <-ctx.Done():
		return domain.BatchReport{}, ctx.Err()
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.report, sub.err
}

// Fingerprints lists the engine fingerprints resident in the shared cache.
func (s *Service) Fingerprints() []string {
	return s.runner.Fingerprints()
}

// Status snapshots every known submission, sorted by ID for stable output.
func (s *Service) Status() []SubmissionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SubmissionStatus, 0, len(s.submissions))
	for _, sub := range s.submissions {
		finished := false
		select {
		case <-sub.done:
			finished = true
		default:
		}
		out = append(out, SubmissionStatus{ID: sub.id, Total: sub.total, Finished: finished})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
