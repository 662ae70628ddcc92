package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sig-0/iq"
)

var errInvalidTrigger = errors.New("invalid trigger time")

// scheduledRun is a single scheduled ingestion run
type scheduledRun struct {
	at time.Time
}

// Less is utilized to sort scheduled runs by their due-time (earliest == first)
func (a scheduledRun) Less(b scheduledRun) bool {
	return a.at.Before(b.at)
}

// Scheduler drives the ingestion job on a fixed daily UTC trigger.
// At most one run is in flight at a time; a trigger that passes while a
// run overruns is skipped, never queued up behind it
type Scheduler struct {
	runner Runner
	logger *slog.Logger
	clock  func() time.Time

	triggerHour   int
	triggerMinute int

	runImmediately bool

	q             iq.Queue[scheduledRun]
	queryInterval time.Duration
	qMux          sync.Mutex
}

// NewScheduler creates a new daily scheduler for the given job runner
func NewScheduler(runner Runner, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		runner:        runner,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:         time.Now,
		triggerHour:   6, // 06:00 UTC
		triggerMinute: 0,
		q:             iq.NewQueue[scheduledRun](),
		queryInterval: time.Second,
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	if s.triggerHour < 0 || s.triggerHour > 23 ||
		s.triggerMinute < 0 || s.triggerMinute > 59 {
		return nil, errInvalidTrigger
	}

	return s, nil
}

// Start starts the scheduling loop [BLOCKING].
// The loop survives individual run failures and terminates cleanly once
// the context is canceled, letting an in-flight run finish first
func (s *Scheduler) Start(ctx context.Context) error {
	now := s.clock().UTC()

	// Schedule the first run. A process started past today's trigger waits
	// for tomorrow, it does not fire a catch-up run unless asked to
	first := s.NextTrigger(now)
	if s.runImmediately {
		first = now
	}

	s.schedule(first)

	s.logger.Info(
		"scheduler started",
		"first_run", first.Format(time.RFC3339),
	)

	ticker := time.NewTicker(s.queryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shut down")

			return nil
		case <-ticker.C:
			run := s.nextDue()
			if run == nil {
				continue
			}

			s.execute(ctx)

			// If the run overran past a trigger, scheduling relative to
			// the current time skips it
			next := s.NextTrigger(s.clock().UTC())
			s.schedule(next)

			s.logger.Info(
				"next run scheduled",
				"at", next.Format(time.RFC3339),
			)
		}
	}
}

// execute performs a single run, surviving its failure
func (s *Scheduler) execute(ctx context.Context) {
	if err := s.runner.Run(ctx); err != nil {
		// Already reported by the job, the loop lives on
		s.logger.Error(
			"scheduled run failed",
			"err", err,
		)
	}
}

// NextTrigger computes the next occurrence of the daily trigger time,
// strictly after the given moment
func (s *Scheduler) NextTrigger(after time.Time) time.Time {
	after = after.UTC()

	trigger := time.Date(
		after.Year(), after.Month(), after.Day(),
		s.triggerHour, s.triggerMinute, 0, 0,
		time.UTC,
	)

	if !trigger.After(after) {
		trigger = trigger.AddDate(0, 0, 1)
	}

	return trigger
}

// schedule queues a run for the given time
func (s *Scheduler) schedule(at time.Time) {
	s.qMux.Lock()
	defer s.qMux.Unlock()

	s.q.Push(scheduledRun{at: at})
}

// nextDue pops the next due run, as of the moment of calling
func (s *Scheduler) nextDue() *scheduledRun {
	s.qMux.Lock()
	defer s.qMux.Unlock()

	if s.q.Len() == 0 {
		return nil
	}

	if s.q.Index(0).at.After(s.clock().UTC()) {
		return nil // earliest run is in the future
	}

	return s.q.PopFront()
}
