package ingest

import (
	"log/slog"
	"time"

	"github.com/sig-0/ratefeed/metrics"
)

type JobOption func(j *Job)

// WithJobLogger specifies the logger for the job
func WithJobLogger(l *slog.Logger) JobOption {
	return func(j *Job) {
		j.logger = l
	}
}

// WithMetrics specifies the metrics sink for the job
func WithMetrics(m *metrics.IngestMetrics) JobOption {
	return func(j *Job) {
		j.metrics = m
	}
}

// WithAttempts specifies the per-phase attempt budget.
// Defaults to 3
func WithAttempts(attempts uint) JobOption {
	return func(j *Job) {
		if attempts > 0 {
			j.attempts = attempts
		}
	}
}

// WithBackoffInitial specifies the first retry wait interval.
// Subsequent waits grow exponentially
func WithBackoffInitial(d time.Duration) JobOption {
	return func(j *Job) {
		j.backoffInitial = d
	}
}

// WithFetchTimeout bounds each provider fetch attempt
func WithFetchTimeout(d time.Duration) JobOption {
	return func(j *Job) {
		j.fetchTimeout = d
	}
}

// WithStoreTimeout bounds each storage write attempt
func WithStoreTimeout(d time.Duration) JobOption {
	return func(j *Job) {
		j.storeTimeout = d
	}
}

// WithAsOf overrides the provider-stated date before persisting.
// Used for manual re-runs of a past date
func WithAsOf(t time.Time) JobOption {
	return func(j *Job) {
		j.asOfOverride = &t
	}
}

type SchedulerOption func(s *Scheduler)

// WithLogger specifies the logger for the scheduler
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithTrigger specifies the daily UTC trigger time.
// Defaults to 06:00 UTC
func WithTrigger(hour, minute int) SchedulerOption {
	return func(s *Scheduler) {
		s.triggerHour = hour
		s.triggerMinute = minute
	}
}

// WithRunImmediately fires the first run on start instead of waiting
// for the next trigger
func WithRunImmediately() SchedulerOption {
	return func(s *Scheduler) {
		s.runImmediately = true
	}
}

// WithQueryInterval specifies how often the scheduler polls for due runs.
// Defaults to 1s
func WithQueryInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.queryInterval = d
	}
}

// WithClock specifies the time source for the scheduler.
// Used in tests
func WithClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}
