// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named maintenance task fired on a cron schedule.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler fires registered jobs on a shared cron schedule. Job failures
// are logged, never fatal.
type Scheduler struct {
	schedule   string
	jobs       []Job
	jobTimeout time.Duration
	cron       *cron.Cron
}

// New creates a Scheduler that fires every registered job whenever the
// given cron expression matches.
func New(schedule string, jobs ...Job) *Scheduler {
	return &Scheduler{
		schedule:   schedule,
		jobs:       jobs,
		jobTimeout: 5 * time.Minute,
		cron:       cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the cron entry and starts the ticker.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.fire); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("maintenance scheduled", "schedule", s.schedule, "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) fire() {
	for _, job := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			slog.Error("maintenance job failed", "job", job.Name, "error", err)
		} else {
			slog.Info("maintenance job done", "job", job.Name, "elapsed", time.Since(start))
		}
		cancel()
	}
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
