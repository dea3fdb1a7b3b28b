package cron

import (
	"context"
	"time"
)

// Job is a scheduled task run by the cron worker. Run reports how many rows
// it changed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

// Schedule pairs a job with its cadence. A zero Every runs the job on every
// cycle.
type Schedule struct {
	Job   Job
	Every time.Duration
}

// Registry tracks scheduled jobs and when each last ran.
type Registry struct {
	schedules []Schedule
	lastRun   map[string]time.Time
}

// NewRegistry builds a registry preloaded with the provided schedules.
func NewRegistry(schedules ...Schedule) *Registry {
	registry := &Registry{lastRun: make(map[string]time.Time)}
	for _, sched := range schedules {
		registry.Register(sched.Job, sched.Every)
	}
	return registry
}

// Register adds a job with its cadence.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every < 0 {
		every = 0
	}
	r.schedules = append(r.schedules, Schedule{Job: job, Every: every})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.schedules))
	for _, sched := range r.schedules {
		jobs = append(jobs, sched.Job)
	}
	return jobs
}

// Due returns the jobs whose cadence has elapsed at now.
func (r *Registry) Due(now time.Time) []Job {
	var due []Job
	for _, sched := range r.schedules {
		last, ok := r.lastRun[sched.Job.Name()]
		if !ok || sched.Every == 0 || !now.Before(last.Add(sched.Every)) {
			due = append(due, sched.Job)
		}
	}
	return due
}

// MarkRan records that job ran at now.
func (r *Registry) MarkRan(job Job, now time.Time) {
	r.lastRun[job.Name()] = now
}
