// Package jobs tracks asynchronous assistant runs. A submitted request
// becomes a pending Job keyed by an opaque handle; the bound run
// mutates it through the registry and polling clients read copies.
// Jobs are bookkeeping only: sweeping an old handle does not interrupt
// a run still in flight, it just discards the run's eventual result.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for unknown handles, including handles
// whose jobs have been swept.
var ErrNotFound = errors.New("job not found")

// Job statuses.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Retention and sweep defaults.
const (
	DefaultTTL        = time.Hour
	DefaultSweepEvery = 5 * time.Minute
)

// ToolRecord is one tool invocation from a run, in invocation order.
// Immutable once appended.
type ToolRecord struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Job is one asynchronous assistant run.
type Job struct {
	ID           string
	CreatedAt    time.Time
	Status       string
	UserMessage  string
	ToolLog      []ToolRecord
	Response     string
	ResponseHTML string
	Error        string
}

// RunFunc is the work scheduled for a submitted job. It receives the
// job's handle and is expected to drive the job to complete or error
// through the registry's mutators.
type RunFunc func(id string)

// Registry owns all Job records. All methods are safe for concurrent
// use.
type Registry struct {
	ttl        time.Duration
	sweepEvery time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job
}

// New creates a Registry with the default retention window.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ttl:        DefaultTTL,
		sweepEvery: DefaultSweepEvery,
		logger:     logger,
		now:        time.Now,
		jobs:       make(map[string]*Job),
	}
}

// Submit stores a pending Job, schedules run for it without blocking,
// and returns the handle immediately.
func (r *Registry) Submit(userMessage string, run RunFunc) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.jobs[id] = &Job{
		ID:          id,
		CreatedAt:   r.now(),
		Status:      StatusPending,
		UserMessage: userMessage,
		ToolLog:     []ToolRecord{},
	}
	r.mu.Unlock()

	r.logger.Debug("job submitted", "job_id", id)
	go run(id)
	return id
}

// Get returns a copy of the job, or ErrNotFound for unknown or swept
// handles.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	out := *job
	out.ToolLog = append([]ToolRecord(nil), job.ToolLog...)
	return out, nil
}

// Pending returns the number of jobs still running.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, job := range r.jobs {
		if job.Status == StatusPending {
			n++
		}
	}
	return n
}

// AppendTool records a tool invocation on the job's log. A no-op when
// the handle has been swept mid-run.
func (r *Registry) AppendTool(id string, rec ToolRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.ToolLog = append(job.ToolLog, rec)
	}
}

// Complete marks the job complete with its final text. A no-op when the
// handle has been swept mid-run; the late result is simply discarded.
func (r *Registry) Complete(id, text, html string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return
	}
	job.Status = StatusComplete
	job.Response = text
	job.ResponseHTML = html
}

// Fail marks the job errored. A no-op when the handle has been swept.
func (r *Registry) Fail(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return
	}
	job.Status = StatusError
	job.Error = msg
}

// Sweep deletes every job older than the retention window regardless of
// status and returns the number removed. A still-pending job past the
// window is dropped too; its run keeps going but writes into a handle
// that no longer exists.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps on a fixed interval until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.logger.Debug("swept expired jobs", "count", n)
			}
		}
	}
}
