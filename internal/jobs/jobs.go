// Package jobs runs the named periodic jobs (ingest, promote, rank) with
// single-flight protection and reports a uniform summary for each run.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// Job names.
const (
	Ingest  = "ingest"
	Promote = "promote"
	Rank    = "rank"
)

var (
	// ErrUnknownJob is returned when no job is registered under a name.
	ErrUnknownJob = errors.New("jobs: unknown job")
	// ErrAlreadyRunning is returned when the job is running here or on another instance.
	ErrAlreadyRunning = errors.New("jobs: already running")
)

// Status is the overall result of a run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusAborted Status = "aborted"
)

// Counts are the per-run tallies.
type Counts struct {
	Sources    int `json:"sources"`
	Processed  int `json:"processed"`
	Created    int `json:"created"`
	Duplicated int `json:"duplicated"`
	Skipped    int `json:"skipped"`
	Errored    int `json:"errored"`
	Deferred   int `json:"deferred"`
}

// SourceError is one failure recorded during a run.
type SourceError struct {
	SourceID string `json:"source_id,omitempty"`
	Source   string `json:"source,omitempty"`
	Item     string `json:"item,omitempty"`
	Error    string `json:"error"`
}

// Report is what a job function hands back.
type Report struct {
	Counts
	Errors []SourceError
}

// Func is a job body. A non-nil error marks the run aborted; the report is
// still published as the partial summary.
type Func func(ctx context.Context) (Report, error)

// Summary is the structured result of one run.
type Summary struct {
	Job       string    `json:"job"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Counts
	SourceErrors []SourceError `json:"source_errors"`
	Error        string        `json:"error,omitempty"`
}

// Locker provides cross-instance mutual exclusion.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// Runner owns the registered jobs.
type Runner struct {
	locker Locker
	now    func() time.Time

	mu      sync.Mutex
	jobs    map[string]Func
	running map[string]bool
}

// NewRunner creates a Runner. locker may be nil for single-instance use.
func NewRunner(locker Locker) *Runner {
	return &Runner{
		locker:  locker,
		now:     time.Now,
		jobs:    make(map[string]Func),
		running: make(map[string]bool),
	}
}

// Register adds or replaces the job under name.
func (r *Runner) Register(name string, fn Func) {
	r.mu.Lock()
	r.jobs[name] = fn
	r.mu.Unlock()
}

// Names lists registered jobs.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) acquire(name string) (Func, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.jobs[name]
	if !ok {
		return nil, ErrUnknownJob
	}
	if r.running[name] {
		return nil, ErrAlreadyRunning
	}
	r.running[name] = true
	return fn, nil
}

func (r *Runner) done(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
}

// Trigger runs the named job synchronously. The returned error is only set
// when the job did not start; a run that started always yields a summary.
func (r *Runner) Trigger(ctx context.Context, name string) (Summary, error) {
	fn, err := r.acquire(name)
	if err != nil {
		return Summary{}, err
	}
	defer r.done(name)

	started := r.now()
	sum := Summary{Job: name, StartedAt: started.UTC(), SourceErrors: []SourceError{}}

	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, name)
		if err != nil {
			return finish(sum, Report{}, err, r.now()), nil
		}
		if !ok {
			return Summary{}, ErrAlreadyRunning
		}
		defer release()
	}

	rep, err := safeRun(ctx, name, fn)
	return finish(sum, rep, err, r.now()), nil
}

func finish(sum Summary, rep Report, err error, end time.Time) Summary {
	sum.Counts = rep.Counts
	if len(rep.Errors) > 0 {
		sum.SourceErrors = rep.Errors
	}
	sum.ElapsedMS = end.Sub(sum.StartedAt).Milliseconds()
	sum.Status = StatusOK
	if err != nil {
		sum.Status = StatusAborted
		sum.Error = err.Error()
	}

	attrs := []any{
		"job", sum.Job, "status", sum.Status, "elapsed_ms", sum.ElapsedMS,
		"processed", sum.Processed, "created", sum.Created, "duplicated", sum.Duplicated,
		"skipped", sum.Skipped, "errored", sum.Errored, "deferred", sum.Deferred,
	}
	if err != nil {
		slog.Error("jobs: run aborted", append(attrs, "err", err)...)
	} else {
		slog.Info("jobs: run complete", attrs...)
	}
	return sum
}

// safeRun converts a panic in the job body into an aborted run.
func safeRun(ctx context.Context, name string, fn Func) (rep Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("jobs: panic", "job", name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("jobs: %s panicked: %v", name, p)
		}
	}()
	return fn(ctx)
}
