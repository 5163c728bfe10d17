// Package batch runs GitHub operations across many repositories at once.
// Tasks are ordered by priority, gated on the shared rate-limit budget,
// executed on a bounded worker pool with retry, and collected into a
// Report that aggregates failures by error type.
package batch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hugo-valle/classroom-pilot/gh_errors"
	"github.com/hugo-valle/classroom-pilot/rate_limit"
	"github.com/hugo-valle/classroom-pilot/rate_limit/backends/memory"
	"github.com/hugo-valle/classroom-pilot/utils/logger"
	"github.com/hugo-valle/classroom-pilot/utils/priority_queue"
	"github.com/hugo-valle/classroom-pilot/utils/retry"
)

// Task is one unit of work against a single repository.
type Task struct {
	// Repo identifies the repository ("org/assignment-student") and keys
	// the task's entry in the final Report.
	Repo string

	// Operation names what the task does ("sync repository", "add
	// collaborator"). Used for logging and error context.
	Operation string

	// Priority orders dispatch. Higher priorities run first; equal
	// priorities run in the order they were added.
	Priority int

	// Resource is the rate-limit bucket the task draws from.
	// Defaults to the core API budget.
	Resource rate_limit.Resource

	// Cost is how many requests the task is expected to consume.
	// Zero means one. Use rate_limit.OperationCost to weight mutations.
	Cost int

	// Fields carries extra context attached to logs and errors.
	Fields map[string]string

	// Fn does the actual work. It is retried according to the runner's
	// retry options, so it must be safe to call more than once.
	Fn func(ctx context.Context) error
}

func (t *Task) cost() int {
	if t.Cost <= 0 {
		return 1
	}
	return t.Cost
}

func (t *Task) operation() string {
	if t.Operation == "" {
		return "process repository"
	}
	return t.Operation
}

// Options configures a Runner.
type Options struct {
	// Workers is the number of tasks that may run concurrently.
	// Defaults to 4.
	Workers int

	// Tracker is the shared rate-limit tracker tasks are gated on.
	// When nil the runner creates its own in-memory tracker.
	Tracker *rate_limit.Tracker

	// Retry configures how each task's attempts are paced. The task's
	// operation name and the runner's logger override the corresponding
	// fields per task.
	Retry retry.Options

	// Logger receives runner and per-task log lines.
	Logger logger.Logger

	// EventBufferSize caps the event channel. Defaults to 1000.
	EventBufferSize int
}

// Runner executes queued tasks on a bounded worker pool.
type Runner struct {
	opts    Options
	log     logger.Logger
	tracker *rate_limit.Tracker

	queue  *priority_queue.PriorityQueue[*Task]
	pool   chan *Task
	events chan *Event
	wg     sync.WaitGroup

	mu          sync.Mutex
	results     map[string]error
	seen        map[string]bool
	queued      int
	dispatched  int
	busyWorkers int
	started     bool

	runOnce sync.Once
	report  *Report
}

// NewRunner creates a runner. Queue tasks with Add, then call Run.
func NewRunner(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Tracker == nil {
		opts.Tracker = rate_limit.NewTracker(memory.NewBackend())
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 1000
	}

	return &Runner{
		opts:    opts,
		log:     opts.Logger,
		tracker: opts.Tracker,
		queue:   priority_queue.NewMaxPriorityQueue[*Task](),
		pool:    make(chan *Task, opts.Workers),
		events:  make(chan *Event, opts.EventBufferSize),
		results: make(map[string]error),
		seen:    make(map[string]bool),
	}
}

// Events returns the channel runner lifecycle events are published on.
// The channel is closed when Run finishes. Slow consumers lose events
// rather than stalling the run.
func (r *Runner) Events() <-chan *Event {
	return r.events
}

// Add queues a task. Each repository may carry one task per run, since
// the report keys outcomes by repository. Tasks must be added before Run
// is called; later additions are rejected.
func (r *Runner) Add(task *Task) error {
	if task == nil || task.Fn == nil {
		return fmt.Errorf("batch: task must have a function")
	}
	if task.Repo == "" {
		return fmt.Errorf("batch: task must name a repository")
	}

	// The lock covers the queue push and the event emit too, so an Add
	// racing Run can never touch the event channel after Run closed it.
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("batch: cannot add %s after the run has started", task.Repo)
	}
	if r.seen[task.Repo] {
		return fmt.Errorf("batch: %s is already queued", task.Repo)
	}
	r.seen[task.Repo] = true
	r.queued++

	r.queue.Push(&priority_queue.QueueItem[*Task]{Item: task, Priority: task.Priority})
	r.emit(EventTaskQueued, task.Repo, map[string]any{
		"priority": task.Priority,
	})

	r.log.Debugf("Queued %s for %s (priority %d)", task.Repo, task.operation(), task.Priority)
	return nil
}

// Run drains the queue and blocks until every task has finished or the
// context is cancelled. It may be called once; later calls return the
// same report.
func (r *Runner) Run(ctx context.Context) *Report {
	r.runOnce.Do(func() {
		r.mu.Lock()
		r.started = true
		total := r.queued
		r.mu.Unlock()

		start := time.Now()
		baselineRequests := r.tracker.TotalRequests()
		r.log.Infof("Starting batch run: %d tasks, %d workers", total, r.opts.Workers)

		r.startWorkers(ctx)
		r.dispatch(ctx)
		r.wg.Wait()
		close(r.events)

		r.report = r.buildReport(start, baselineRequests)
		r.log.Infof("Batch run finished in %v: %s", r.report.Duration.Round(time.Millisecond), r.report.Summary.String())
	})
	return r.report
}

// GetStats returns a snapshot of runner progress.
func (r *Runner) GetStats() RunnerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RunnerStats{
		Queued:      r.queued,
		QueueSize:   r.queue.Size(),
		Dispatched:  r.dispatched,
		Completed:   len(r.results),
		BusyWorkers: r.busyWorkers,
		Tracker:     r.tracker.GetStats(),
	}
}

// RunnerStats is a point-in-time view of a run.
type RunnerStats struct {
	Queued      int
	QueueSize   int
	Dispatched  int
	Completed   int
	BusyWorkers int
	Tracker     *rate_limit.TrackerStats
}

func (r *Runner) startWorkers(ctx context.Context) {
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
}

// worker pulls tasks from the pool until it closes.
func (r *Runner) worker(ctx context.Context, workerID int) {
	defer r.wg.Done()

	for task := range r.pool {
		r.changeBusyState(true)
		r.runTask(ctx, workerID, task)
		r.changeBusyState(false)
	}
}

// dispatch feeds queued tasks to the pool in priority order, waiting out
// the rate-limit window whenever the budget is exhausted.
func (r *Runner) dispatch(ctx context.Context) {
	defer close(r.pool)

	for {
		task, ok := r.queue.TryPop()
		if !ok {
			return
		}

		if err := r.gateOnBudget(ctx, task); err != nil {
			r.record(task, err)
			r.failRemaining(ctx)
			return
		}

		// Reserve the task's budget up front so concurrent dispatches
		// can't collectively overshoot the window.
		r.tracker.RecordConsumption(task.Resource, task.cost())

		r.mu.Lock()
		r.dispatched++
		r.mu.Unlock()

		r.emit(EventTaskDispatched, task.Repo, map[string]any{
			"queue_size": r.queue.Size(),
		})

		select {
		case r.pool <- task:
		case <-ctx.Done():
			r.record(task, cancelError(task, ctx.Err()))
			r.failRemaining(ctx)
			return
		}
	}
}

// gateOnBudget blocks until the task's resource has budget left, adding
// a small random stagger so parallel runners don't stampede the API the
// moment a window resets.
func (r *Runner) gateOnBudget(ctx context.Context, task *Task) error {
	for {
		if r.tracker.BudgetAvailable(task.Resource) >= task.cost() {
			return nil
		}

		randomStagger := time.Duration(rand.Intn(100)) * time.Millisecond
		wait := r.tracker.TimeUntilReset(task.Resource) + randomStagger

		r.log.Warnf("Budget for %s exhausted, holding %s for %v", task.Resource, task.Repo, wait.Round(time.Millisecond))
		r.emit(EventBudgetBlocked, task.Repo, map[string]any{
			"resource": task.Resource.String(),
			"wait":     wait.String(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return cancelError(task, ctx.Err())
		case <-timer.C:
		}
	}
}

// runTask executes one task with retry and records its outcome.
func (r *Runner) runTask(ctx context.Context, workerID int, task *Task) {
	r.emit(EventTaskStarted, task.Repo, map[string]any{
		"worker_id": workerID,
	})

	fields := map[string]string{"repo": task.Repo}
	for k, v := range task.Fields {
		fields[k] = v
	}
	op := gh_errors.BeginOperation(r.log, task.operation(), fields)
	defer op.End()

	err := r.execute(ctx, task)
	if err != nil {
		r.record(task, op.Error("", err))
		r.emit(EventTaskFailed, task.Repo, map[string]any{
			"error": err.Error(),
		})
		return
	}

	op.Success("completed")
	r.record(task, nil)
	r.emit(EventTaskSucceeded, task.Repo, nil)
}

// execute runs the task function under the retry engine, converting a
// panic into an error so one bad task can't take down a worker.
func (r *Runner) execute(ctx context.Context, task *Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = gh_errors.New(
				gh_errors.ErrorTypeGeneric,
				fmt.Sprintf("task panicked: %v", rec),
				nil,
				map[string]string{"repo": task.Repo},
			)
		}
	}()

	opts := r.opts.Retry
	opts.Name = fmt.Sprintf("%s %s", task.operation(), task.Repo)
	opts.Logger = r.log

	userOnRetry := opts.OnRetry
	opts.OnRetry = func(attempt int, cause error, delay time.Duration) {
		r.emit(EventTaskRetrying, task.Repo, map[string]any{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   cause.Error(),
		})
		if userOnRetry != nil {
			userOnRetry(attempt, cause, delay)
		}
	}

	return retry.Do(ctx, opts, task.Fn)
}

func (r *Runner) record(task *Task, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[task.Repo] = err
}

// failRemaining marks every still-queued task as cancelled so the report
// accounts for the whole batch.
func (r *Runner) failRemaining(ctx context.Context) {
	for {
		task, ok := r.queue.TryPop()
		if !ok {
			return
		}
		r.record(task, cancelError(task, ctx.Err()))
		r.emit(EventTaskFailed, task.Repo, map[string]any{
			"error": "run cancelled before dispatch",
		})
	}
}

func cancelError(task *Task, cause error) error {
	return gh_errors.New(
		gh_errors.ErrorTypeGeneric,
		fmt.Sprintf("run cancelled before %s finished", task.Repo),
		cause,
		map[string]string{"repo": task.Repo},
	)
}

// changeBusyState updates the busy worker count
func (r *Runner) changeBusyState(increase bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if increase {
		r.busyWorkers++
	} else {
		r.busyWorkers--
	}
}
