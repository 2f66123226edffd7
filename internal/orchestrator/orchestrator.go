package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/internal/metrics"
	"github.com/cuongbtq/push-orchestrator/internal/store"
)

const (
	sourceUpdate  = "update"
	sourceWebhook = "webhook"

	defaultSaveTimeout = 10 * time.Second
)

// Listener is notified after every committed job mutation, in commit order.
// Implementations are called with the orchestrator lock held and must not block.
type Listener interface {
	JobChanged(j job.Job)
}

// Config holds orchestrator dependencies and retention settings
type Config struct {
	Store        store.Store
	Logger       *slog.Logger
	MaxJobs      int
	CompletedTTL time.Duration
	SaveTimeout  time.Duration
	Now          func() time.Time
}

// WebhookEvent is an outcome reported asynchronously by a downstream target
type WebhookEvent struct {
	JobID   string
	Source  job.Target
	Status  job.SubStatus
	Message string
	Error   string
	Details map[string]any
}

// Orchestrator owns the job map. Every mutation is serialized through mu,
// persisted before it becomes visible, and then fanned out to listeners.
type Orchestrator struct {
	store        store.Store
	logger       *slog.Logger
	maxJobs      int
	completedTTL time.Duration
	saveTimeout  time.Duration
	now          func() time.Time

	mu        sync.Mutex
	jobs      map[string]job.Job
	listeners []Listener

	startOnce sync.Once
	ready     chan struct{}
	startErr  error
}

// New creates an orchestrator. Start must be called before it serves requests.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:        cfg.Store,
		logger:       cfg.Logger,
		maxJobs:      cfg.MaxJobs,
		completedTTL: cfg.CompletedTTL,
		saveTimeout:  cfg.SaveTimeout,
		now:          cfg.Now,
		jobs:         make(map[string]job.Job),
		ready:        make(chan struct{}),
	}
	if o.maxJobs <= 0 {
		o.maxJobs = DefaultMaxJobs
	}
	if o.completedTTL <= 0 {
		o.completedTTL = DefaultCompletedTTL
	}
	if o.saveTimeout <= 0 {
		o.saveTimeout = defaultSaveTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// AddListener registers a listener for committed mutations
func (o *Orchestrator) AddListener(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Start loads the persisted jobs. Operations issued before Start returns
// wait for it; if loading fails they all return the load error.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.startOnce.Do(func() {
		defer close(o.ready)

		loaded, err := o.store.Load(ctx)
		if err != nil {
			metrics.StoreFailures.WithLabelValues("load").Inc()
			o.startErr = job.NewPersistenceError("load", err)
			o.logger.Error("Failed to load jobs",
				slog.Any("error", err),
			)
			return
		}

		if loaded == nil {
			loaded = make(map[string]job.Job)
		}
		o.mu.Lock()
		o.jobs = loaded
		o.mu.Unlock()
		metrics.TrackedJobs.Set(float64(len(loaded)))

		o.logger.Info("Jobs loaded",
			slog.Int("count", len(loaded)),
		)
	})
	return o.startErr
}

func (o *Orchestrator) awaitReady(ctx context.Context) error {
	select {
	case <-o.ready:
		return o.startErr
	default:
	}

	select {
	case <-o.ready:
		return o.startErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for job store: %w", ctx.Err())
	}
}

// Create registers a new pending job. Reusing an id is rejected with ErrJobExists.
func (o *Orchestrator) Create(ctx context.Context, jobID, commitID string, target job.Target) (job.Job, error) {
	if err := o.awaitReady(ctx); err != nil {
		return job.Job{}, err
	}

	j, err := job.New(jobID, commitID, target, o.now())
	if err != nil {
		return job.Job{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.jobs[jobID]; exists {
		return job.Job{}, fmt.Errorf("%w: %s", job.ErrJobExists, jobID)
	}

	next := maps.Clone(o.jobs)
	next[jobID] = j
	if err := o.commitLocked(ctx, "create", next, jobID); err != nil {
		return job.Job{}, err
	}

	metrics.JobsCreated.Inc()
	o.logger.Info("Job created",
		slog.String("job_id", jobID),
		slog.String("commit_id", commitID),
		slog.String("target", string(target)),
	)

	o.notifyLocked(j)
	return j.Clone(), nil
}

// UpdateTargetStatus sets one target's sub-status as reported by the pushing caller
func (o *Orchestrator) UpdateTargetStatus(ctx context.Context, jobID string, target job.Target, status job.SubStatus, result *job.Result) (job.Job, error) {
	return o.apply(ctx, sourceUpdate, jobID, target, status, result)
}

// ApplyWebhook records an outcome delivered by a target's callback. The full
// result object is stored on the target's result field.
func (o *Orchestrator) ApplyWebhook(ctx context.Context, event WebhookEvent) (job.Job, error) {
	result := &job.Result{
		Success: event.Status == job.SubStatusSuccess,
		Message: event.Message,
		Error:   event.Error,
		Details: event.Details,
	}
	return o.apply(ctx, sourceWebhook, event.JobID, event.Source, event.Status, result)
}

func (o *Orchestrator) apply(ctx context.Context, source, jobID string, target job.Target, status job.SubStatus, result *job.Result) (job.Job, error) {
	if err := o.awaitReady(ctx); err != nil {
		return job.Job{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	current, ok := o.jobs[jobID]
	if !ok {
		return job.Job{}, fmt.Errorf("%w: %s", job.ErrJobNotFound, jobID)
	}

	updated := current.Clone()
	changed, err := updated.SetSubStatus(target, status, result, o.now())
	if err != nil {
		return job.Job{}, err
	}
	if !changed {
		o.logger.Debug("Ignoring update for terminal job",
			slog.String("job_id", jobID),
			slog.String("source", source),
			slog.String("target", string(target)),
			slog.String("status", string(status)),
		)
		return current.Clone(), nil
	}

	next := maps.Clone(o.jobs)
	next[jobID] = updated
	if err := o.commitLocked(ctx, source, next, jobID); err != nil {
		return job.Job{}, err
	}

	metrics.JobTransitions.WithLabelValues(source, string(updated.OverallStatus)).Inc()
	o.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("source", source),
		slog.String("target", string(target)),
		slog.String("target_status", string(status)),
		slog.String("overall_status", string(updated.OverallStatus)),
	)

	o.notifyLocked(updated)
	return updated.Clone(), nil
}

// GetStatus returns the current snapshot of a job
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (job.Job, error) {
	if err := o.awaitReady(ctx); err != nil {
		return job.Job{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	j, ok := o.jobs[jobID]
	if !ok {
		return job.Job{}, fmt.Errorf("%w: %s", job.ErrJobNotFound, jobID)
	}
	return j.Clone(), nil
}

// ListActive returns every job that is neither completed nor failed, most
// recently updated first
func (o *Orchestrator) ListActive(ctx context.Context) ([]job.Job, error) {
	return o.list(ctx, func(j job.Job) bool { return !j.IsTerminal() })
}

// ListJobs returns every tracked job, most recently updated first
func (o *Orchestrator) ListJobs(ctx context.Context) ([]job.Job, error) {
	return o.list(ctx, func(job.Job) bool { return true })
}

func (o *Orchestrator) list(ctx context.Context, keep func(job.Job) bool) ([]job.Job, error) {
	if err := o.awaitReady(ctx); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]job.Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		if keep(j) {
			out = append(out, j.Clone())
		}
	}
	slices.SortFunc(out, func(a, b job.Job) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if a.JobID < b.JobID {
			return -1
		}
		if a.JobID > b.JobID {
			return 1
		}
		return 0
	})
	return out, nil
}

// Sweep deletes terminal jobs whose completion is older than the retention
// window and returns how many were removed
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	if err := o.awaitReady(ctx); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := o.now().Add(-o.completedTTL)
	next := maps.Clone(o.jobs)
	removed := 0
	for id, j := range next {
		if expired(j, cutoff) {
			delete(next, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	if err := o.commitLocked(ctx, "sweep", next, ""); err != nil {
		return 0, err
	}
	metrics.JobsEvicted.WithLabelValues("expired").Add(float64(removed))
	return removed, nil
}

// Len returns the number of tracked jobs
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.jobs)
}

// commitLocked enforces the size cap on next, persists it and only then
// makes it the live map. On a store failure the live map is left untouched.
func (o *Orchestrator) commitLocked(ctx context.Context, op string, next map[string]job.Job, keep string) error {
	evicted := enforceCap(next, o.maxJobs, keep)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.saveTimeout)
	defer cancel()

	start := time.Now()
	err := o.store.Save(saveCtx, next)
	metrics.StoreSaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreFailures.WithLabelValues("save").Inc()
		o.logger.Error("Failed to persist jobs",
			slog.String("op", op),
			slog.Any("error", err),
		)
		return job.NewPersistenceError(op, err)
	}

	o.jobs = next
	metrics.TrackedJobs.Set(float64(len(next)))

	if len(evicted) > 0 {
		metrics.JobsEvicted.WithLabelValues("capacity").Add(float64(len(evicted)))
		o.logger.Info("Evicted least recently updated jobs",
			slog.Int("count", len(evicted)),
			slog.Int("max_jobs", o.maxJobs),
		)
	}
	return nil
}

func (o *Orchestrator) notifyLocked(j job.Job) {
	for _, l := range o.listeners {
		l.JobChanged(j.Clone())
	}
}

// IsNotFound reports whether err means the job id is unknown
func IsNotFound(err error) bool {
	return errors.Is(err, job.ErrJobNotFound)
}
