// Package reconcile deletes temp buckets once the downstream resource that
// consumes them has left its transient status.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agent-bff/internal/domain"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultInterval        = 30 * time.Second
	DefaultMaxAge          = 24 * time.Hour
	DefaultTransientStatus = "preparing"
	pollTimeout            = 30 * time.Second
)

// BucketDeleter deletes temp buckets idempotently.
// Implemented by storage.TempBucketManager.
type BucketDeleter interface {
	DeleteBucket(ctx context.Context, name string) (*domain.DeleteBucketResult, error)
}

// Options configures the polling policy.
type Options struct {
	Interval        time.Duration
	MaxAge          time.Duration
	TransientStatus string
}

// Scheduler polls the status of each armed task's resource on a fixed interval
// and deletes the task's temp bucket on the first non-transient status, on any
// status error, or once the task is older than MaxAge. Completed tasks are
// never re-armed.
type Scheduler struct {
	cron    *cron.Cron
	catalog domain.CatalogService
	buckets BucketDeleter
	tasks   domain.ReconciliationTaskRepository
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cron.EntryID // task ID → cron entry
	pending map[string]*domain.ReconciliationTask
}

// NewScheduler creates a new reconciliation scheduler. tasks may be nil, in
// which case pending tasks do not survive a restart.
func NewScheduler(catalog domain.CatalogService, buckets BucketDeleter, tasks domain.ReconciliationTaskRepository, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.TransientStatus == "" {
		opts.TransientStatus = DefaultTransientStatus
	}
	logger = logger.With("component", "reconcile")
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLogger{logger})),
		catalog: catalog,
		buckets: buckets,
		tasks:   tasks,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
		pending: make(map[string]*domain.ReconciliationTask),
	}
}

// Start re-arms persisted pending tasks and starts the cron scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.tasks != nil {
		pending, err := s.tasks.ListPending(ctx)
		if err != nil {
			return fmt.Errorf("load pending reconciliation tasks: %w", err)
		}
		for _, t := range pending {
			s.schedule(t)
		}
		if len(pending) > 0 {
			s.logger.Info("re-armed pending reconciliation tasks", "count", len(pending))
		}
	}
	s.cron.Start()
	s.logger.Info("reconciliation scheduler started", "interval", s.opts.Interval, "max_age", s.opts.MaxAge)
	return nil
}

// Stop stops the cron scheduler and waits for running ticks to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("reconciliation scheduler stopped")
}

// Arm persists task and schedules it. A persistence failure is logged and the
// task still runs in memory.
func (s *Scheduler) Arm(ctx context.Context, task domain.ReconciliationTask) error {
	if task.ResourceID == "" || task.TempBucketName == "" {
		return domain.ErrValidation("reconciliation task needs a resource id and a temp bucket")
	}
	if task.ID == "" {
		task.ID = domain.NewID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now().UTC()
	}
	task.State = domain.ReconciliationScheduled

	if s.tasks != nil {
		if err := s.tasks.Create(ctx, &task); err != nil {
			s.logger.Warn("persist reconciliation task", "task_id", task.ID, "error", err)
		}
	}
	s.schedule(task)
	s.logger.Info("reconciliation armed",
		"task_id", task.ID, "resource_id", task.ResourceID, "bucket", task.TempBucketName)
	return nil
}

// Pending returns a snapshot of all tasks not yet completed, oldest first.
func (s *Scheduler) Pending() []domain.ReconciliationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ReconciliationTask, 0, len(s.pending))
	for _, t := range s.pending {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Scheduler) schedule(task domain.ReconciliationTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[task.ID]; ok {
		return
	}
	id := task.ID
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).Then(cron.FuncJob(func() {
		s.tick(context.Background(), id)
	}))
	entryID := s.cron.Schedule(cron.Every(s.opts.Interval), job)
	s.entries[id] = entryID
	s.pending[id] = &task
}

// tick performs one poll of task id. It reports whether the task completed.
func (s *Scheduler) tick(ctx context.Context, id string) bool {
	s.mu.Lock()
	t, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	t.State = domain.ReconciliationPolling
	t.Polls++
	task := *t
	s.mu.Unlock()

	logger := s.logger.With("task_id", task.ID, "resource_id", task.ResourceID, "bucket", task.TempBucketName)

	if age := s.now().Sub(task.CreatedAt); age > s.opts.MaxAge {
		logger.Warn("reconciliation task expired", "age", age)
		s.complete(ctx, task, domain.CompletionExpired, logger)
		return true
	}

	pollCtx, cancel := context.WithTimeout(domain.WithIdentity(ctx, task.ActingIdentity), pollTimeout)
	status, err := s.catalog.GetDatasourceStatus(pollCtx, task.ResourceID)
	cancel()
	if err != nil {
		logger.Warn("status check failed; treating as terminal", "error", err)
		s.complete(ctx, task, domain.CompletionStatusError, logger)
		return true
	}

	s.mu.Lock()
	if t, ok := s.pending[id]; ok {
		t.LastStatus = status
	}
	s.mu.Unlock()

	if status == s.opts.TransientStatus {
		logger.Debug("resource still transient", "status", status, "polls", task.Polls)
		if s.tasks != nil {
			if err := s.tasks.RecordPoll(ctx, task.ID, status); err != nil {
				logger.Warn("record reconciliation poll", "error", err)
			}
		}
		return false
	}

	task.LastStatus = status
	s.complete(ctx, task, domain.CompletionTerminalPrefix+status, logger)
	return true
}

// complete unschedules the task, deletes its bucket (best effort) and records
// the outcome.
func (s *Scheduler) complete(ctx context.Context, task domain.ReconciliationTask, reason string, logger *slog.Logger) {
	s.mu.Lock()
	if entryID, ok := s.entries[task.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, task.ID)
	}
	delete(s.pending, task.ID)
	s.mu.Unlock()

	res, err := s.buckets.DeleteBucket(ctx, task.TempBucketName)
	if err != nil {
		logger.Error("delete temp bucket", "error", err)
	} else {
		logger.Info("reconciliation completed", "reason", reason, "deleted_objects", res.DeletedObjectCount)
	}

	if s.tasks != nil {
		if err := s.tasks.Complete(ctx, task.ID, reason, s.now().UTC()); err != nil {
			logger.Warn("record reconciliation completion", "error", err)
		}
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Compile-time check that Scheduler implements ReconciliationArmer.
var _ domain.ReconciliationArmer = (*Scheduler)(nil)
