package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/observability/metrics"
)

// TaskCounter is the read-only slice of the task store the worker needs
type TaskCounter interface {
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)
	CountOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// Stats is one snapshot of task counts
type Stats struct {
	ByStatus map[string]int
	Overdue  int
	At       time.Time
}

// StatsWorker periodically publishes per-status and overdue task counts as gauges.
// It only reads.
type StatsWorker struct {
	tasks    TaskCounter
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu   sync.RWMutex
	last *Stats
}

// NewStatsWorker creates a new task statistics worker
func NewStatsWorker(tasks TaskCounter, logger *slog.Logger, interval time.Duration) *StatsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatsWorker{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs one collection immediately, then one per interval until ctx is done
func (w *StatsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("task stats worker started", slog.Duration("interval", w.interval))
	w.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("task stats worker stopped")
			return
		case <-ticker.C:
			w.collect(ctx)
		}
	}
}

func (w *StatsWorker) collect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	counts, err := w.tasks.CountByStatus(ctx)
	if err != nil {
		w.logger.Error("failed to count tasks by status", slog.String("error", err.Error()))
		return
	}
	now := w.now()
	overdue, err := w.tasks.CountOverdue(ctx, now)
	if err != nil {
		w.logger.Error("failed to count overdue tasks", slog.String("error", err.Error()))
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	metrics.SetTaskCounts(byStatus)
	metrics.SetOverdue(overdue)

	w.mu.Lock()
	w.last = &Stats{ByStatus: byStatus, Overdue: overdue, At: now}
	w.mu.Unlock()

	w.logger.Debug("task stats collected",
		slog.Int("pending", byStatus[string(domain.TaskPending)]),
		slog.Int("in_progress", byStatus[string(domain.TaskInProgress)]),
		slog.Int("completed", byStatus[string(domain.TaskCompleted)]),
		slog.Int("overdue", overdue),
	)
}

// Last returns the most recent snapshot, or nil before the first collection
func (w *StatsWorker) Last() *Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}
