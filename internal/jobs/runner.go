package jobs

import (
	"context"
	"log/slog"
	"time"
)

// RunnerStore is what the background worker reads and prunes.
type RunnerStore interface {
	RetentionStore
	LiveCounts(ctx context.Context) (map[string]int64, error)
}

// RunnerMetrics receives the worker's observations.
type RunnerMetrics interface {
	SetLiveTransactions(counts map[string]int64)
	RecordRetention(kind string, deleted int64)
}

// RunnerConfig controls the poll loop.
type RunnerConfig struct {
	PollInterval     time.Duration
	CleanupInterval  time.Duration
	RetentionEnabled bool
	Retention        RetentionPolicy
	Location         *time.Location
}

// Runner is the background worker. On each tick it refreshes the live
// transactions gauge and, every CleanupInterval, runs retention cleanup.
type Runner struct {
	cfg     RunnerConfig
	store   RunnerStore
	metrics RunnerMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner constructs a Runner. Zero intervals fall back to 10s polls
// and hourly cleanup.
func NewRunner(cfg RunnerConfig, st RunnerStore, m RunnerMetrics, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, store: st, metrics: m, logger: logger, now: time.Now}
}

// Start launches the worker loop in the current goroutine. Callers
// typically run this in its own goroutine; it returns when ctx is done.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	var lastCleanup time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		lastCleanup = r.tick(ctx, lastCleanup)
	}
}

// tick runs one iteration and returns the time of the last cleanup.
func (r *Runner) tick(ctx context.Context, lastCleanup time.Time) time.Time {
	counts, err := r.store.LiveCounts(ctx)
	if err != nil {
		r.logger.Warn("live transactions refresh failed", "error", err)
	} else {
		r.metrics.SetLiveTransactions(counts)
	}

	if !r.cfg.RetentionEnabled {
		return lastCleanup
	}
	now := r.now()
	if !lastCleanup.IsZero() && now.Sub(lastCleanup) < r.cfg.CleanupInterval {
		return lastCleanup
	}
	stats, err := CleanupExpiredData(ctx, r.cfg.Retention, r.store, now.In(r.cfg.Location))
	r.metrics.RecordRetention("audit_events", stats.AuditEventsDeleted)
	r.metrics.RecordRetention("transactions", stats.TransactionsDeleted)
	if err != nil {
		r.logger.Warn("retention cleanup failed", "error", err)
	} else if stats.AuditEventsDeleted > 0 || stats.TransactionsDeleted > 0 {
		r.logger.Info("retention cleanup",
			"audit_events_deleted", stats.AuditEventsDeleted,
			"transactions_deleted", stats.TransactionsDeleted,
		)
	}
	return now
}
