package core

// scheduler.go prunes the outcome archive.
//
// The pruner deletes archived entries older than the retention window. It
// runs once on start, then every CheckInterval, until ctx ends. A failed
// prune is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// Default retention settings for RetentionConfig zero values.
const (
	DefaultArchiveRetention = 90 * 24 * time.Hour
	DefaultPruneInterval    = 24 * time.Hour
)

// ArchivePruner deletes archived entries logged before cutoff and reports
// how many went.
type ArchivePruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionConfig controls StartArchivePruner.
type RetentionConfig struct {
	Retention     time.Duration // Keep entries this long (default: 90 days)
	CheckInterval time.Duration // How often to prune (default: 24h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.Retention <= 0 {
		c.Retention = DefaultArchiveRetention
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultPruneInterval
	}
	return c
}

// StartArchivePruner blocks, pruning p every CheckInterval until ctx ends.
func StartArchivePruner(ctx context.Context, p ArchivePruner, cfg RetentionConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("archive pruner started",
		"retention_hours", int(cfg.Retention.Hours()),
		"interval", cfg.CheckInterval.String(),
	)

	runPrune(ctx, p, cfg, logger, time.Now)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("archive pruner stopped")
			return
		case <-ticker.C:
			runPrune(ctx, p, cfg, logger, time.Now)
		}
	}
}

// runPrune performs one prune cycle and returns the number of deleted rows.
func runPrune(ctx context.Context, p ArchivePruner, cfg RetentionConfig, logger *slog.Logger, now func() time.Time) int64 {
	start := time.Now()
	cutoff := now().Add(-cfg.Retention)

	deleted, err := p.PruneBefore(ctx, cutoff)
	if err != nil {
		logger.Error("archive prune failed", "cutoff", cutoff, "error", err)
		return 0
	}

	logger.Info("archive pruned",
		"entries_deleted", deleted,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return deleted
}
