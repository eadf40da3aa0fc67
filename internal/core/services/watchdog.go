package services

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

const (
	watchdogInterval   = 10 * time.Minute
	diskPurgeThreshold = 70.0 // percent
	auditRetention     = 7 * 24 * time.Hour
	purgeBatchSize     = 1000
)

// RunWatchdog starts the background auto-purge loop. When disk usage crosses
// the threshold, processed webhook audit rows older than the retention
// window are deleted in batches. Messages and conversion events are
// append-only and never purged.
func RunWatchdog(db *sql.DB) {
	ticker := time.NewTicker(watchdogInterval)

	go func() {
		for range ticker.C {
			checkAndPurge(db)
		}
	}()

	slog.Info("watchdog started", "interval", watchdogInterval, "threshold_pct", diskPurgeThreshold)
}

func checkAndPurge(db *sql.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	usage, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		slog.Warn("watchdog disk check failed", "error", err)
		return
	}
	if usage.UsedPercent < diskPurgeThreshold {
		slog.Debug("watchdog disk usage ok", "used_pct", usage.UsedPercent)
		return
	}

	slog.Warn("watchdog purging old webhook audit logs", "used_pct", usage.UsedPercent)

	cutoff := time.Now().Add(-auditRetention)
	result, err := db.ExecContext(ctx, `
		DELETE FROM webhook_logs
		WHERE status = ?
		AND created_at < ?
		LIMIT ?
	`, "processed", cutoff, purgeBatchSize)
	if err != nil {
		slog.Error("watchdog purge failed", "error", err)
		return
	}

	rows, _ := result.RowsAffected()
	slog.Info("watchdog purge complete", "purged", rows)
}
