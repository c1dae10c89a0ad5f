// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 有効期限から保持期間（デフォルト7日）を過ぎたセッションを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/prmconsole/internal/metrics"
)

// DefaultInterval は定期実行の間隔。
const DefaultInterval = 24 * time.Hour

// SessionPurger は期限切れセッションの削除に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionPurger interface {
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。冪等に実行できる。
type CleanupJob struct {
	sessions      SessionPurger
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	now           func() time.Time
	RetentionDays int           // 期限切れ後に残しておく日数（デフォルト: 7）
	Interval      time.Duration // Start時の実行間隔（デフォルト: 24h）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionPurger, logger *slog.Logger, mc metrics.MetricsCollector) *CleanupJob {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &CleanupJob{
		sessions:      sessions,
		logger:        logger,
		metrics:       mc,
		now:           time.Now,
		RetentionDays: 7,
		Interval:      DefaultInterval,
	}
}

// Run はRetentionDays日より前に期限切れになったセッションを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.sessions.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.metrics.RecordSessionsPurged(int(deleted))
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、その後Interval間隔で実行する。ctxがキャンセルされるまでブロックする。
// 個々の実行の失敗はログに残して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
