// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// expires_atを過ぎたセッション行を日次バッチで削除する。
// セッションの読み取りは期限切れ行を常に除外するため、
// このジョブは容量回収のみを目的とし、削除の遅延は認可判定に影響しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
)

// SessionSweeper は期限切れセッション削除に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupMetrics は削除件数のメトリクス記録インターフェース。
type CleanupMetrics interface {
	RecordSessionsCleaned(count int64)
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions SessionSweeper
	metrics  CleanupMetrics
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
// metricsはnilでもよい（記録をスキップする）。
func NewCleanupJob(sessions SessionSweeper, metrics CleanupMetrics, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run は期限切れセッションを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("session cleanup failed: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsCleaned(deleted)
	}

	j.logger.Info("expired sessions cleaned up",
		slog.Int64("deleted", deleted),
	)

	return nil
}
