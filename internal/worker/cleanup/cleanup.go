// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 有効期限を過ぎたセッションと管理者セッションを日次バッチで削除する。
// 期限切れレコードは検証時にも個別削除されるが、再訪のないユーザーの
// レコードはこのジョブでしか回収されない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/kotoba/internal/repository"
)

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions      repository.SessionRepository
	adminSessions repository.AdminSessionRepository
	logger        *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions repository.SessionRepository, adminSessions repository.AdminSessionRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:      sessions,
		adminSessions: adminSessions,
		logger:        logger,
	}
}

// Run は期限切れのセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	adminDeleted, err := j.adminSessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("管理者セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("管理者セッションクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int64("admin_deleted_count", adminDeleted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
