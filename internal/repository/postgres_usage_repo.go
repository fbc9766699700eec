package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/kotoba/internal/model"
)

// PostgresUsageEventRepo はPostgreSQLを使用した利用イベントリポジトリ。
// usage_eventsテーブルは追記専用で、UPDATE/DELETEは発行しない。
type PostgresUsageEventRepo struct {
	db *sql.DB
}

// NewPostgresUsageEventRepo はPostgresUsageEventRepoを生成する。
func NewPostgresUsageEventRepo(db *sql.DB) *PostgresUsageEventRepo {
	return &PostgresUsageEventRepo{db: db}
}

// Create は利用イベントを追記する。
func (r *PostgresUsageEventRepo) Create(ctx context.Context, projectID string, usedAt time.Time) (*model.UsageEvent, error) {
	event := &model.UsageEvent{
		ProjectID: projectID,
		UsedAt:    usedAt,
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO usage_events (project_id, used_at)
		 VALUES ($1, $2)
		 RETURNING id`,
		projectID, usedAt,
	).Scan(&event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage event: %w", err)
	}
	return event, nil
}

// CountByProjectWithin は[from, to]の範囲（両端を含む）にある
// プロジェクトの利用イベント数を返す。
// 存在しないプロジェクトを指定してもエラーにはならず0を返す。
func (r *PostgresUsageEventRepo) CountByProjectWithin(ctx context.Context, projectID string, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM usage_events
		 WHERE project_id = $1 AND used_at >= $2 AND used_at <= $3`,
		projectID, from, to,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage events: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ UsageEventRepository = (*PostgresUsageEventRepo)(nil)
