package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/kotoba/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した生成履歴リポジトリ。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Create は生成履歴を作成する。
func (r *PostgresHistoryRepo) Create(ctx context.Context, history *model.AnalysisHistory) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analysis_histories
		   (id, project_id, ai_type, input, output, revision_parent_id, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		history.ID, history.ProjectID, string(history.AiType),
		[]byte(history.Input), []byte(history.Output),
		history.RevisionParentID, history.Version, history.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create analysis history: %w", err)
	}
	return nil
}

// FindByProjectAndID はプロジェクトスコープで履歴を取得する。
// 他プロジェクトの履歴は存在してもnilを返し、存在を秘匿する。
func (r *PostgresHistoryRepo) FindByProjectAndID(ctx context.Context, projectID, id string) (*model.AnalysisHistory, error) {
	history := &model.AnalysisHistory{}
	var aiType string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, ai_type, input, output, revision_parent_id, version, created_at
		 FROM analysis_histories
		 WHERE project_id = $1 AND id = $2`,
		projectID, id,
	).Scan(
		&history.ID, &history.ProjectID, &aiType,
		&history.Input, &history.Output,
		&history.RevisionParentID, &history.Version, &history.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find analysis history: %w", err)
	}

	history.AiType = model.AiType(aiType)
	return history, nil
}

// ListByProjectID はプロジェクトの履歴一覧を作成日時の降順で返す。
func (r *PostgresHistoryRepo) ListByProjectID(ctx context.Context, projectID string, limit int) ([]*model.AnalysisHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, ai_type, input, output, revision_parent_id, version, created_at
		 FROM analysis_histories
		 WHERE project_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis histories: %w", err)
	}
	defer rows.Close()

	return scanHistories(rows)
}

// ListLineage はrootIDをルートとするリネージ全体を返す。
// ルート自身（id = rootID）とその全リビジョン（revision_parent_id = rootID）が対象。
func (r *PostgresHistoryRepo) ListLineage(ctx context.Context, projectID, rootID string) ([]*model.AnalysisHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, ai_type, input, output, revision_parent_id, version, created_at
		 FROM analysis_histories
		 WHERE project_id = $1 AND (id = $2 OR revision_parent_id = $2)
		 ORDER BY version ASC`,
		projectID, rootID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage: %w", err)
	}
	defer rows.Close()

	return scanHistories(rows)
}

// scanHistories は結果セットをAnalysisHistoryのスライスに変換する。
func scanHistories(rows *sql.Rows) ([]*model.AnalysisHistory, error) {
	var histories []*model.AnalysisHistory
	for rows.Next() {
		history := &model.AnalysisHistory{}
		var aiType string
		if err := rows.Scan(
			&history.ID, &history.ProjectID, &aiType,
			&history.Input, &history.Output,
			&history.RevisionParentID, &history.Version, &history.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis history: %w", err)
		}
		history.AiType = model.AiType(aiType)
		histories = append(histories, history)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis histories: %w", err)
	}
	return histories, nil
}

// compile-time interface check
var _ AnalysisHistoryRepository = (*PostgresHistoryRepo)(nil)
