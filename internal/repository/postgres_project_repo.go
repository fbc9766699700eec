package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/kotoba/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

// FindByProjectID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByProjectID(ctx context.Context, projectID string) (*model.Project, error) {
	project := &model.Project{}
	err := r.db.QueryRowContext(ctx,
		`SELECT project_id, name, auth_id, api_usage_limit, seo_addon_enabled, created_at, updated_at
		 FROM projects
		 WHERE project_id = $1`,
		projectID,
	).Scan(
		&project.ProjectID, &project.Name, &project.AuthID,
		&project.APIUsageLimit, &project.SeoAddonEnabled,
		&project.CreatedAt, &project.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}

	return project, nil
}

// ListByAuthID はオーナーのプロジェクト一覧を作成日時の昇順で返す。
// セッションの遅延プロジェクト解決では先頭の1件が採用される。
func (r *PostgresProjectRepo) ListByAuthID(ctx context.Context, authID string) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT project_id, name, auth_id, api_usage_limit, seo_addon_enabled, created_at, updated_at
		 FROM projects
		 WHERE auth_id = $1
		 ORDER BY created_at ASC`,
		authID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		project := &model.Project{}
		if err := rows.Scan(
			&project.ProjectID, &project.Name, &project.AuthID,
			&project.APIUsageLimit, &project.SeoAddonEnabled,
			&project.CreatedAt, &project.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return projects, nil
}

// UpdateLimit は月間利用上限とSEOアドオンフラグを更新する。
func (r *PostgresProjectRepo) UpdateLimit(ctx context.Context, projectID string, apiUsageLimit int, seoAddonEnabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects
		 SET api_usage_limit = $2, seo_addon_enabled = $3, updated_at = now()
		 WHERE project_id = $1`,
		projectID, apiUsageLimit, seoAddonEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to update project limit: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return model.NewProjectNotFoundError()
	}
	return nil
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)

// PostgresProjectProfileRepo はPostgreSQLを使用した事業プロフィールリポジトリ。
// プロフィールはjsonbのフラットなフィールド集合として保存する。
type PostgresProjectProfileRepo struct {
	db *sql.DB
}

// NewPostgresProjectProfileRepo はPostgresProjectProfileRepoを生成する。
func NewPostgresProjectProfileRepo(db *sql.DB) *PostgresProjectProfileRepo {
	return &PostgresProjectProfileRepo{db: db}
}

// FindByProjectID はプロフィールのフィールドマップを取得する。
// プロフィール未登録の場合は空マップを返す。
func (r *PostgresProjectProfileRepo) FindByProjectID(ctx context.Context, projectID string) (map[string]any, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT fields FROM project_profiles WHERE project_id = $1`,
		projectID,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project profile: %w", err)
	}

	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode project profile: %w", err)
	}

	return fields, nil
}

// compile-time interface check
var _ ProjectProfileRepository = (*PostgresProjectProfileRepo)(nil)
