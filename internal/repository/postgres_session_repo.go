package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/kotoba/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したエンドユーザーセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, auth_id, project_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.AuthID, session.ProjectID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
// 期限切れのレコードもそのまま返し、判定はセッションサービスに委ねる。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, auth_id, project_id, expires_at, created_at
		 FROM sessions
		 WHERE id = $1`,
		id,
	).Scan(&session.ID, &session.AuthID, &session.ProjectID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// UpdateExpiresAt はセッションの有効期限を更新する。
func (r *PostgresSessionRepo) UpdateExpiresAt(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = $2 WHERE id = $1`,
		id, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session expiry: %w", err)
	}
	return nil
}

// UpdateProjectID はセッションのアクティブプロジェクトを更新する。
func (r *PostgresSessionRepo) UpdateProjectID(ctx context.Context, id, projectID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET project_id = $2 WHERE id = $1`,
		id, projectID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session project: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
// 対象が存在しない（すでに期限切れ削除済み等）場合はSESSION_DELETION_FAILEDエラーを返す。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return model.NewSessionDeletionFailedError(id)
	}
	return nil
}

// DeleteByAuthID は指定Authの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByAuthID(ctx context.Context, authID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE auth_id = $1`,
		authID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete auth sessions: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
