package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/kotoba/internal/model"
)

// PostgresAdminSessionRepo はPostgreSQLを使用した管理者セッションリポジトリ。
type PostgresAdminSessionRepo struct {
	db *sql.DB
}

// NewPostgresAdminSessionRepo はPostgresAdminSessionRepoを生成する。
func NewPostgresAdminSessionRepo(db *sql.DB) *PostgresAdminSessionRepo {
	return &PostgresAdminSessionRepo{db: db}
}

// Create は管理者セッションを作成する。
func (r *PostgresAdminSessionRepo) Create(ctx context.Context, session *model.AdminSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_sessions (id, expires_at, created_at)
		 VALUES ($1, $2, $3)`,
		session.ID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create admin session: %w", err)
	}
	return nil
}

// FindByID は指定IDの管理者セッションを取得する。見つからない場合はnilを返す。
func (r *PostgresAdminSessionRepo) FindByID(ctx context.Context, id string) (*model.AdminSession, error) {
	session := &model.AdminSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, expires_at, created_at
		 FROM admin_sessions
		 WHERE id = $1`,
		id,
	).Scan(&session.ID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin session: %w", err)
	}

	return session, nil
}

// UpdateExpiresAt は管理者セッションの有効期限を更新する。
func (r *PostgresAdminSessionRepo) UpdateExpiresAt(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE admin_sessions SET expires_at = $2 WHERE id = $1`,
		id, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update admin session expiry: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの管理者セッションを削除する。
// 対象が存在しない場合はSESSION_DELETION_FAILEDエラーを返す。
func (r *PostgresAdminSessionRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete admin session: %w", err)
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

// DeleteExpired は期限切れ管理者セッションを一括削除し、削除件数を返す。
func (r *PostgresAdminSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired admin sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected, nil
}

// compile-time interface check
var _ AdminSessionRepository = (*PostgresAdminSessionRepo)(nil)
