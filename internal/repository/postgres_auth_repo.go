package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/kotoba/internal/model"
)

// PostgresAuthRepo はPostgreSQLを使用した認証情報リポジトリ。
type PostgresAuthRepo struct {
	db *sql.DB
}

// NewPostgresAuthRepo はPostgresAuthRepoを生成する。
func NewPostgresAuthRepo(db *sql.DB) *PostgresAuthRepo {
	return &PostgresAuthRepo{db: db}
}

// FindByEmail はメールアドレスでAuthとパスワードハッシュを検索する。
// 見つからない場合は(nil, "", nil)を返す。
func (r *PostgresAuthRepo) FindByEmail(ctx context.Context, email string) (*model.Auth, string, error) {
	auth := &model.Auth{}
	var passwordHash string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at
		 FROM auths
		 WHERE email = $1`,
		email,
	).Scan(&auth.ID, &auth.Email, &passwordHash, &auth.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to find auth by email: %w", err)
	}

	return auth, passwordHash, nil
}

// FindByID は指定IDのAuthを取得する。見つからない場合はnilを返す。
func (r *PostgresAuthRepo) FindByID(ctx context.Context, id string) (*model.Auth, error) {
	auth := &model.Auth{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, created_at
		 FROM auths
		 WHERE id = $1`,
		id,
	).Scan(&auth.ID, &auth.Email, &auth.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find auth: %w", err)
	}

	return auth, nil
}

// compile-time interface check
var _ AuthRepository = (*PostgresAuthRepo)(nil)

// PostgresAdminRepo はPostgreSQLを使用した管理者アカウントリポジトリ。
type PostgresAdminRepo struct {
	db *sql.DB
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

// FindByEmail はメールアドレスで管理者IDとパスワードハッシュを検索する。
// 見つからない場合は("", "", nil)を返す。
func (r *PostgresAdminRepo) FindByEmail(ctx context.Context, email string) (string, string, error) {
	var id, passwordHash string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM admins WHERE email = $1`,
		email,
	).Scan(&id, &passwordHash)

	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to find admin by email: %w", err)
	}

	return id, passwordHash, nil
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
