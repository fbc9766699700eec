package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/kotoba/internal/model"
)

// PostgresPromptRepo はPostgreSQLを使用したプロンプトテンプレートリポジトリ。
type PostgresPromptRepo struct {
	db *sql.DB
}

// NewPostgresPromptRepo はPostgresPromptRepoを生成する。
func NewPostgresPromptRepo(db *sql.DB) *PostgresPromptRepo {
	return &PostgresPromptRepo{db: db}
}

// FindByAiType は生成モードのカスタムテンプレートを取得する。
// 未登録の場合はnilを返す（呼び出し側が組み込みデフォルトにフォールバックする）。
func (r *PostgresPromptRepo) FindByAiType(ctx context.Context, aiType model.AiType) (*model.PromptTemplate, error) {
	template := &model.PromptTemplate{AiType: aiType}
	err := r.db.QueryRowContext(ctx,
		`SELECT system_prompt, user_prompt, updated_at
		 FROM prompts
		 WHERE ai_type = $1`,
		string(aiType),
	).Scan(&template.System, &template.User, &template.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find prompt template: %w", err)
	}

	return template, nil
}

// Upsert はテンプレートを冪等に登録・更新する。
func (r *PostgresPromptRepo) Upsert(ctx context.Context, template *model.PromptTemplate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO prompts (ai_type, system_prompt, user_prompt, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (ai_type)
		 DO UPDATE SET system_prompt = $2, user_prompt = $3, updated_at = now()`,
		string(template.AiType), template.System, template.User,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert prompt template: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PromptRepository = (*PostgresPromptRepo)(nil)
