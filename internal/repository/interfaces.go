// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/kotoba/internal/model"
)

// AuthRepository はログイン認証情報の永続化インターフェース。
type AuthRepository interface {
	// FindByEmail はメールアドレスでAuthとパスワードハッシュを検索する。
	// 見つからない場合は(nil, "", nil)を返す。
	FindByEmail(ctx context.Context, email string) (*model.Auth, string, error)

	// FindByID は指定IDのAuthを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Auth, error)
}

// AdminRepository は管理者アカウントの永続化インターフェース。
type AdminRepository interface {
	// FindByEmail はメールアドレスで管理者IDとパスワードハッシュを検索する。
	// 見つからない場合は("", "", nil)を返す。
	FindByEmail(ctx context.Context, email string) (string, string, error)
}

// SessionRepository はエンドユーザーセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 期限切れ判定は呼び出し側（セッションサービス）が行う。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// UpdateExpiresAt はセッションの有効期限を更新する。
	UpdateExpiresAt(ctx context.Context, id string, expiresAt time.Time) error

	// UpdateProjectID はセッションのアクティブプロジェクトを更新する。
	UpdateProjectID(ctx context.Context, id, projectID string) error

	// DeleteByID は指定IDのセッションを削除する。
	// 対象が存在しない場合はSESSION_DELETION_FAILEDエラーを返す。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByAuthID は指定Authの全セッションを削除する。
	DeleteByAuthID(ctx context.Context, authID string) error

	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// AdminSessionRepository は管理者セッションの永続化インターフェース。
type AdminSessionRepository interface {
	// Create は管理者セッションを作成する。
	Create(ctx context.Context, session *model.AdminSession) error

	// FindByID は指定IDの管理者セッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AdminSession, error)

	// UpdateExpiresAt は管理者セッションの有効期限を更新する。
	UpdateExpiresAt(ctx context.Context, id string, expiresAt time.Time) error

	// DeleteByID は指定IDの管理者セッションを削除する。
	// 対象が存在しない場合はSESSION_DELETION_FAILEDエラーを返す。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れ管理者セッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProjectRepository はプロジェクトデータの永続化インターフェース。
type ProjectRepository interface {
	// FindByProjectID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
	FindByProjectID(ctx context.Context, projectID string) (*model.Project, error)

	// ListByAuthID はオーナーのプロジェクト一覧を作成日時の昇順で返す。
	ListByAuthID(ctx context.Context, authID string) ([]*model.Project, error)

	// UpdateLimit は月間利用上限とSEOアドオンフラグを更新する。
	UpdateLimit(ctx context.Context, projectID string, apiUsageLimit int, seoAddonEnabled bool) error
}

// ProjectProfileRepository は事業プロフィールの永続化インターフェース。
// プロフィールはプロンプトのプレースホルダ置換に使うフラットなフィールド集合。
type ProjectProfileRepository interface {
	// FindByProjectID はプロフィールのフィールドマップを取得する。
	// プロフィール未登録の場合は空マップを返す。
	FindByProjectID(ctx context.Context, projectID string) (map[string]any, error)
}

// UsageEventRepository は利用イベントの永続化インターフェース。追記専用。
type UsageEventRepository interface {
	// Create は利用イベントを追記する。
	Create(ctx context.Context, projectID string, usedAt time.Time) (*model.UsageEvent, error)

	// CountByProjectWithin は[from, to]の範囲（両端を含む）にある
	// プロジェクトの利用イベント数を返す。未知のプロジェクトは0を返す。
	CountByProjectWithin(ctx context.Context, projectID string, from, to time.Time) (int, error)
}

// AnalysisHistoryRepository は生成履歴の永続化インターフェース。
type AnalysisHistoryRepository interface {
	// Create は生成履歴を作成する。
	Create(ctx context.Context, history *model.AnalysisHistory) error

	// FindByProjectAndID はプロジェクトスコープで履歴を取得する。
	// 他プロジェクトの履歴は存在してもnilを返す。
	FindByProjectAndID(ctx context.Context, projectID, id string) (*model.AnalysisHistory, error)

	// ListByProjectID はプロジェクトの履歴一覧を作成日時の降順で返す。
	ListByProjectID(ctx context.Context, projectID string, limit int) ([]*model.AnalysisHistory, error)

	// ListLineage はrootIDをルートとするリネージ全体を返す。
	// id = rootID または revision_parent_id = rootID のレコードが対象。
	ListLineage(ctx context.Context, projectID, rootID string) ([]*model.AnalysisHistory, error)
}

// PromptRepository はカスタムプロンプトテンプレートの永続化インターフェース。
type PromptRepository interface {
	// FindByAiType は生成モードのテンプレートを取得する。未登録の場合はnilを返す。
	FindByAiType(ctx context.Context, aiType model.AiType) (*model.PromptTemplate, error)

	// Upsert はテンプレートを冪等に登録・更新する。
	Upsert(ctx context.Context, template *model.PromptTemplate) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
