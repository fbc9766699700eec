package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, quota, generation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeQuotaExceeded         = "QUOTA_EXCEEDED"
	ErrCodeAddonDisabled         = "ADDON_DISABLED"
	ErrCodeProjectNotFound       = "PROJECT_NOT_FOUND"
	ErrCodeHistoryNotFound       = "HISTORY_NOT_FOUND"
	ErrCodeUnparseableArticle    = "UNPARSEABLE_ARTICLE"
	ErrCodeNoTargetSection       = "NO_TARGET_SECTION"
	ErrCodeRegenerationFailed    = "REGENERATION_FAILED"
	ErrCodeSessionDeletionFailed = "SESSION_DELETION_FAILED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewValidationError はリクエスト形状の不備エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("リクエスト内容に不備があります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewQuotaExceededError は月間利用上限超過エラーを生成する。
func NewQuotaExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeQuotaExceeded,
		Message:  "今月のAI利用回数が上限に達しています。",
		Category: "quota",
		Action:   "翌月まで待つか、プランのアップグレードをご検討ください。",
	}
}

// NewAddonDisabledError はSEO記事アドオン未契約エラーを生成する。
func NewAddonDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeAddonDisabled,
		Message:  "SEO記事アドオンが有効になっていません。",
		Category: "quota",
		Action:   "SEO記事アドオンの契約状況をご確認ください。",
	}
}

// NewProjectNotFoundError はプロジェクト未検出エラーを生成する。
func NewProjectNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  "プロジェクトが見つかりません。",
		Category: "auth",
		Action:   "プロジェクトの選択状態を確認してください。",
	}
}

// NewHistoryNotFoundError は生成履歴未検出エラーを生成する。
// 他プロジェクトの履歴への越境アクセスも、存在を秘匿するため同じエラーとする。
func NewHistoryNotFoundError(historyID string) *APIError {
	return &APIError{
		Code:     ErrCodeHistoryNotFound,
		Message:  fmt.Sprintf("指定された生成履歴が見つかりません: %s", historyID),
		Category: "generation",
		Action:   "履歴IDを確認してください。",
	}
}

// NewUnparseableArticleError は記事の構造解析失敗エラーを生成する。
func NewUnparseableArticleError() *APIError {
	return &APIError{
		Code:     ErrCodeUnparseableArticle,
		Message:  "記事を見出し単位に分解できませんでした。",
		Category: "generation",
		Action:   "この記事は修正機能に対応していません。新しく生成し直してください。",
	}
}

// NewNoTargetSectionError は修正対象セクションを特定できなかったエラーを生成する。
func NewNoTargetSectionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoTargetSection,
		Message:  "修正指示からどのセクションを直すべきか特定できませんでした。",
		Category: "generation",
		Action:   "修正したいセクションの見出し名を指示に含めてください。",
	}
}

// NewRegenerationFailedError はセクション再生成失敗エラーを生成する。
func NewRegenerationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRegenerationFailed,
		Message:  "セクションの再生成に失敗しました。記事は変更されていません。",
		Category: "generation",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSessionDeletionFailedError はセッション削除失敗エラーを生成する。
func NewSessionDeletionFailedError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionDeletionFailed,
		Message:  fmt.Sprintf("セッションを削除できませんでした: %s", sessionID),
		Category: "auth",
		Action:   "すでにログアウト済みの可能性があります。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
