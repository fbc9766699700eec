// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/session"
)

const (
	sessionCookieName      = "session_id"
	adminSessionCookieName = "admin_session_id"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに検証済みセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// adminSessionContextKey は検証済み管理者セッションを格納するためのキー。
var adminSessionContextKey = contextKey("admin_session")

// SessionValidator はセッションの検証に必要なインターフェース。
// session.Serviceの部分集合として定義する。
type SessionValidator interface {
	Validate(ctx context.Context, id string) (*model.Session, error)
	ValidateAdmin(ctx context.Context, id string) (*model.AdminSession, error)
}

// CookieConfig はセッションCookieの発行設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// NewProjectGuard はHTTP Only Cookieからセッションを読み取り検証するミドルウェアを返す。
// 検証はリフレッシュを伴うため、成功時は延長後の有効期限でCookieを再発行する。
// 検証済みセッションはリクエストコンテキストに注入される。
// 未認証リクエストには401とCookieの失効を返す。
func NewProjectGuard(validator SessionValidator, config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := cookieValue(r, sessionCookieName)

			sess, err := validator.Validate(r.Context(), sessionID)
			if err != nil {
				if errors.Is(err, session.ErrUnauthorized) {
					clearSessionCookie(w, sessionCookieName, config)
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				slog.Error("failed to validate session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			// リフレッシュ後の有効期限をクライアントに反映する
			setSessionCookie(w, sessionCookieName, sess.ID, sess.ExpiresAt, config)

			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminGuard は管理者セッションの検証ミドルウェアを返す。
// リフレッシュのアルゴリズムはNewProjectGuardと共通で、Cookie名だけが異なる。
func NewAdminGuard(validator SessionValidator, config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := cookieValue(r, adminSessionCookieName)

			sess, err := validator.ValidateAdmin(r.Context(), sessionID)
			if err != nil {
				if errors.Is(err, session.ErrUnauthorized) {
					clearSessionCookie(w, adminSessionCookieName, config)
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				slog.Error("failed to validate admin session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			setSessionCookie(w, adminSessionCookieName, sess.ID, sess.ExpiresAt, config)

			ctx := context.WithValue(r.Context(), adminSessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext はリクエストコンテキストから検証済みセッションを取得する。
// プロジェクトガードを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.Session, error) {
	sess, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return sess, nil
}

// ProjectIDFromContext はリクエストコンテキストからアクティブプロジェクトIDを取得する。
// プロジェクト未設定のセッションにはPROJECT_NOT_FOUNDエラーを返す。
func ProjectIDFromContext(ctx context.Context) (string, error) {
	sess, err := SessionFromContext(ctx)
	if err != nil {
		return "", err
	}
	if sess.ProjectID == nil || *sess.ProjectID == "" {
		return "", model.NewProjectNotFoundError()
	}
	return *sess.ProjectID, nil
}

// AdminSessionFromContext はリクエストコンテキストから検証済み管理者セッションを取得する。
func AdminSessionFromContext(ctx context.Context) (*model.AdminSession, error) {
	sess, ok := ctx.Value(adminSessionContextKey).(*model.AdminSession)
	if !ok || sess == nil {
		return nil, fmt.Errorf("admin session not found in context")
	}
	return sess, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// ContextWithAdminSession はコンテキストに管理者セッションを注入する。
func ContextWithAdminSession(ctx context.Context, sess *model.AdminSession) context.Context {
	return context.WithValue(ctx, adminSessionContextKey, sess)
}

// cookieValue はCookieの値を取得する。未設定の場合は空文字列。
func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSessionCookie はログイン成功時のセッションCookieを発行する。
func SetSessionCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time, config CookieConfig) {
	setSessionCookie(w, sessionCookieName, sessionID, expiresAt, config)
}

// SetAdminSessionCookie はログイン成功時の管理者セッションCookieを発行する。
func SetAdminSessionCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time, config CookieConfig) {
	setSessionCookie(w, adminSessionCookieName, sessionID, expiresAt, config)
}

// ClearSessionCookie はログアウト時にセッションCookieを失効させる。
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	clearSessionCookie(w, sessionCookieName, config)
}

// ClearAdminSessionCookie はログアウト時に管理者セッションCookieを失効させる。
func ClearAdminSessionCookie(w http.ResponseWriter, config CookieConfig) {
	clearSessionCookie(w, adminSessionCookieName, config)
}

func setSessionCookie(w http.ResponseWriter, name, value string, expiresAt time.Time, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, name string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
