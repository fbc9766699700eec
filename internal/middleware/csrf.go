package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
)

// csrfCookieName のCookieはダブルサブミット方式で使うため、
// フロントエンドのJavaScriptから読めるようHttpOnlyにしない。
const (
	csrfCookieName  = "csrf_token"
	csrfHeaderName  = "X-CSRF-Token"
	csrfTokenMaxAge = 86400
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF対策ミドルウェアを返す。
// 読み取り専用メソッド（GET, HEAD, OPTIONS）は検証せず、未設定ならトークン
// Cookieを発行する。状態変更メソッドはCookieとX-CSRF-Tokenヘッダーの一致を
// 必須とする。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if _, err := r.Cookie(csrfCookieName); err != nil {
					issueCSRFCookie(w, config)
				}
				next.ServeHTTP(w, r)
				return
			}

			if reason := validateCSRFToken(r); reason != "" {
				slog.Warn("CSRF検証に失敗しました",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler はGET /api/csrf-token のハンドラーを返す。
// 既存のトークンCookieがあればその値を、なければ新規発行した値をJSONで返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
			token = cookie.Value
		} else {
			token = issueCSRFCookie(w, config)
			if token == "" {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

// validateCSRFToken はCookieとヘッダーのトークン一致を検証し、
// 失敗理由を返す。成功時は空文字を返す。
func validateCSRFToken(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "cookie_missing"
	}

	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "header_missing"
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token_mismatch"
	}

	return ""
}

// issueCSRFCookie は新規トークンを生成してCookieに設定し、トークンを返す。
// 生成に失敗した場合は空文字を返す。
func issueCSRFCookie(w http.ResponseWriter, config CSRFConfig) string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		slog.Error("CSRFトークンの生成に失敗しました", slog.String("error", err.Error()))
		return ""
	}
	token := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfTokenMaxAge,
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
