package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/kotoba/internal/middleware"
	"github.com/hitoshi/kotoba/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするログインサービス。
type AuthServiceInterface interface {
	// Login はメールアドレスとパスワードを検証しセッションを発行する。
	Login(ctx context.Context, email, password string) (*model.Session, error)
}

// SessionServiceInterface はセッション操作のインターフェース。
type SessionServiceInterface interface {
	// Logout はセッションを破棄する。
	Logout(ctx context.Context, sessionID string) error
	// SwitchProject はセッションのアクティブプロジェクトを切り替える。
	SwitchProject(ctx context.Context, session *model.Session, projectID string) error
}

// ProjectListerInterface はオーナーのプロジェクト一覧取得のインターフェース。
type ProjectListerInterface interface {
	ListByAuthID(ctx context.Context, authID string) ([]*model.Project, error)
}

// AuthHandler はログイン・ログアウト・セッション照会のHTTPハンドラー。
type AuthHandler struct {
	auth     AuthServiceInterface
	sessions SessionServiceInterface
	projects ProjectListerInterface
	cookies  middleware.CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(auth AuthServiceInterface, sessions SessionServiceInterface, projects ProjectListerInterface, cookies middleware.CookieConfig) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		projects: projects,
		cookies:  cookies,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse はセッション情報のAPIレスポンス。
type sessionResponse struct {
	AuthID    string  `json:"authId"`
	ProjectID *string `json:"projectId"`
	ExpiresAt string  `json:"expiresAt"`
}

// projectResponse はプロジェクト情報のAPIレスポンス。
type projectResponse struct {
	ProjectID       string `json:"projectId"`
	Name            string `json:"name"`
	APIUsageLimit   int    `json:"apiUsageLimit"`
	SeoAddonEnabled bool   `json:"seoAddonEnabled"`
}

// Login はログインを処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("メールアドレスとパスワードは必須です"))
		return
	}

	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.SetSessionCookie(w, sess.ID, sess.ExpiresAt, h.cookies)
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// Logout はログアウトを処理する。
// セッションガードの外に配置し、期限切れセッションでもCookieを破棄できるようにする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("session_id")
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.sessions.Logout(r.Context(), cookie.Value); err != nil {
		middleware.ClearSessionCookie(w, h.cookies)
		handleServiceError(w, err)
		return
	}

	middleware.ClearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション情報と所有プロジェクト一覧を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	projects, err := h.projects.ListByAuthID(r.Context(), sess.AuthID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	projectList := make([]projectResponse, len(projects))
	for i, p := range projects {
		projectList[i] = toProjectResponse(p)
	}

	writeJSON(w, http.StatusOK, struct {
		sessionResponse
		Projects []projectResponse `json:"projects"`
	}{
		sessionResponse: toSessionResponse(sess),
		Projects:        projectList,
	})
}

// switchProjectRequest はプロジェクト切り替えリクエストのボディ。
type switchProjectRequest struct {
	ProjectID string `json:"projectId"`
}

// SwitchProject はセッションのアクティブプロジェクトを切り替える。
// POST /api/projects/switch
func (h *AuthHandler) SwitchProject(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req switchProjectRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.ProjectID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("projectIdは必須です"))
		return
	}

	if err := h.sessions.SwitchProject(r.Context(), sess, req.ProjectID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"projectId": req.ProjectID})
}

// --- ヘルパー関数 ---

func toSessionResponse(sess *model.Session) sessionResponse {
	return sessionResponse{
		AuthID:    sess.AuthID,
		ProjectID: sess.ProjectID,
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	}
}

func toProjectResponse(p *model.Project) projectResponse {
	return projectResponse{
		ProjectID:       p.ProjectID,
		Name:            p.Name,
		APIUsageLimit:   p.APIUsageLimit,
		SeoAddonEnabled: p.SeoAddonEnabled,
	}
}
