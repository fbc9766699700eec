package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/kotoba/internal/middleware"
	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/quota"
	"github.com/hitoshi/kotoba/internal/repository"
)

// AdminAuthServiceInterface は管理者ログインのインターフェース。
type AdminAuthServiceInterface interface {
	LoginAdmin(ctx context.Context, email, password string) (*model.AdminSession, error)
}

// AdminSessionServiceInterface は管理者セッション操作のインターフェース。
type AdminSessionServiceInterface interface {
	LogoutAdmin(ctx context.Context, sessionID string) error
}

// UsageSummarizerInterface はプロジェクトの当月利用状況照会のインターフェース。
type UsageSummarizerInterface interface {
	Summary(ctx context.Context, projectID string) (*quota.UsageSummary, error)
}

// AdminHandler は管理者向けAPIのHTTPハンドラー。
// プロジェクトの利用上限とプロンプトテンプレートを運用者が管理する。
type AdminHandler struct {
	auth     AdminAuthServiceInterface
	sessions AdminSessionServiceInterface
	projects repository.ProjectRepository
	prompts  repository.PromptRepository
	usage    UsageSummarizerInterface
	cookies  middleware.CookieConfig
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(
	auth AdminAuthServiceInterface,
	sessions AdminSessionServiceInterface,
	projects repository.ProjectRepository,
	prompts repository.PromptRepository,
	usage UsageSummarizerInterface,
	cookies middleware.CookieConfig,
) *AdminHandler {
	return &AdminHandler{
		auth:     auth,
		sessions: sessions,
		projects: projects,
		prompts:  prompts,
		usage:    usage,
		cookies:  cookies,
	}
}

// Login は管理者ログインを処理する。
// POST /admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("メールアドレスとパスワードは必須です"))
		return
	}

	sess, err := h.auth.LoginAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.SetAdminSessionCookie(w, sess.ID, sess.ExpiresAt, h.cookies)
	writeJSON(w, http.StatusOK, map[string]string{
		"expiresAt": sess.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout は管理者ログアウトを処理する。
// POST /admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("admin_session_id")
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.sessions.LogoutAdmin(r.Context(), cookie.Value); err != nil {
		middleware.ClearAdminSessionCookie(w, h.cookies)
		handleServiceError(w, err)
		return
	}

	middleware.ClearAdminSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// updateLimitRequest はプロジェクト上限更新リクエストのボディ。
type updateLimitRequest struct {
	APIUsageLimit   int  `json:"apiUsageLimit"`
	SeoAddonEnabled bool `json:"seoAddonEnabled"`
}

// UpdateProjectLimit はプロジェクトの月間利用上限とSEOアドオンフラグを更新する。
// PUT /admin/projects/{projectId}/limit
func (h *AdminHandler) UpdateProjectLimit(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	var req updateLimitRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.APIUsageLimit < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("apiUsageLimitは0以上を指定してください"))
		return
	}

	project, err := h.projects.FindByProjectID(r.Context(), projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if project == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError())
		return
	}

	if err := h.projects.UpdateLimit(r.Context(), projectID, req.APIUsageLimit, req.SeoAddonEnabled); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projectId":       projectID,
		"apiUsageLimit":   req.APIUsageLimit,
		"seoAddonEnabled": req.SeoAddonEnabled,
	})
}

// upsertPromptRequest はプロンプトテンプレート更新リクエストのボディ。
type upsertPromptRequest struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// UpsertPrompt は生成モードのプロンプトテンプレートを登録・更新する。
// PUT /admin/prompts/{aiType}
func (h *AdminHandler) UpsertPrompt(w http.ResponseWriter, r *http.Request) {
	aiType, ok := model.ParseAiType(chi.URLParam(r, "aiType"))
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("不明な生成モードです"))
		return
	}

	var req upsertPromptRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.User == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("userテンプレートは必須です"))
		return
	}

	if err := h.prompts.Upsert(r.Context(), &model.PromptTemplate{
		AiType: aiType,
		System: req.System,
		User:   req.User,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetProjectUsage はプロジェクトの当月利用状況を返す。
// GET /admin/projects/{projectId}/usage
func (h *AdminHandler) GetProjectUsage(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	summary, err := h.usage.Summary(r.Context(), projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
