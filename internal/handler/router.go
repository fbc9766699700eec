package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/kotoba/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionValidator  middleware.SessionValidator
	CookieConfig      middleware.CookieConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 可観測性
	MetricsHandler http.Handler

	// ハンドラー
	Auth       *AuthHandler
	Admin      *AdminHandler
	Generation *GenerationHandler
	History    *HistoryHandler
	Revision   *RevisionHandler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → CSRF → Logging → (Guard → RateLimit)
//
// ログイン・ログアウトとヘルスチェックはガードの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Post("/auth/login", deps.Auth.Login)
	r.Post("/auth/logout", deps.Auth.Logout)

	r.Post("/admin/login", deps.Admin.Login)
	r.Post("/admin/logout", deps.Admin.Logout)

	// --- プロジェクトセッションが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewProjectGuard(deps.SessionValidator, deps.CookieConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", deps.Auth.Me)
		r.Post("/api/projects/switch", deps.Auth.SwitchProject)

		// AI生成とSEO記事修正はLLM呼び出しを伴うため専用レート制限を重ねる
		r.With(deps.RateLimiter.GenerationMiddleware()).Post("/api/analysis", deps.Generation.Generate)
		r.With(deps.RateLimiter.GenerationMiddleware()).Post("/api/seo-article-revise", deps.Revision.Revise)

		// 生成履歴
		r.Route("/api/histories", func(r chi.Router) {
			r.Get("/", deps.History.ListHistories)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", deps.History.GetHistory)
				r.Get("/lineage", deps.History.GetLineage)
			})
		})
	})

	// --- 管理者セッションが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAdminGuard(deps.SessionValidator, deps.CookieConfig))

		r.Route("/admin/projects/{projectId}", func(r chi.Router) {
			r.Put("/limit", deps.Admin.UpdateProjectLimit)
			r.Get("/usage", deps.Admin.GetProjectUsage)
		})
		r.Put("/admin/prompts/{aiType}", deps.Admin.UpsertPrompt)
	})

	return r
}
