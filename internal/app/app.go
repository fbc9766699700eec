package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/kotoba/internal/auth"
	"github.com/hitoshi/kotoba/internal/blob"
	"github.com/hitoshi/kotoba/internal/config"
	"github.com/hitoshi/kotoba/internal/database"
	"github.com/hitoshi/kotoba/internal/generation"
	"github.com/hitoshi/kotoba/internal/handler"
	"github.com/hitoshi/kotoba/internal/llm"
	"github.com/hitoshi/kotoba/internal/logger"
	"github.com/hitoshi/kotoba/internal/metrics"
	"github.com/hitoshi/kotoba/internal/middleware"
	"github.com/hitoshi/kotoba/internal/prompt"
	"github.com/hitoshi/kotoba/internal/quota"
	"github.com/hitoshi/kotoba/internal/repository"
	"github.com/hitoshi/kotoba/internal/security"
	"github.com/hitoshi/kotoba/internal/seoarticle"
	"github.com/hitoshi/kotoba/internal/session"
	"github.com/hitoshi/kotoba/internal/worker/cleanup"
	"github.com/hitoshi/kotoba/internal/worker/usage"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 利用イベント記録ワーカーは同一プロセス内のインメモリキューのため、
// サーバーと同時に起動し、シャットダウン時にキューを書き切ってから終了する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	authRepo := repository.NewPostgresAuthRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	adminSessionRepo := repository.NewPostgresAdminSessionRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	profileRepo := repository.NewPostgresProjectProfileRepo(db)
	historyRepo := repository.NewPostgresHistoryRepo(db)
	promptRepo := repository.NewPostgresPromptRepo(db)
	usageRepo := repository.NewPostgresUsageEventRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	sessionService := session.NewService(sessionRepo, adminSessionRepo, projectRepo, session.Config{
		MaxAge:      time.Duration(cfg.SessionMaxAge) * time.Second,
		AdminMaxAge: time.Duration(cfg.AdminSessionMaxAge) * time.Second,
	})
	authService := auth.NewService(authRepo, adminRepo, sessionService)
	quotaService := quota.NewService(usageRepo, projectRepo)
	resolver := prompt.NewResolver(promptRepo, profileRepo)

	llmClient := llm.NewOpenAIClient(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMModel)

	blobStore, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		return fmt.Errorf("failed to init blob store: %w", err)
	}

	imageFetcher := security.NewImageFetcher(cfg.ImageFetchTimeout, cfg.ImageFetchMaxSize)
	sanitizer := security.NewInstructionSanitizer()

	// 5. 利用イベント記録ワーカーの初期化
	recorder := usage.NewRecorder(quotaService, slog.Default(), collector, cfg.UsageQueueSize)

	// 6. 生成オーケストレーターとSEO記事修正エンジンの初期化
	orchestrator := generation.NewOrchestrator(
		projectRepo, historyRepo, quotaService, resolver,
		llmClient, blobStore, imageFetcher, sanitizer,
		recorder, collector,
	)
	revisionService := seoarticle.NewRevisionService(
		historyRepo, resolver, llmClient, sanitizer, collector,
	)

	// 7. ルーターの構築
	cookieConfig := middleware.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	}

	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート設定はreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.GenerationRate = rate.Limit(float64(cfg.RateLimitGeneration) / 60.0)
	rateLimiterCfg.GenerationBurst = cfg.RateLimitGeneration
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionValidator:  sessionService,
		CookieConfig:      cookieConfig,
		CSRFConfig:        middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		MetricsHandler:    metrics.SetupMetricsRoute(registry),

		Auth:       handler.NewAuthHandler(authService, sessionService, projectRepo, cookieConfig),
		Admin:      handler.NewAdminHandler(authService, sessionService, projectRepo, promptRepo, quotaService, cookieConfig),
		Generation: handler.NewGenerationHandler(orchestrator),
		History:    handler.NewHistoryHandler(historyRepo),
		Revision:   handler.NewRevisionHandler(revisionService, projectRepo, quotaService, recorder),
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// 生成ストリーミングはLLM応答の完了まで書き込みが続くため、
		// WriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	// 利用イベント記録ワーカーの起動
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	recorder.Start(recorderCtx)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		stopRecorder()
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 記録ワーカーを停止し、キューに残った課金イベントを書き切る
	stopRecorder()
	recorder.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの日次クリーンアップジョブを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	adminSessionRepo := repository.NewPostgresAdminSessionRepo(db)

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, adminSessionRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting")

	// 起動直後に1回実行し、以後は日次で実行する
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
