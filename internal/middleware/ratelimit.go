package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	GenerationRate  rate.Limit    // AI生成のレート（req/sec）
	GenerationBurst int           // AI生成のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/project、AI生成 10 req/min/project。
// 生成はLLM呼び出しを伴うため一般APIより大幅に絞る。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		GenerationRate:  rate.Limit(10.0 / 60.0),
		GenerationBurst: 10,
		CleanupInterval: 5 * time.Minute,
	}
}

// projectLimiter はプロジェクトごとのレートリミッターとアクセス時刻を保持する。
type projectLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はプロジェクトごとのレート制限を管理する。
// API全般のレート制限とAI生成のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*projectLimiter

	generationMu       sync.RWMutex
	generationLimiters map[string]*projectLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:             config,
		generalLimiters:    make(map[string]*projectLimiter),
		generationLimiters: make(map[string]*projectLimiter),
		stopCh:             make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// プロジェクトガードの後段に配置し、コンテキスト中のセッションからプロジェクトIDを得る。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			projectID, err := ProjectIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreate(&rl.generalMu, rl.generalLimiters, projectID, rl.config.GeneralRate, rl.config.GeneralBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("レート制限超過",
					slog.String("project_id", projectID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GenerationMiddleware はAI生成専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) GenerationMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			projectID, err := ProjectIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreate(&rl.generationMu, rl.generationLimiters, projectID, rl.config.GenerationRate, rl.config.GenerationBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GenerationRate)
				slog.Warn("レート制限超過",
					slog.String("project_id", projectID),
					slog.String("limit_type", "generation"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// GenerationLimiterCount は現在管理されているAI生成リミッターのエントリ数を返す。
func (rl *RateLimiter) GenerationLimiterCount() int {
	rl.generationMu.RLock()
	defer rl.generationMu.RUnlock()
	return len(rl.generationLimiters)
}

// getOrCreate はプロジェクトのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreate(mu *sync.RWMutex, limiters map[string]*projectLimiter, projectID string, r rate.Limit, burst int) *rate.Limiter {
	mu.RLock()
	pl, exists := limiters[projectID]
	mu.RUnlock()

	if exists {
		mu.Lock()
		pl.lastAccess = time.Now()
		mu.Unlock()
		return pl.limiter
	}

	mu.Lock()
	defer mu.Unlock()

	// ダブルチェック
	if pl, exists := limiters[projectID]; exists {
		pl.lastAccess = time.Now()
		return pl.limiter
	}

	limiter := rate.NewLimiter(r, burst)
	limiters[projectID] = &projectLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.generalMu.Lock()
	for projectID, pl := range rl.generalLimiters {
		if now.Sub(pl.lastAccess) > ttl {
			delete(rl.generalLimiters, projectID)
		}
	}
	rl.generalMu.Unlock()

	rl.generationMu.Lock()
	for projectID, pl := range rl.generationLimiters {
		if now.Sub(pl.lastAccess) > ttl {
			delete(rl.generationLimiters, projectID)
		}
	}
	rl.generationMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "RATE_LIMIT_EXCEEDED",
		"message":  "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		"category": "system",
		"action":   "時間をおいて再度お試しください。",
	})
}
