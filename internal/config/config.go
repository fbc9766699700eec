// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge      int // エンドユーザーセッション有効期間（秒）
	AdminSessionMaxAge int // 管理者セッション有効期間（秒）

	// LLM
	LLMAPIKey   string
	LLMEndpoint string
	LLMModel    string

	// Blob
	BlobDir string

	// Image fetch（URL指定の画像取り込み）
	ImageFetchTimeout time.Duration
	ImageFetchMaxSize int64

	// Rate Limit
	RateLimitGeneral    int // API全般（req/min/project）
	RateLimitGeneration int // 生成エンドポイント（req/min/project）

	// Usage recorder
	UsageQueueSize int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがある場合は先に読み込む（ローカル開発用）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envは任意。存在しない場合のエラーは無視する。
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	if cfg.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)            // 7日
	cfg.AdminSessionMaxAge = getEnvInt("ADMIN_SESSION_MAX_AGE", 28800) // 8時間
	cfg.LLMEndpoint = getEnvString("LLM_ENDPOINT", "https://api.openai.com/v1/chat/completions")
	cfg.LLMModel = getEnvString("LLM_MODEL", "gpt-4o")
	cfg.BlobDir = getEnvString("BLOB_DIR", "data/blobs")
	cfg.ImageFetchTimeout = getEnvDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second)
	cfg.ImageFetchMaxSize = getEnvInt64("IMAGE_FETCH_MAX_SIZE", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGeneration = getEnvInt("RATE_LIMIT_GENERATION", 10)
	cfg.UsageQueueSize = getEnvInt("USAGE_QUEUE_SIZE", 256)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
