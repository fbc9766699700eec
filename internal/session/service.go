// Package session はセッションの発行・検証・失効を提供する。
// エンドユーザーと管理者の2種類のセッションが同じ半減期リフレッシュの
// アルゴリズムを共有する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/repository"
)

// ErrUnauthorized はセッションが無効（未提示・未検出・期限切れ）であることを表す。
// ストア障害などの内部エラーとは区別され、ミドルウェアで401に変換される。
var ErrUnauthorized = model.NewUnauthorizedError()

// Config はセッションサービスの設定。
type Config struct {
	MaxAge      time.Duration // エンドユーザーセッションの有効期間
	AdminMaxAge time.Duration // 管理者セッションの有効期間
}

// Service はセッションのライフサイクルを管理する。
type Service struct {
	sessions      repository.SessionRepository
	adminSessions repository.AdminSessionRepository
	projects      repository.ProjectRepository
	config        Config

	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	sessions repository.SessionRepository,
	adminSessions repository.AdminSessionRepository,
	projects repository.ProjectRepository,
	config Config,
) *Service {
	return &Service{
		sessions:      sessions,
		adminSessions: adminSessions,
		projects:      projects,
		config:        config,
		now:           time.Now,
	}
}

// CreateForAuth はAuthに対する新規セッションを発行する。
// アクティブプロジェクトはこの時点では未設定で、検証時に遅延解決される。
func (s *Service) CreateForAuth(ctx context.Context, authID string) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        id,
		AuthID:    authID,
		ExpiresAt: now.Add(s.config.MaxAge),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// CreateForAdmin は管理者の新規セッションを発行する。
func (s *Service) CreateForAdmin(ctx context.Context) (*model.AdminSession, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.AdminSession{
		ID:        id,
		ExpiresAt: now.Add(s.config.AdminMaxAge),
		CreatedAt: now,
	}

	if err := s.adminSessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save admin session: %w", err)
	}

	return session, nil
}

// Validate はエンドユーザーセッションを検証し、必要に応じてリフレッシュする。
//
//  1. IDが空の場合はDBを参照せずErrUnauthorizedを返す。
//  2. 未検出または期限切れの場合は（あれば）削除してErrUnauthorizedを返す。
//  3. 残り有効期間が設定値の半分を下回っていれば有効期限を延長して永続化する。
//  4. アクティブプロジェクトが未設定なら、オーナーの最初のプロジェクトを設定する。
//     プロジェクトを1つも所有していない場合は未設定のまま返す。
//
// 返り値のセッションはリフレッシュ後の状態で、Cookieの再発行に使用する。
func (s *Service) Validate(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrUnauthorized
	}

	now := s.now()
	if !session.ExpiresAt.After(now) {
		// 期限切れレコードは掃除してから未認証として扱う
		if err := s.sessions.DeleteByID(ctx, id); err != nil {
			slog.Warn("failed to delete expired session",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrUnauthorized
	}

	// 半減期を過ぎている場合のみ延長する（リクエストごとの書き込みを避ける）
	if session.ExpiresAt.Sub(now) < s.config.MaxAge/2 {
		newExpiry := now.Add(s.config.MaxAge)
		if err := s.sessions.UpdateExpiresAt(ctx, id, newExpiry); err != nil {
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}
		session.ExpiresAt = newExpiry
	}

	// アクティブプロジェクトの遅延解決
	if session.ProjectID == nil {
		projects, err := s.projects.ListByAuthID(ctx, session.AuthID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default project: %w", err)
		}
		if len(projects) > 0 {
			projectID := projects[0].ProjectID
			if err := s.sessions.UpdateProjectID(ctx, id, projectID); err != nil {
				return nil, fmt.Errorf("failed to set session project: %w", err)
			}
			session.ProjectID = &projectID
		}
	}

	return session, nil
}

// ValidateAdmin は管理者セッションを検証し、必要に応じてリフレッシュする。
// 半減期リフレッシュのアルゴリズムはValidateと同一で、
// プロジェクト解決だけが存在しない。
func (s *Service) ValidateAdmin(ctx context.Context, id string) (*model.AdminSession, error) {
	if id == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.adminSessions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin session: %w", err)
	}
	if session == nil {
		return nil, ErrUnauthorized
	}

	now := s.now()
	if !session.ExpiresAt.After(now) {
		if err := s.adminSessions.DeleteByID(ctx, id); err != nil {
			slog.Warn("failed to delete expired admin session",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrUnauthorized
	}

	if session.ExpiresAt.Sub(now) < s.config.AdminMaxAge/2 {
		newExpiry := now.Add(s.config.AdminMaxAge)
		if err := s.adminSessions.UpdateExpiresAt(ctx, id, newExpiry); err != nil {
			return nil, fmt.Errorf("failed to refresh admin session: %w", err)
		}
		session.ExpiresAt = newExpiry
	}

	return session, nil
}

// SwitchProject はセッションのアクティブプロジェクトを切り替える。
// 切替先はセッションのオーナーが所有するプロジェクトでなければならない。
func (s *Service) SwitchProject(ctx context.Context, session *model.Session, projectID string) error {
	project, err := s.projects.FindByProjectID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil || project.AuthID != session.AuthID {
		// 他人のプロジェクトは存在を秘匿する
		return model.NewProjectNotFoundError()
	}

	if err := s.sessions.UpdateProjectID(ctx, session.ID, projectID); err != nil {
		return fmt.Errorf("failed to switch project: %w", err)
	}
	session.ProjectID = &projectID
	return nil
}

// Logout はエンドユーザーセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// LogoutAdmin は管理者セッションを破棄する。
func (s *Service) LogoutAdmin(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.adminSessions.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("admin logged out", slog.String("session_id", sessionID))
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
