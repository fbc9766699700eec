// Package auth はメールアドレスとパスワードによるログイン処理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/repository"
	"github.com/hitoshi/kotoba/internal/session"
)

// Service はエンドユーザーと管理者の認証を担当する。
type Service struct {
	auths    repository.AuthRepository
	admins   repository.AdminRepository
	sessions *session.Service
}

// NewService はServiceを生成する。
func NewService(auths repository.AuthRepository, admins repository.AdminRepository, sessions *session.Service) *Service {
	return &Service{
		auths:    auths,
		admins:   admins,
		sessions: sessions,
	}
}

// Login は認証情報を検証し、新規セッションを発行する。
// メールアドレス未登録とパスワード不一致は区別せず同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	auth, hash, err := s.auths.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find auth: %w", err)
	}
	if auth == nil {
		return nil, session.ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, session.ErrUnauthorized
	}

	sess, err := s.sessions.CreateForAuth(ctx, auth.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", slog.String("auth_id", auth.ID))
	return sess, nil
}

// LoginAdmin は管理者の認証情報を検証し、新規管理者セッションを発行する。
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (*model.AdminSession, error) {
	adminID, hash, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if adminID == "" {
		return nil, session.ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, session.ErrUnauthorized
	}

	sess, err := s.sessions.CreateForAdmin(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("admin logged in", slog.String("admin_id", adminID))
	return sess, nil
}

// HashPassword はパスワードをbcryptでハッシュ化する。アカウント登録処理で使用する。
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}
