// Package auth はメールアドレスとパスワードによる認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
)

const (
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 8
	// maxPasswordBytes はbcryptが扱える最大バイト数。
	maxPasswordBytes = 72
	// MaxNameLength は表示名の最大文字数。
	MaxNameLength = 100
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginResult はログイン成功時に発行したセッションとトークン。
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	tokens      *TokenManager
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokens *TokenManager,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		config:      config,
	}
}

// Register はユーザーを作成し、そのままログイン状態にする。
// 登録済みのメールアドレスはEmailTakenエラーとなる。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.NewValidationError("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, model.NewValidationError(fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, model.NewValidationError("password is too long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered", slog.String("user_id", user.ID))
	return s.startSession(ctx, user)
}

// Login はメールアドレスとパスワードを検証してセッションを発行する。
// 不一致の場合はどちらが誤っているかを区別せずInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return s.startSession(ctx, user)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// Authenticate はトークンを検証し、有効なセッションを返す。
// トークン不正、セッション失効、ユーザー不一致はいずれもErrInvalidTokenとする。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	return session, nil
}

// GetCurrentUser は指定IDのユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// startSession はセッションを作成・永続化し、対応するトークンを発行する。
func (s *Service) startSession(ctx context.Context, user *model.User) (*LoginResult, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, session.ID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	return &LoginResult{User: user, Session: session, Token: token}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("a valid email is required")
	}
	return email, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
