// Package auth はパスワード認証・Google OAuth・セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/prmconsole/internal/metrics"
	"github.com/hitoshi/prmconsole/internal/model"
	"github.com/hitoshi/prmconsole/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// ProfileStore はサインアップ直後のプロフィール作成と、無効化されたアカウントの確認を行う。
type ProfileStore interface {
	Create(ctx context.Context, identity *model.Identity, name string, role model.Role) (*model.Profile, error)
	IsActive(ctx context.Context, id string) (bool, error)
}

// AuthResult はサインイン・サインアップ・リフレッシュの結果。
// Session.IDはリフレッシュトークンとしてクライアントに渡す。
type AuthResult struct {
	Session              *model.Session
	Identity             *model.Identity
	AccessToken          string
	AccessTokenExpiresAt time.Time
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge time.Duration
	AdminEmails   []string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider // nilの場合はGoogleログイン無効
	users    repository.UserRepository
	accounts repository.ExternalAccountRepository
	sessions repository.SessionRepository
	profiles ProfileStore
	hasher   PasswordHasher
	tokens   *TokenIssuer
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	users repository.UserRepository,
	accounts repository.ExternalAccountRepository,
	sessions repository.SessionRepository,
	profiles ProfileStore,
	hasher PasswordHasher,
	tokens *TokenIssuer,
	mc metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		oauth:    oauth,
		users:    users,
		accounts: accounts,
		sessions: sessions,
		profiles: profiles,
		hasher:   hasher,
		tokens:   tokens,
		metrics:  mc,
		config:   config,
		now:      time.Now,
	}
}

// SignUp はメールアドレスとパスワードでアカウントを作成し、セッションを発行する。
// プロフィール作成はベストエフォートで、失敗してもアカウントは残す。
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		s.metrics.RecordSignUp(metrics.ResultFailure)
		return nil, model.NewInvalidEmailError(email)
	}
	if len(password) < MinPasswordLength {
		s.metrics.RecordSignUp(metrics.ResultFailure)
		return nil, model.NewWeakPasswordError(MinPasswordLength)
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		s.metrics.RecordSignUp(metrics.ResultFailure)
		return nil, model.NewEmailTakenError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      displayName(name, email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.CreateWithPassword(ctx, user, hash); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.metrics.RecordSignUp(metrics.ResultFailure)
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user signed up", slog.String("user_id", user.ID))
	s.metrics.RecordSignUp(metrics.ResultSuccess)

	s.createProfile(ctx, user)

	return s.issue(ctx, user)
}

// SignIn はメールアドレスとパスワードを検証し、セッションを発行する。
// 未登録・パスワード不一致・パスワード未設定はいずれも同じエラーを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.metrics.RecordSignIn(metrics.ResultFailure)
		return nil, model.NewInvalidCredentialsError()
	}

	hash, err := s.users.FindPasswordHash(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find password hash: %w", err)
	}
	if hash == "" {
		s.metrics.RecordSignIn(metrics.ResultFailure)
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(password, hash)
	if err != nil {
		slog.Warn("stored password hash is unreadable",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	if !ok {
		s.metrics.RecordSignIn(metrics.ResultFailure)
		return nil, model.NewInvalidCredentialsError()
	}
	if err := s.requireActive(ctx, user.ID); err != nil {
		s.metrics.RecordSignIn(metrics.ResultFailure)
		return nil, err
	}

	s.metrics.RecordSignIn(metrics.ResultSuccess)
	return s.issue(ctx, user)
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user signed out")
	return nil
}

// GetSession はセッションとIdentityを返す。
// セッションが存在しないか期限切れの場合はnil, nil, nilを返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error) {
	if sessionID == "" {
		return nil, nil, nil
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, nil
	}
	return session, &model.Identity{ID: user.ID, Email: user.Email}, nil
}

// Identity はユーザーIDに対応するIdentityを返す。存在しない場合はnil。
func (s *Service) Identity(ctx context.Context, userID string) (*model.Identity, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	return &model.Identity{ID: user.ID, Email: user.Email}, nil
}

// Refresh はリフレッシュトークン（セッションID）の有効期限を延長し、
// 新しいアクセストークンを発行する。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, model.NewInvalidTokenError()
	}
	session, err := s.sessions.Extend(ctx, refreshToken, s.now().Add(s.config.SessionMaxAge))
	if err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}
	if session == nil {
		return nil, model.NewInvalidTokenError()
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidTokenError()
	}
	if err := s.requireActive(ctx, user.ID); err != nil {
		if derr := s.sessions.DeleteByID(ctx, session.ID); derr != nil {
			slog.Warn("failed to delete session of disabled user",
				slog.String("user_id", user.ID),
				slog.String("error", derr.Error()),
			)
		}
		return nil, err
	}

	return s.withAccessToken(session, user)
}

// VerifyAccessToken はアクセストークンを検証し、ユーザーIDを返す。
func (s *Service) VerifyAccessToken(token string) (string, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ParseAccessToken はアクセストークンを検証し、ユーザーIDとセッションIDを返す。
// セッションが破棄されているかどうかは確認しない。
func (s *Service) ParseAccessToken(token string) (string, string, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.SessionID, nil
}

// OAuthEnabled はGoogleログインが有効かを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	if s.oauth == nil {
		return "", model.NewOAuthDisabledError()
	}
	return s.oauth.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録のGoogleアカウントはユーザー・外部アカウント・プロフィールを作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*AuthResult, error) {
	if s.oauth == nil {
		return nil, model.NewOAuthDisabledError()
	}

	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordSignIn(metrics.ResultFailure)
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	account, err := s.accounts.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find external account: %w", err)
	}

	if account != nil {
		user, err := s.users.FindByID(ctx, account.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user for external account not found: %s", account.UserID)
		}
		if err := s.requireActive(ctx, user.ID); err != nil {
			s.metrics.RecordSignIn(metrics.ResultFailure)
			return nil, err
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
		s.metrics.RecordSignIn(metrics.ResultSuccess)
		return s.issue(ctx, user)
	}

	// 同じメールアドレスのパスワードアカウントへの自動紐付けはしない
	existing, err := s.users.FindByEmail(ctx, info.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		s.metrics.RecordSignIn(metrics.ResultFailure)
		return nil, model.NewEmailTakenError()
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      displayName(info.Name, info.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	newAccount := &model.ExternalAccount{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.users.CreateWithExternalAccount(ctx, user, newAccount); err != nil {
		return nil, fmt.Errorf("failed to create user and external account: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	s.metrics.RecordSignUp(metrics.ResultSuccess)

	s.createProfile(ctx, user)
	if err := s.requireActive(ctx, user.ID); err != nil {
		return nil, err
	}

	return s.issue(ctx, user)
}

// requireActive は管理者に無効化されたユーザーならACCOUNT_DISABLEDを返す。
// プロフィール未作成のユーザーは有効とみなす。
func (s *Service) requireActive(ctx context.Context, userID string) error {
	if s.profiles == nil {
		return nil
	}
	active, err := s.profiles.IsActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check account status: %w", err)
	}
	if !active {
		slog.Warn("sign-in rejected for disabled account", slog.String("user_id", userID))
		return model.NewAccountDisabledError()
	}
	return nil
}

// createProfile はプロフィールを作成する。失敗はログとメトリクスに残すだけでロールバックしない。
func (s *Service) createProfile(ctx context.Context, user *model.User) {
	if s.profiles == nil {
		return
	}
	role := model.RoleUser
	if s.isAdminEmail(user.Email) {
		role = model.RoleAdmin
	}
	identity := &model.Identity{ID: user.ID, Email: user.Email}
	if _, err := s.profiles.Create(ctx, identity, user.Name, role); err != nil {
		s.metrics.RecordProfileCreateFailure()
		slog.Error("failed to create profile after sign-up",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) isAdminEmail(email string) bool {
	lower := strings.ToLower(email)
	for _, e := range s.config.AdminEmails {
		if e == lower {
			return true
		}
	}
	return false
}

// issue は新しいセッションを作成し、アクセストークンを付けて返す。
func (s *Service) issue(ctx context.Context, user *model.User) (*AuthResult, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return s.withAccessToken(session, user)
}

func (s *Service) withAccessToken(session *model.Session, user *model.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email, session.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Session:              session,
		Identity:             &model.Identity{ID: user.ID, Email: user.Email},
		AccessToken:          token,
		AccessTokenExpiresAt: expiresAt,
	}, nil
}

// validEmail は最低限の形式チェックを行う。
func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

// displayName は名前が空の場合にメールアドレスのローカル部を使う。
func displayName(name, email string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
