// Package settings はアプリケーション全体設定（アプリ名・ロゴ）を提供する。
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/prmconsole/internal/model"
	"github.com/hitoshi/prmconsole/internal/repository"
	"github.com/hitoshi/prmconsole/internal/security"
)

// MaxAppNameLength はアプリ名の最大文字数。
const MaxAppNameLength = 100

// RoleLookup は操作者のロールを取得する。
type RoleLookup interface {
	Role(ctx context.Context, id string) (model.Role, error)
}

// Config は設定サービスの挙動を制御する。
type Config struct {
	// LogoCheck が有効な場合、保存前にロゴURLへHEADリクエストを送る
	LogoCheck        bool
	LogoCheckTimeout time.Duration
}

// Service は設定のサービス層。
type Service struct {
	repo      repository.SettingsRepository
	roles     RoleLookup
	guard     security.URLGuard
	sanitizer security.TextSanitizer
	config    Config
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.SettingsRepository,
	roles RoleLookup,
	guard security.URLGuard,
	sanitizer security.TextSanitizer,
	config Config,
) *Service {
	if config.LogoCheckTimeout <= 0 {
		config.LogoCheckTimeout = 5 * time.Second
	}
	return &Service{
		repo:      repo,
		roles:     roles,
		guard:     guard,
		sanitizer: sanitizer,
		config:    config,
		now:       time.Now,
	}
}

// Get は設定を返す。未登録の場合は既定値を返す。
func (s *Service) Get(ctx context.Context) (*model.AppSettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get app settings: %w", err)
	}
	if settings == nil {
		return model.DefaultAppSettings(), nil
	}
	return settings, nil
}

// Update は設定を更新する。管理者のみ。
// logoURLが空文字列の場合はロゴを削除する。
func (s *Service) Update(ctx context.Context, actorID, appName, logoURL string) (*model.AppSettings, error) {
	role, err := s.roles.Role(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get actor role: %w", err)
	}
	if role != model.RoleAdmin {
		return nil, model.NewForbiddenError()
	}

	name := s.sanitizer.StripTags(appName)
	if name == "" || utf8.RuneCountInString(name) > MaxAppNameLength {
		return nil, model.NewInvalidAppNameError(MaxAppNameLength)
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	updated := &model.AppSettings{
		ID:        current.ID,
		AppName:   name,
		UpdatedAt: s.now(),
	}

	if logoURL != "" {
		if err := s.checkLogo(ctx, logoURL); err != nil {
			return nil, err
		}
		updated.LogoURL = &logoURL
	}

	if err := s.repo.Upsert(ctx, updated, actorID); err != nil {
		return nil, fmt.Errorf("failed to save app settings: %w", err)
	}

	slog.Info("app settings updated",
		slog.String("actor_id", actorID),
		slog.Bool("has_logo", updated.LogoURL != nil),
	)
	return updated, nil
}

func (s *Service) checkLogo(ctx context.Context, logoURL string) error {
	if err := s.guard.ValidateURL(logoURL); err != nil {
		var blocked *security.ErrBlockedDestination
		if errors.As(err, &blocked) {
			return model.NewSSRFBlockedError()
		}
		return model.NewInvalidURLError(err.Error())
	}
	if !s.config.LogoCheck {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.config.LogoCheckTimeout)
	defer cancel()
	if err := s.guard.Probe(probeCtx, logoURL); err != nil {
		var blocked *security.ErrBlockedDestination
		if errors.As(err, &blocked) {
			return model.NewSSRFBlockedError()
		}
		slog.Warn("logo probe failed",
			slog.String("url", logoURL),
			slog.String("error", err.Error()),
		)
		return model.NewLogoUnreachableError(err.Error())
	}
	return nil
}
