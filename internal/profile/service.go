// Package profile はプロフィールの取得・更新と管理者向けユーザー管理を提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/prmconsole/internal/model"
	"github.com/hitoshi/prmconsole/internal/repository"
	"github.com/hitoshi/prmconsole/internal/security"
)

const maxNameLength = 255

// SessionRevoker は無効化したユーザーのセッションを破棄する。
type SessionRevoker interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Update は本人が変更できる項目。nilの項目は変更しない。
// AvatarURLに空文字列を指定するとアバターを削除する。
type Update struct {
	Name       *string
	AvatarURL  *string
	Department *string
}

// Service はプロフィールのサービス層。
type Service struct {
	repo      repository.ProfileRepository
	sessions  SessionRevoker
	guard     security.URLGuard
	sanitizer security.TextSanitizer
	admins    []string
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ProfileRepository,
	sessions SessionRevoker,
	guard security.URLGuard,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		repo:      repo,
		sessions:  sessions,
		guard:     guard,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// WithAdminEmails はEnsureOwnで管理者として作成するメールアドレスを設定する。
// 比較は大文字小文字を区別しない。
func (s *Service) WithAdminEmails(emails []string) *Service {
	s.admins = make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			s.admins = append(s.admins, e)
		}
	}
	return s
}

// Get は指定IDのプロフィールを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError(id)
	}
	return p, nil
}

// Create はIdentityに対応するプロフィールを作成する。
func (s *Service) Create(ctx context.Context, identity *model.Identity, name string, role model.Role) (*model.Profile, error) {
	if !role.Valid() {
		return nil, model.NewInvalidRoleError(string(role))
	}
	name = s.sanitizer.StripTags(name)
	if name == "" {
		name = identity.Email
	}

	now := s.now()
	p := &model.Profile{
		ID:        identity.ID,
		Name:      truncate(name, maxNameLength),
		Email:     identity.Email,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("profile created",
		slog.String("user_id", p.ID),
		slog.String("role", string(p.Role)),
	)
	return p, nil
}

// EnsureOwn は本人のプロフィールが無ければ作成し、あれば名前を更新する。
// 作成した場合はtrueを返す。nameが空の既存プロフィールは変更しない。
// 作成時のロールはuserで、管理者メールアドレスの場合のみadminになる。
func (s *Service) EnsureOwn(ctx context.Context, identity *model.Identity, name string) (*model.Profile, bool, error) {
	existing, err := s.repo.FindByID(ctx, identity.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get profile: %w", err)
	}
	if existing == nil {
		role := model.RoleUser
		if slices.Contains(s.admins, strings.ToLower(identity.Email)) {
			role = model.RoleAdmin
		}
		p, err := s.Create(ctx, identity, name, role)
		if err != nil {
			return nil, false, err
		}
		return p, true, nil
	}

	if strings.TrimSpace(name) == "" {
		return existing, false, nil
	}
	p, err := s.UpdateOwn(ctx, identity.ID, Update{Name: &name})
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

// UpdateOwn は本人のプロフィールを更新する。ロールと有効状態は変更できない。
func (s *Service) UpdateOwn(ctx context.Context, id string, upd Update) (*model.Profile, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := s.sanitizer.StripTags(*upd.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return nil, model.NewInvalidRecordError(fmt.Sprintf("name must be 1-%d characters", maxNameLength))
		}
		p.Name = name
	}
	if upd.Department != nil {
		p.Department = truncate(s.sanitizer.StripTags(*upd.Department), maxNameLength)
	}
	if upd.AvatarURL != nil {
		if *upd.AvatarURL == "" {
			p.AvatarURL = nil
		} else {
			if err := s.checkURL(*upd.AvatarURL); err != nil {
				return nil, err
			}
			v := *upd.AvatarURL
			p.AvatarURL = &v
		}
	}

	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}

// List は全ユーザーのプロフィールを返す。管理者のみ。
func (s *Service) List(ctx context.Context, actorID string) ([]*model.Profile, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	profiles, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	if profiles == nil {
		profiles = []*model.Profile{}
	}
	return profiles, nil
}

// UpdateRole は他ユーザーのロールを変更する。管理者のみ。
// 管理者が自分自身のロールを変更することはできない。
func (s *Service) UpdateRole(ctx context.Context, actorID, targetID string, role model.Role) (*model.Profile, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, model.NewInvalidRoleError(string(role))
	}
	if actorID == targetID {
		return nil, model.NewSelfModificationError()
	}
	// IDはUUID列のため、形式が不正なものはDBに渡さず未検出として扱う
	if uuid.Validate(targetID) != nil {
		return nil, model.NewProfileNotFoundError(targetID)
	}

	target, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	target.Role = role
	target.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	slog.Info("profile role changed",
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
		slog.String("role", string(role)),
	)
	return target, nil
}

// SetActive は他ユーザーの有効状態を切り替える。管理者のみ。
// 無効化したユーザーのセッションは全て破棄する。
func (s *Service) SetActive(ctx context.Context, actorID, targetID string, active bool) (*model.Profile, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if actorID == targetID {
		return nil, model.NewSelfModificationError()
	}
	// IDはUUID列のため、形式が不正なものはDBに渡さず未検出として扱う
	if uuid.Validate(targetID) != nil {
		return nil, model.NewProfileNotFoundError(targetID)
	}

	target, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	target.Active = active
	target.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to update active state: %w", err)
	}

	if !active && s.sessions != nil {
		if err := s.sessions.DeleteByUserID(ctx, targetID); err != nil {
			slog.Warn("failed to revoke sessions of deactivated user",
				slog.String("target_id", targetID),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("profile active state changed",
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
		slog.Bool("active", active),
	)
	return target, nil
}

// IsActive はユーザーが無効化されていないかを返す。
// プロフィールが未作成の場合は有効とみなす。
func (s *Service) IsActive(ctx context.Context, id string) (bool, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to get profile: %w", err)
	}
	return p == nil || p.Active, nil
}

// Role はユーザーのロールを返す。プロフィールが無い場合は空文字列。
func (s *Service) Role(ctx context.Context, id string) (model.Role, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to get profile: %w", err)
	}
	if p == nil || !p.Active {
		return "", nil
	}
	return p.Role, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) (*model.Profile, error) {
	actor, err := s.repo.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get actor profile: %w", err)
	}
	if actor == nil || !actor.Active || !actor.IsAdmin() {
		return nil, model.NewForbiddenError()
	}
	return actor, nil
}

func (s *Service) checkURL(raw string) error {
	if err := s.guard.ValidateURL(raw); err != nil {
		var blocked *security.ErrBlockedDestination
		if errors.As(err, &blocked) {
			return model.NewSSRFBlockedError()
		}
		return model.NewInvalidURLError(err.Error())
	}
	return nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
