package handler

import (
	"context"

	"github.com/hitoshi/prmconsole/internal/model"
	"github.com/hitoshi/prmconsole/internal/profile"
	"github.com/hitoshi/prmconsole/internal/settings"
)

// IdentityLookup はユーザーIDからIdentityを引く。auth.Serviceが満たす。
type IdentityLookup interface {
	Identity(ctx context.Context, userID string) (*model.Identity, error)
}

// ProfileServiceAdapter は profile.Service を ProfileServiceInterface に適合させるアダプタ。
// プロフィール作成に必要なメールアドレスはIdentityLookupから補う。
type ProfileServiceAdapter struct {
	svc        *profile.Service
	identities IdentityLookup
}

// NewProfileServiceAdapter はProfileServiceAdapterを生成する。
func NewProfileServiceAdapter(svc *profile.Service, identities IdentityLookup) *ProfileServiceAdapter {
	return &ProfileServiceAdapter{svc: svc, identities: identities}
}

// GetProfile は本人のプロフィールを返す。
func (a *ProfileServiceAdapter) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	return a.svc.Get(ctx, userID)
}

// EnsureProfile は本人のプロフィールを作成または名前を更新する。
func (a *ProfileServiceAdapter) EnsureProfile(ctx context.Context, userID, name string) (*model.Profile, bool, error) {
	identity, err := a.identities.Identity(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if identity == nil {
		// セッションはあるがユーザーが消えている
		return nil, false, model.NewUnauthorizedError()
	}
	return a.svc.EnsureOwn(ctx, identity, name)
}

// UpdateProfile は本人のプロフィールを部分更新する。
func (a *ProfileServiceAdapter) UpdateProfile(ctx context.Context, userID string, upd profile.Update) (*model.Profile, error) {
	return a.svc.UpdateOwn(ctx, userID, upd)
}

// SettingsServiceAdapter は settings.Service を SettingsServiceInterface に適合させるアダプタ。
type SettingsServiceAdapter struct {
	svc *settings.Service
}

// NewSettingsServiceAdapter はSettingsServiceAdapterを生成する。
func NewSettingsServiceAdapter(svc *settings.Service) *SettingsServiceAdapter {
	return &SettingsServiceAdapter{svc: svc}
}

// GetSettings は設定を返す。未保存の場合はis_defaultを立てる。
func (a *SettingsServiceAdapter) GetSettings(ctx context.Context) (*settingsResponse, error) {
	s, err := a.svc.Get(ctx)
	if err != nil {
		return nil, err
	}
	resp := toSettingsResponse(s)
	return &resp, nil
}

// UpdateSettings は設定を更新する。
func (a *SettingsServiceAdapter) UpdateSettings(ctx context.Context, actorID, appName, logoURL string) (*settingsResponse, error) {
	s, err := a.svc.Update(ctx, actorID, appName, logoURL)
	if err != nil {
		return nil, err
	}
	resp := toSettingsResponse(s)
	resp.IsDefault = false
	return &resp, nil
}

func toSettingsResponse(s *model.AppSettings) settingsResponse {
	return settingsResponse{
		ID:        s.ID,
		AppName:   s.AppName,
		LogoURL:   s.LogoURL,
		UpdatedAt: s.UpdatedAt,
		IsDefault: s.IsDefault(),
	}
}

// --- compile-time interface checks ---

var (
	_ ProfileServiceInterface  = (*ProfileServiceAdapter)(nil)
	_ SettingsServiceInterface = (*SettingsServiceAdapter)(nil)
	_ AdminServiceInterface    = (*profile.Service)(nil)
)
