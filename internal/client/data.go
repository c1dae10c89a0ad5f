package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/prmconsole/internal/console"
	"github.com/hitoshi/prmconsole/internal/model"
)

// settingsResponse は GET /api/settings のレスポンス。
// is_default がtrueの場合は設定行が存在しない。
type settingsResponse struct {
	ID        string    `json:"id"`
	AppName   string    `json:"app_name"`
	LogoURL   *string   `json:"logo_url"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDefault bool      `json:"is_default"`
}

// FetchProfile は自分のプロフィールを取得する。存在しない場合は nil, nil を返す。
func (c *Client) FetchProfile(ctx context.Context, id string) (*model.Profile, error) {
	resp, err := c.authed(ctx, http.MethodGet, "/api/profile", nil)
	if err != nil {
		if statusOf(resp, err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	var p model.Profile
	if err := decodeJSON(resp, &p); err != nil {
		return nil, err
	}
	// 取得中にサインインし直した場合などで別ユーザーの結果を返さない
	if p.ID != id {
		return nil, fmt.Errorf("profile belongs to %s, requested %s", p.ID, id)
	}
	return &p, nil
}

// CreateProfile は自分のプロフィールを作成する。既に存在する場合は名前のみ更新される。
func (c *Client) CreateProfile(ctx context.Context, identity model.Identity, name string) error {
	c.mu.Lock()
	sess := copySession(c.session)
	c.mu.Unlock()
	if sess == nil || sess.Identity.ID != identity.ID {
		return fmt.Errorf("cannot create profile for %s: %w", identity.ID, ErrNoSession)
	}

	resp, err := c.authed(ctx, http.MethodPost, "/api/profile", map[string]string{"name": name})
	if err != nil {
		return err
	}
	discard(resp)
	return nil
}

// FetchSettings は全体設定を取得する。設定行が存在しない場合は nil, nil を返す。
func (c *Client) FetchSettings(ctx context.Context) (*model.AppSettings, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/settings", "", nil)
	if err != nil {
		return nil, err
	}
	var body settingsResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	if body.IsDefault {
		return nil, nil
	}
	return &model.AppSettings{
		ID:        body.ID,
		AppName:   body.AppName,
		LogoURL:   body.LogoURL,
		UpdatedAt: body.UpdatedAt,
	}, nil
}

// ListRecords はコレクション内の自分のレコードを取得する。
func (c *Client) ListRecords(ctx context.Context, collection model.Collection, includeInactive bool) ([]*model.Record, error) {
	path := "/api/records/" + url.PathEscape(string(collection))
	if includeInactive {
		path += "?include_inactive=true"
	}
	resp, err := c.authed(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var records []*model.Record
	if err := decodeJSON(resp, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ListUsers は全ユーザーのプロフィールを取得する。管理者のみ。
func (c *Client) ListUsers(ctx context.Context) ([]*model.Profile, error) {
	resp, err := c.authed(ctx, http.MethodGet, "/api/admin/users", nil)
	if err != nil {
		return nil, err
	}
	var profiles []*model.Profile
	if err := decodeJSON(resp, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// UpdateSettings は全体設定を更新する。管理者のみ。logoURLが空ならロゴを削除する。
func (c *Client) UpdateSettings(ctx context.Context, appName, logoURL string) (*model.AppSettings, error) {
	resp, err := c.authed(ctx, http.MethodPut, "/api/settings", map[string]string{
		"app_name": appName,
		"logo_url": logoURL,
	})
	if err != nil {
		return nil, err
	}
	var body settingsResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return &model.AppSettings{ID: body.ID, AppName: body.AppName, LogoURL: body.LogoURL, UpdatedAt: body.UpdatedAt}, nil
}

var _ console.DataProvider = (*Client)(nil)
