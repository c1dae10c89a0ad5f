package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/prmconsole/internal/console"
	"github.com/hitoshi/prmconsole/internal/model"
)

// tokenResponse はサインイン・サインアップ・リフレッシュのレスポンス。
type tokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Identity     model.Identity `json:"identity"`
}

func (t *tokenResponse) session() *console.Session {
	return &console.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
		Identity:     t.Identity,
	}
}

// sessionResponse は GET /auth/session のレスポンス。
type sessionResponse struct {
	Identity  model.Identity `json:"identity"`
	ExpiresAt time.Time      `json:"expires_at"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// OnAuthStateChange は認証状態の変化を購読する。
// 保存済みトークンを検証した結果をINITIAL_SESSIONとして非同期に1回通知する。
// 通知は状態変化の順に1件ずつ届く。cbの中からサインイン等を同期的に呼んではいけない。
func (c *Client) OnAuthStateChange(cb func(console.AuthEvent)) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = cb
	c.mu.Unlock()

	go func() {
		c.ensureRestored(context.Background())

		// 読み取りから通知までの間に他のイベントが割り込まないようにする
		c.emitMu.Lock()
		defer c.emitMu.Unlock()
		c.mu.Lock()
		_, subscribed := c.subs[id]
		sess := copySession(c.session)
		c.mu.Unlock()
		if subscribed {
			cb(console.AuthEvent{Type: console.EventInitialSession, Session: sess})
		}
	}()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// GetSession は現在のセッションを返す。未復元なら保存済みトークンから復元する。
func (c *Client) GetSession(ctx context.Context) (*console.Session, error) {
	c.ensureRestored(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session), nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*console.Session, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/sign-in", "", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	var body tokenResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	sess := body.session()
	c.publish(console.EventSignedIn, sess)
	return copySession(sess), nil
}

// SignUp はアカウントを作成し、そのままサインインした状態にする。
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/sign-up", "", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	var body tokenResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	sess := body.session()
	c.publish(console.EventSignedIn, sess)
	identity := body.Identity
	return &identity, nil
}

// SignOut はサインアウトする。サーバー側の失敗に関わらずローカルのトークンは破棄する。
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := copySession(c.session)
	c.mu.Unlock()
	if sess == nil {
		return nil
	}

	var serverErr error
	resp, err := c.do(ctx, http.MethodPost, "/auth/sign-out", sess.AccessToken, nil)
	if err != nil && statusOf(resp, err) != http.StatusUnauthorized {
		serverErr = fmt.Errorf("failed to sign out on server: %w", err)
	} else if err == nil {
		discard(resp)
	}

	c.publish(console.EventSignedOut, nil)
	return serverErr
}

// SignInWithOAuth は外部IdPのログイン開始URLを返す。対応しているのはgoogleのみ。
func (c *Client) SignInWithOAuth(provider, redirectTo string) (string, error) {
	if provider != "google" {
		return "", fmt.Errorf("unsupported oauth provider: %s", provider)
	}
	u := c.baseURL + "/auth/google/login"
	if redirectTo != "" {
		u += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return u, nil
}

// Refresh はリフレッシュトークンでアクセストークンを更新する。
// リフレッシュトークンが無効な場合はサインアウト状態にする。
func (c *Client) Refresh(ctx context.Context) (*console.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	sess := copySession(c.session)
	c.mu.Unlock()
	if sess == nil {
		return nil, ErrNoSession
	}
	return c.refreshLocked(ctx, sess, true)
}

func (c *Client) refreshLocked(ctx context.Context, sess *console.Session, notify bool) (*console.Session, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": sess.RefreshToken})
	if err != nil {
		if isAuthRejection(resp, err) {
			c.logger.Info("refresh token rejected, signing out")
			if notify {
				c.publish(console.EventSignedOut, nil)
			} else {
				c.setSession(nil)
			}
		}
		return nil, err
	}
	var body tokenResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	next := body.session()
	if notify {
		c.publish(console.EventTokenRefreshed, next)
	} else {
		c.setSession(next)
	}
	return copySession(next), nil
}

// ensureRestored は初回のみ保存済みトークンを読み込んで検証する。
func (c *Client) ensureRestored(ctx context.Context) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	if c.restored {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	sess := c.restore(ctx)

	c.mu.Lock()
	// 復元中にサインインした場合はそちらを優先する
	if !c.restored {
		c.restored = true
		if c.session == nil {
			c.session = sess
		}
	}
	c.mu.Unlock()
}

// restore は保存済みトークンを検証して有効なセッションを返す。
// アクセストークンが期限切れなら1回だけリフレッシュする。
func (c *Client) restore(ctx context.Context) *console.Session {
	stored, err := c.tokens.Load()
	if err != nil {
		c.logger.Warn("failed to load stored session", slog.String("error", err.Error()))
		return nil
	}
	if stored == nil {
		return nil
	}

	if c.now().Add(expirySkew).Before(stored.ExpiresAt) {
		identity, err := c.verify(ctx, stored.AccessToken)
		if err == nil {
			stored.Identity = *identity
			return stored
		}
		if !isAuthRejection(nil, err) {
			// ネットワーク障害ではトークンを消さない
			c.logger.Warn("failed to verify stored session", slog.String("error", err.Error()))
			return nil
		}
	}

	refreshed, err := c.refreshLocked(ctx, stored, false)
	if err != nil {
		c.logger.Info("stored session could not be refreshed", slog.String("error", err.Error()))
		return nil
	}
	return refreshed
}

func (c *Client) verify(ctx context.Context, accessToken string) (*model.Identity, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/session", accessToken, nil)
	if err != nil {
		return nil, err
	}
	var body sessionResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return &body.Identity, nil
}

// accessToken は有効なアクセストークンを返す。期限が近ければ先にリフレッシュする。
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.ensureRestored(ctx)

	c.mu.Lock()
	sess := copySession(c.session)
	c.mu.Unlock()
	if sess == nil {
		return "", ErrNoSession
	}
	if c.now().Add(expirySkew).Before(sess.ExpiresAt) {
		return sess.AccessToken, nil
	}
	refreshed, err := c.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// authed は認証付きでリクエストを送る。401の場合は1回だけリフレッシュして再送する。
func (c *Client) authed(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, method, path, token, body)
	if err == nil || !isAuthRejection(resp, err) {
		return resp, err
	}

	refreshed, rerr := c.Refresh(ctx)
	if rerr != nil {
		return resp, err
	}
	return c.do(ctx, method, path, refreshed.AccessToken, body)
}

func (c *Client) setSession(sess *console.Session) {
	c.mu.Lock()
	c.session = copySession(sess)
	c.restored = true
	c.mu.Unlock()

	var err error
	if sess == nil {
		err = c.tokens.Clear()
	} else {
		err = c.tokens.Save(sess)
	}
	if err != nil {
		c.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}

	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// publish はセッションを更新し、その変化を購読者に通知する。
// 更新と通知をemitMuでまとめ、通知の順序を状態変化の順序と一致させる。
func (c *Client) publish(t console.AuthEventType, sess *console.Session) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.setSession(sess)
	c.emit(t, sess)
}

func (c *Client) emit(t console.AuthEventType, sess *console.Session) {
	c.mu.Lock()
	cbs := make([]func(console.AuthEvent), 0, len(c.subs))
	for _, cb := range c.subs {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(console.AuthEvent{Type: t, Session: copySession(sess)})
	}
}

// isAuthRejection はサーバーが資格情報を拒否したかどうかを返す。
func isAuthRejection(resp *http.Response, err error) bool {
	if statusOf(resp, err) == http.StatusUnauthorized {
		return true
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeUnauthorized, model.ErrCodeInvalidToken, model.ErrCodeAccountDisabled:
			return true
		}
	}
	return false
}

func copySession(s *console.Session) *console.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

var _ console.AuthProvider = (*Client)(nil)
