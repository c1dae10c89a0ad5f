package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/prmconsole/internal/auth"
	"github.com/hitoshi/prmconsole/internal/middleware"
	"github.com/hitoshi/prmconsole/internal/model"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthRedirectCookie = "oauth_redirect"
	oauthCookieMaxAge   = 600
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password, name string) (*auth.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*auth.AuthResult, error)
	SignOut(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.AuthResult, error)
	ParseAccessToken(token string) (userID, sessionID string, err error)
	GetLoginURL(state string) (string, error)
	HandleCallback(ctx context.Context, code string) (*auth.AuthResult, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はサインイン・サインアップ・セッション・OAuthのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{service: service, config: config}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse はサインイン・サインアップ・リフレッシュのレスポンス。
// expires_at はアクセストークンの有効期限。
type tokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Identity     model.Identity `json:"identity"`
}

type sessionResponse struct {
	Identity  model.Identity `json:"identity"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func toTokenResponse(res *auth.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.Session.ID,
		ExpiresAt:    res.AccessTokenExpiresAt,
		Identity:     *res.Identity,
	}
}

// SignUp はアカウントを作成し、サインインした状態にする。
// POST /auth/sign-up
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	res, err := h.service.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, res.Session.ID)
	writeJSON(w, http.StatusCreated, toTokenResponse(res))
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /auth/sign-in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	res, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, res.Session.ID)
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

// SignOut はセッションを破棄する。セッションが無くても成功として扱う。
// POST /auth/sign-out
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if sessionID := h.requestSessionID(r); sessionID != "" {
		if err := h.service.SignOut(r.Context(), sessionID); err != nil {
			// 失敗してもCookieはクリアする
			slog.Error("failed to sign out", slog.String("error", err.Error()))
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session は現在のセッションのIdentityと有効期限を返す。SessionMiddlewareの後に配置する。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	session, identity, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if session == nil || identity == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Identity: *identity, ExpiresAt: session.ExpiresAt})
}

// Refresh はリフレッシュトークンでアクセストークンを再発行する。
// ボディが空の場合はセッションCookieをリフレッシュトークンとして使う。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	fromCookie := false
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			handleServiceError(w, err)
			return
		}
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(middleware.SessionCookieName); err == nil {
			req.RefreshToken = c.Value
			fromCookie = true
		}
	}

	res, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if fromCookie {
			h.clearSessionCookie(w)
		}
		handleServiceError(w, err)
		return
	}

	if fromCookie {
		h.setSessionCookie(w, res.Session.ID)
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

// GoogleLogin はGoogle OAuthフローを開始する。
// redirect_to にはサインイン後に戻るアプリ内のパスを指定できる。
// GET /auth/google/login?redirect_to=/dashboard
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setShortCookie(w, oauthStateCookie, state)
	if to := safeRedirectPath(r.URL.Query().Get("redirect_to")); to != "" {
		h.setShortCookie(w, oauthRedirectCookie, to)
	}
	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidOAuthStateError())
		return
	}
	h.clearCookie(w, oauthStateCookie, "")

	redirectPath := ""
	if c, err := r.Cookie(oauthRedirectCookie); err == nil {
		redirectPath = safeRedirectPath(c.Value)
		h.clearCookie(w, oauthRedirectCookie, "")
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("missing authorization code"))
		return
	}

	res, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, res.Session.ID)
	http.Redirect(w, r, strings.TrimRight(h.config.BaseURL, "/")+redirectPath, http.StatusTemporaryRedirect)
}

// requestSessionID はBearerトークンまたはCookieからセッションIDを取り出す。
func (h *AuthHandler) requestSessionID(r *http.Request) string {
	if token := middleware.BearerToken(r); token != "" {
		_, sessionID, err := h.service.ParseAccessToken(token)
		if err != nil {
			return ""
		}
		return sessionID
	}
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	h.clearCookie(w, middleware.SessionCookieName, h.config.CookieDomain)
}

func (h *AuthHandler) setShortCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   oauthCookieMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeRedirectPath はアプリ内の絶対パスだけを許可する。それ以外は空文字列を返す。
func safeRedirectPath(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return u.RequestURI()
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
