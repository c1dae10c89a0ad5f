package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/prmconsole/internal/auth"
	"github.com/hitoshi/prmconsole/internal/middleware"
	"github.com/hitoshi/prmconsole/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signUpFn         func(ctx context.Context, email, password, name string) (*auth.AuthResult, error)
	signInFn         func(ctx context.Context, email, password string) (*auth.AuthResult, error)
	signOutFn        func(ctx context.Context, sessionID string) error
	getSessionFn     func(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error)
	refreshFn        func(ctx context.Context, refreshToken string) (*auth.AuthResult, error)
	parseTokenFn     func(token string) (string, string, error)
	getLoginURLFn    func(state string) (string, error)
	handleCallbackFn func(ctx context.Context, code string) (*auth.AuthResult, error)
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password, name string) (*auth.AuthResult, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, name)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*auth.AuthResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetSession(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, sessionID)
	}
	return nil, nil, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.AuthResult, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, model.NewInvalidTokenError()
}

func (m *mockAuthService) ParseAccessToken(token string) (string, string, error) {
	if m.parseTokenFn != nil {
		return m.parseTokenFn(token)
	}
	return "", "", model.NewInvalidTokenError()
}

func (m *mockAuthService) GetLoginURL(state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "", model.NewOAuthDisabledError()
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*auth.AuthResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, errors.New("not implemented")
}

var testAuthConfig = AuthHandlerConfig{
	BaseURL:       "http://localhost:3000",
	SessionMaxAge: 86400,
}

func authResult(sessionID string) *auth.AuthResult {
	return &auth.AuthResult{
		Session:              &model.Session{ID: sessionID, UserID: "u-1", ExpiresAt: time.Now().Add(24 * time.Hour)},
		Identity:             &model.Identity{ID: "u-1", Email: "alice@example.com"},
		AccessToken:          "access-" + sessionID,
		AccessTokenExpiresAt: time.Now().Add(15 * time.Minute),
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, body *strings.Reader) middleware.ErrorResponseBody {
	t.Helper()
	var e middleware.ErrorResponseBody
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return e
}

// --- テスト ---

func TestAuthHandler_SignIn_Success(t *testing.T) {
	svc := &mockAuthService{
		signInFn: func(_ context.Context, email, password string) (*auth.AuthResult, error) {
			if email != "alice@example.com" || password != "password123" {
				t.Errorf("unexpected credentials: %s / %s", email, password)
			}
			return authResult("sess-1"), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in",
		strings.NewReader(`{"email":"alice@example.com","password":"password123"}`))
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.AccessToken != "access-sess-1" || body.RefreshToken != "sess-1" {
		t.Errorf("tokens = %q / %q", body.AccessToken, body.RefreshToken)
	}
	if body.Identity.Email != "alice@example.com" {
		t.Errorf("identity email = %q", body.Identity.Email)
	}

	c := findCookie(resp, middleware.SessionCookieName)
	if c == nil || c.Value != "sess-1" {
		t.Fatalf("session cookie = %+v", c)
	}
	if !c.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
}

func TestAuthHandler_SignIn_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		signInFn: func(context.Context, string, string) (*auth.AuthResult, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in",
		strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if e := decodeError(t, strings.NewReader(w.Body.String())); e.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q", e.Code)
	}
	if findCookie(w.Result(), middleware.SessionCookieName) != nil {
		t.Error("失敗時にセッションCookieを設定してはいけない")
	}
}

func TestAuthHandler_SignIn_UnknownFieldRejected(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in",
		strings.NewReader(`{"email":"a@example.com","password":"x","admin":true}`))
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuthHandler_SignUp_Created(t *testing.T) {
	svc := &mockAuthService{
		signUpFn: func(_ context.Context, email, _, name string) (*auth.AuthResult, error) {
			if name != "Alice" {
				t.Errorf("name = %q", name)
			}
			return authResult("sess-new"), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-up",
		strings.NewReader(`{"email":"alice@example.com","password":"password123","name":"Alice"}`))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if c := findCookie(w.Result(), middleware.SessionCookieName); c == nil || c.Value != "sess-new" {
		t.Errorf("session cookie = %+v", c)
	}
}

func TestAuthHandler_SignUp_EmailTaken(t *testing.T) {
	svc := &mockAuthService{
		signUpFn: func(context.Context, string, string, string) (*auth.AuthResult, error) {
			return nil, model.NewEmailTakenError()
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-up",
		strings.NewReader(`{"email":"alice@example.com","password":"password123"}`))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	t.Run("Bearerトークンのセッションを破棄する", func(t *testing.T) {
		var deleted string
		svc := &mockAuthService{
			parseTokenFn: func(token string) (string, string, error) {
				if token != "tok" {
					t.Errorf("token = %q", token)
				}
				return "u-1", "sess-bearer", nil
			},
			signOutFn: func(_ context.Context, id string) error {
				deleted = id
				return nil
			},
		}
		h := NewAuthHandler(svc, testAuthConfig)

		req := httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		h.SignOut(w, req)

		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if deleted != "sess-bearer" {
			t.Errorf("deleted = %q", deleted)
		}
	})

	t.Run("Cookieのセッションを破棄してCookieをクリアする", func(t *testing.T) {
		var deleted string
		svc := &mockAuthService{
			signOutFn: func(_ context.Context, id string) error {
				deleted = id
				return nil
			},
		}
		h := NewAuthHandler(svc, testAuthConfig)

		req := httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-cookie"})
		w := httptest.NewRecorder()
		h.SignOut(w, req)

		if deleted != "sess-cookie" {
			t.Errorf("deleted = %q", deleted)
		}
		c := findCookie(w.Result(), middleware.SessionCookieName)
		if c == nil || c.MaxAge >= 0 {
			t.Errorf("cookie should be cleared: %+v", c)
		}
	})

	t.Run("セッションが無くても204を返す", func(t *testing.T) {
		svc := &mockAuthService{
			signOutFn: func(context.Context, string) error {
				t.Error("SignOut should not be called")
				return nil
			},
		}
		h := NewAuthHandler(svc, testAuthConfig)

		w := httptest.NewRecorder()
		h.SignOut(w, httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil))

		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
	})
}

func TestAuthHandler_Session(t *testing.T) {
	expires := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	svc := &mockAuthService{
		getSessionFn: func(_ context.Context, id string) (*model.Session, *model.Identity, error) {
			if id != "sess-1" {
				return nil, nil, nil
			}
			return &model.Session{ID: id, UserID: "u-1", ExpiresAt: expires},
				&model.Identity{ID: "u-1", Email: "alice@example.com"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	sessions := &stubSessionFinder{sessions: map[string]*model.Session{
		"sess-1": {ID: "sess-1", UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	handler := middleware.NewSessionMiddleware(sessions, svc)(http.HandlerFunc(h.Session))

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Identity.ID != "u-1" || !body.ExpiresAt.Equal(expires) {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	t.Run("ボディのリフレッシュトークンで再発行する", func(t *testing.T) {
		svc := &mockAuthService{
			refreshFn: func(_ context.Context, token string) (*auth.AuthResult, error) {
				if token != "sess-1" {
					return nil, model.NewInvalidTokenError()
				}
				return authResult("sess-1"), nil
			},
		}
		h := NewAuthHandler(svc, testAuthConfig)

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"sess-1"}`))
		w := httptest.NewRecorder()
		h.Refresh(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if findCookie(w.Result(), middleware.SessionCookieName) != nil {
			t.Error("ボディ指定の場合はCookieを書き換えない")
		}
	})

	t.Run("ボディが空ならCookieを使う", func(t *testing.T) {
		var got string
		svc := &mockAuthService{
			refreshFn: func(_ context.Context, token string) (*auth.AuthResult, error) {
				got = token
				return authResult(token), nil
			},
		}
		h := NewAuthHandler(svc, testAuthConfig)

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-cookie"})
		w := httptest.NewRecorder()
		h.Refresh(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if got != "sess-cookie" {
			t.Errorf("token = %q", got)
		}
	})

	t.Run("無効なトークンは401", func(t *testing.T) {
		h := NewAuthHandler(&mockAuthService{}, testAuthConfig)

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"gone"}`))
		w := httptest.NewRecorder()
		h.Refresh(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if e := decodeError(t, strings.NewReader(w.Body.String())); e.Code != model.ErrCodeInvalidToken {
			t.Errorf("code = %q", e.Code)
		}
	})
}

func TestAuthHandler_GoogleLogin(t *testing.T) {
	t.Run("stateとリダイレクト先のCookieを設定してリダイレクトする", func(t *testing.T) {
		svc := &mockAuthService{
			getLoginURLFn: func(state string) (string, error) {
				return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
			},
		}
		h := NewAuthHandler(svc, testAuthConfig)

		req := httptest.NewRequest(http.MethodGet, "/auth/google/login?redirect_to=/dashboard", nil)
		w := httptest.NewRecorder()
		h.GoogleLogin(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusTemporaryRedirect {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
		}
		state := findCookie(resp, oauthStateCookie)
		if state == nil || state.Value == "" {
			t.Fatal("expected oauth_state cookie")
		}
		if !strings.Contains(resp.Header.Get("Location"), "state="+state.Value) {
			t.Errorf("location = %q", resp.Header.Get("Location"))
		}
		if c := findCookie(resp, oauthRedirectCookie); c == nil || c.Value != "/dashboard" {
			t.Errorf("redirect cookie = %+v", c)
		}
	})

	t.Run("OAuth無効時は404", func(t *testing.T) {
		h := NewAuthHandler(&mockAuthService{}, testAuthConfig)

		w := httptest.NewRecorder()
		h.GoogleLogin(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestAuthHandler_GoogleCallback(t *testing.T) {
	t.Run("成功時はセッションCookieを設定してアプリに戻す", func(t *testing.T) {
		svc := &mockAuthService{
			handleCallbackFn: func(_ context.Context, code string) (*auth.AuthResult, error) {
				if code != "auth-code" {
					t.Errorf("code = %q", code)
				}
				return authResult("sess-oauth"), nil
			},
		}
		h := NewAuthHandler(svc, testAuthConfig)

		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=st", nil)
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st"})
		req.AddCookie(&http.Cookie{Name: oauthRedirectCookie, Value: "/partners?page=2"})
		w := httptest.NewRecorder()
		h.GoogleCallback(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusTemporaryRedirect {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
		}
		if loc := resp.Header.Get("Location"); loc != "http://localhost:3000/partners?page=2" {
			t.Errorf("location = %q", loc)
		}
		if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.Value != "sess-oauth" {
			t.Errorf("session cookie = %+v", c)
		}
	})

	t.Run("state不一致は400", func(t *testing.T) {
		svc := &mockAuthService{
			handleCallbackFn: func(context.Context, string) (*auth.AuthResult, error) {
				t.Error("HandleCallback should not be called")
				return nil, nil
			},
		}
		h := NewAuthHandler(svc, testAuthConfig)

		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=forged", nil)
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st"})
		w := httptest.NewRecorder()
		h.GoogleCallback(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if e := decodeError(t, strings.NewReader(w.Body.String())); e.Code != model.ErrCodeInvalidOAuthState {
			t.Errorf("code = %q", e.Code)
		}
	})
}

func TestSafeRedirectPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/dashboard", "/dashboard"},
		{"/deals?status=won", "/deals?status=won"},
		{"", ""},
		{"dashboard", ""},
		{"//evil.example.com", ""},
		{"https://evil.example.com/", ""},
		{`/\evil.example.com`, ""},
	}
	for _, tt := range tests {
		if got := safeRedirectPath(tt.in); got != tt.want {
			t.Errorf("safeRedirectPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
