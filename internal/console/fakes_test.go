package console

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/prmconsole/internal/model"
)

// --- モック定義 ---

// fakeAuth はテスト用のAuthProvider。emitでコールバックを任意のタイミングで発火する。
type fakeAuth struct {
	mu           sync.Mutex
	cb           func(AuthEvent)
	subscribed   int
	unsubscribed int

	// initial が設定されていれば購読時に同期的に通知する
	initial *AuthEvent

	signInFn  func(ctx context.Context, email, password string) (*Session, error)
	signUpFn  func(ctx context.Context, email, password string) (*model.Identity, error)
	signOutFn func(ctx context.Context) error
	oauthFn   func(provider, redirectTo string) (string, error)
}

func (f *fakeAuth) OnAuthStateChange(cb func(AuthEvent)) func() {
	f.mu.Lock()
	f.cb = cb
	f.subscribed++
	initial := f.initial
	f.mu.Unlock()

	if initial != nil {
		cb(*initial)
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cb = nil
		f.unsubscribed++
	}
}

func (f *fakeAuth) emit(ev AuthEvent) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (f *fakeAuth) GetSession(context.Context) (*Session, error) {
	return nil, nil
}

func (f *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if f.signInFn != nil {
		return f.signInFn(ctx, email, password)
	}
	return sessionFor("u1", email), nil
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	if f.signUpFn != nil {
		return f.signUpFn(ctx, email, password)
	}
	return &model.Identity{ID: "new-user", Email: email}, nil
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	if f.signOutFn != nil {
		return f.signOutFn(ctx)
	}
	return nil
}

func (f *fakeAuth) SignInWithOAuth(provider, redirectTo string) (string, error) {
	if f.oauthFn != nil {
		return f.oauthFn(provider, redirectTo)
	}
	return "https://accounts.example.com/auth?redirect=" + redirectTo, nil
}

// fakeData はテスト用のDataProvider。
type fakeData struct {
	fetchProfileFn  func(ctx context.Context, id string) (*model.Profile, error)
	createProfileFn func(ctx context.Context, identity model.Identity, name string) error
	fetchSettingsFn func(ctx context.Context) (*model.AppSettings, error)
}

func (f *fakeData) FetchProfile(ctx context.Context, id string) (*model.Profile, error) {
	if f.fetchProfileFn != nil {
		return f.fetchProfileFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeData) CreateProfile(ctx context.Context, identity model.Identity, name string) error {
	if f.createProfileFn != nil {
		return f.createProfileFn(ctx, identity, name)
	}
	return nil
}

func (f *fakeData) FetchSettings(ctx context.Context) (*model.AppSettings, error) {
	if f.fetchSettingsFn != nil {
		return f.fetchSettingsFn(ctx)
	}
	return nil, nil
}

var (
	_ AuthProvider = (*fakeAuth)(nil)
	_ DataProvider = (*fakeData)(nil)
)

// --- ヘルパー ---

func sessionFor(id, email string) *Session {
	return &Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
		Identity:     model.Identity{ID: id, Email: email},
	}
}

func profileFor(id string, role model.Role) *model.Profile {
	return &model.Profile{ID: id, Name: id, Email: id + "@example.com", Role: role, Active: true}
}

// waitFor はcondがtrueになるまで待つ。
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

// waitDone はチャネルがcloseされるまで待つ。
func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed within 2s")
	}
}
