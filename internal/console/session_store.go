package console

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/prmconsole/internal/model"
)

// DefaultAuthReadyTimeout は最初の認証コールバックを待つ上限の既定値。
const DefaultAuthReadyTimeout = 3 * time.Second

// SessionStore は現在のセッションを保持し、プロバイダーの認証状態変化を購読する。
//
// Readinessは最初のコールバック、またはフォールバックタイマーでのみtrueになり、
// 以降falseに戻ることはない。サインイン・サインアウトはReadinessに触れない。
type SessionStore struct {
	auth         AuthProvider
	data         DataProvider
	readyTimeout time.Duration

	mu          sync.Mutex
	session     *Session
	ready       bool
	readyErr    error
	readyCh     chan struct{}
	timer       *time.Timer
	unsubscribe func()
	started     bool
	closed      bool

	// 通知順序をイベント発生順に保つ
	notifyMu sync.Mutex
	subs     listeners[*Session]
}

// NewSessionStore はSessionStoreを生成する。Startを呼ぶまで購読は開始しない。
func NewSessionStore(auth AuthProvider, data DataProvider, readyTimeout time.Duration) *SessionStore {
	if readyTimeout <= 0 {
		readyTimeout = DefaultAuthReadyTimeout
	}
	return &SessionStore{
		auth:         auth,
		data:         data,
		readyTimeout: readyTimeout,
		readyCh:      make(chan struct{}),
	}
}

// Start はフォールバックタイマーを起動し、プロバイダーの認証状態変化を購読する。
// 2回目以降の呼び出しは何もしない。
func (s *SessionStore) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.timer = time.AfterFunc(s.readyTimeout, s.fallback)
	s.mu.Unlock()

	// プロバイダーは購読中に同期的にコールバックすることがあるため、ロック外で呼ぶ
	unsubscribe := s.auth.OnAuthStateChange(s.handleEvent)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// GetSession は最後に判明したセッションを返す。未ログインならnil。
func (s *SessionStore) GetSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// Identity は現在のセッションから導出したIdentityを返す。
func (s *SessionStore) Identity() *model.Identity {
	sess := s.GetSession()
	if sess == nil {
		return nil
	}
	id := sess.Identity
	return &id
}

// Subscribe はセッション変化の通知先を登録し、解除関数を返す。
// コールバックは通知のたびに同期的に呼ばれるため、ブロックしてはならない。
func (s *SessionStore) Subscribe(fn func(*Session)) func() {
	return s.subs.add(fn)
}

// Ready は最初の認証状態が確定したかどうかを返す。
func (s *SessionStore) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ReadyErr はフォールバックでReadyになった場合の*TimeoutErrorを返す。
func (s *SessionStore) ReadyErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyErr
}

// WaitReady はReadyになるかctxが終了するまで待つ。
func (s *SessionStore) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignIn はメールアドレスとパスワードでサインインする。
// セッションの反映は購読コールバック経由で行う。
func (s *SessionStore) SignIn(ctx context.Context, email, password string) (err error) {
	defer recoverAuthPanic("sign_in", &err)
	if _, err := s.auth.SignInWithPassword(ctx, email, password); err != nil {
		return &AuthError{Op: "sign_in", Err: err}
	}
	return nil
}

// SignUp はアカウントを作成し、続けてプロフィールを作成する。
// プロフィール作成の失敗はログに記録するだけでアカウントは残す。
func (s *SessionStore) SignUp(ctx context.Context, email, password, name string) (identity *model.Identity, err error) {
	defer recoverAuthPanic("sign_up", &err)
	identity, err = s.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, &AuthError{Op: "sign_up", Err: err}
	}
	if identity == nil {
		return nil, &AuthError{Op: "sign_up", Err: fmt.Errorf("provider returned no identity")}
	}

	if perr := s.createProfile(ctx, *identity, name); perr != nil {
		slog.Error("profile creation failed after sign-up",
			slog.String("user_id", identity.ID),
			slog.String("error", perr.Error()),
		)
	}
	return identity, nil
}

func (s *SessionStore) createProfile(ctx context.Context, identity model.Identity, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return s.data.CreateProfile(ctx, identity, name)
}

// SignOut はサインアウトする。
func (s *SessionStore) SignOut(ctx context.Context) (err error) {
	defer recoverAuthPanic("sign_out", &err)
	if err := s.auth.SignOut(ctx); err != nil {
		return &AuthError{Op: "sign_out", Err: err}
	}
	return nil
}

// SignInWithOAuth は外部IdPのログインURLを返す。
func (s *SessionStore) SignInWithOAuth(provider, redirectTo string) (url string, err error) {
	defer recoverAuthPanic("sign_in_oauth", &err)
	url, err = s.auth.SignInWithOAuth(provider, redirectTo)
	if err != nil {
		return "", &AuthError{Op: "sign_in_oauth", Err: err}
	}
	return url, nil
}

// Close は購読とタイマーを解除する。以降のコールバックは無視される。
func (s *SessionStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.subs.clear()
}

func (s *SessionStore) handleEvent(ev AuthEvent) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	sess := ev.Session
	if ev.Type == EventSignedOut {
		sess = nil
	}
	if sess != nil {
		cp := *sess
		sess = &cp
	}
	s.session = sess
	if !s.ready {
		s.markReadyLocked(nil)
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	s.mu.Unlock()

	slog.Debug("auth state changed",
		slog.String("event", string(ev.Type)),
		slog.Bool("signed_in", sess != nil),
	)
	s.subs.emit(s.GetSession())
}

func (s *SessionStore) fallback() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.ready || s.closed {
		s.mu.Unlock()
		return
	}
	terr := &TimeoutError{Op: "auth_state", After: s.readyTimeout}
	s.markReadyLocked(terr)
	s.mu.Unlock()

	slog.Warn("no auth state callback received, continuing as signed out",
		slog.String("error", terr.Error()),
	)
	s.subs.emit(nil)
}

func (s *SessionStore) markReadyLocked(err error) {
	s.ready = true
	s.readyErr = err
	close(s.readyCh)
}

func recoverAuthPanic(op string, err *error) {
	if r := recover(); r != nil {
		*err = &AuthError{Op: op, Err: fmt.Errorf("provider panic: %v", r)}
	}
}
