package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/prmconsole/internal/model"
	"github.com/hitoshi/prmconsole/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn                  func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn               func(ctx context.Context, email string) (*model.User, error)
	findPasswordHashFn          func(ctx context.Context, userID string) (string, error)
	createWithPasswordFn        func(ctx context.Context, user *model.User, hash string) error
	createWithExternalAccountFn func(ctx context.Context, user *model.User, account *model.ExternalAccount) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindPasswordHash(ctx context.Context, userID string) (string, error) {
	if m.findPasswordHashFn != nil {
		return m.findPasswordHashFn(ctx, userID)
	}
	return "", nil
}

func (m *mockUserRepo) CreateWithPassword(ctx context.Context, user *model.User, hash string) error {
	if m.createWithPasswordFn != nil {
		return m.createWithPasswordFn(ctx, user, hash)
	}
	return nil
}

func (m *mockUserRepo) CreateWithExternalAccount(ctx context.Context, user *model.User, account *model.ExternalAccount) error {
	if m.createWithExternalAccountFn != nil {
		return m.createWithExternalAccountFn(ctx, user, account)
	}
	return nil
}

type mockAccountRepo struct {
	findFn func(ctx context.Context, provider, providerUserID string) (*model.ExternalAccount, error)
}

func (m *mockAccountRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.ExternalAccount, error) {
	if m.findFn != nil {
		return m.findFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

// memSessionRepo はテスト用のインメモリSessionRepository。
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	now      func() time.Time
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*model.Session{}, now: time.Now}
}

func (m *memSessionRepo) Create(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Expired(m.now()) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) Extend(_ context.Context, id string, expiresAt time.Time) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Expired(m.now()) {
		return nil, nil
	}
	s.ExpiresAt = expiresAt
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memSessionRepo) DeleteExpiredBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type mockProfileStore struct {
	createFn  func(ctx context.Context, identity *model.Identity, name string, role model.Role) (*model.Profile, error)
	calls     []model.Role
	disabled  map[string]bool
	activeErr error
}

func (m *mockProfileStore) IsActive(_ context.Context, id string) (bool, error) {
	if m.activeErr != nil {
		return false, m.activeErr
	}
	return !m.disabled[id], nil
}

func (m *mockProfileStore) Create(ctx context.Context, identity *model.Identity, name string, role model.Role) (*model.Profile, error) {
	m.calls = append(m.calls, role)
	if m.createFn != nil {
		return m.createFn(ctx, identity, name, role)
	}
	return &model.Profile{ID: identity.ID, Role: role}, nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// plainHasher はテスト高速化のための可逆な疑似ハッシュ。
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "plain:" + pw, nil }
func (plainHasher) Verify(pw, encoded string) (bool, error) {
	return encoded == "plain:"+pw, nil
}

type mockMetrics struct {
	signIn, signUp   map[string]int
	profileFailCount int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{signIn: map[string]int{}, signUp: map[string]int{}}
}

func (m *mockMetrics) RecordSignIn(r string)              { m.signIn[r]++ }
func (m *mockMetrics) RecordSignUp(r string)              { m.signUp[r]++ }
func (m *mockMetrics) RecordProfileCreateFailure()        { m.profileFailCount++ }
func (m *mockMetrics) RecordHTTPStatus(int)               {}
func (m *mockMetrics) RecordRequestLatency(time.Duration) {}
func (m *mockMetrics) RecordRateLimited(string)           {}
func (m *mockMetrics) RecordSessionsPurged(int)           {}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.ExternalAccountRepository = (*mockAccountRepo)(nil)
var _ repository.SessionRepository = (*memSessionRepo)(nil)
var _ ProfileStore = (*mockProfileStore)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

// --- ヘルパー ---

type testDeps struct {
	users    *mockUserRepo
	accounts *mockAccountRepo
	sessions *memSessionRepo
	profiles *mockProfileStore
	metrics  *mockMetrics
	oauth    OAuthProvider
}

func newTestService(d *testDeps) *Service {
	if d.users == nil {
		d.users = &mockUserRepo{}
	}
	if d.accounts == nil {
		d.accounts = &mockAccountRepo{}
	}
	if d.sessions == nil {
		d.sessions = newMemSessionRepo()
	}
	if d.profiles == nil {
		d.profiles = &mockProfileStore{}
	}
	if d.metrics == nil {
		d.metrics = newMockMetrics()
	}
	return NewService(d.oauth, d.users, d.accounts, d.sessions, d.profiles, plainHasher{},
		NewTokenIssuer("test-secret", 15*time.Minute), d.metrics,
		ServiceConfig{SessionMaxAge: 24 * time.Hour, AdminEmails: []string{"boss@example.com"}})
}

func apiCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// --- SignUp ---

func TestSignUp_CreatesUserProfileAndSession(t *testing.T) {
	var storedHash string
	d := &testDeps{users: &mockUserRepo{
		createWithPasswordFn: func(_ context.Context, _ *model.User, hash string) error {
			storedHash = hash
			return nil
		},
	}}
	svc := newTestService(d)

	res, err := svc.SignUp(context.Background(), "new@example.com", "password123", "New")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Identity.Email != "new@example.com" || res.Session == nil || res.AccessToken == "" {
		t.Errorf("unexpected result: %+v", res)
	}
	if storedHash != "plain:password123" {
		t.Errorf("stored hash = %q", storedHash)
	}
	if len(d.profiles.calls) != 1 || d.profiles.calls[0] != model.RoleUser {
		t.Errorf("profile calls = %v, want [user]", d.profiles.calls)
	}
	if d.metrics.signUp["success"] != 1 {
		t.Errorf("sign_up success = %d", d.metrics.signUp["success"])
	}
}

func TestSignUp_AdminEmailGetsAdminRole(t *testing.T) {
	d := &testDeps{}
	svc := newTestService(d)

	if _, err := svc.SignUp(context.Background(), "Boss@Example.com", "password123", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.profiles.calls) != 1 || d.profiles.calls[0] != model.RoleAdmin {
		t.Errorf("profile calls = %v, want [admin]", d.profiles.calls)
	}
}

// プロフィール作成に失敗してもサインアップは成功し、ロールバックしない
func TestSignUp_ProfileFailureIsBestEffort(t *testing.T) {
	d := &testDeps{profiles: &mockProfileStore{
		createFn: func(context.Context, *model.Identity, string, model.Role) (*model.Profile, error) {
			return nil, errors.New("db down")
		},
	}}
	svc := newTestService(d)

	res, err := svc.SignUp(context.Background(), "x@example.com", "password123", "X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Session == nil {
		t.Fatal("expected a session despite profile failure")
	}
	if d.metrics.profileFailCount != 1 {
		t.Errorf("profile fail count = %d, want 1", d.metrics.profileFailCount)
	}
}

func TestSignUp_Validation(t *testing.T) {
	svc := newTestService(&testDeps{})

	tests := []struct {
		email, password, code string
	}{
		{"no-at-sign", "password123", model.ErrCodeInvalidEmail},
		{"@example.com", "password123", model.ErrCodeInvalidEmail},
		{"a@", "password123", model.ErrCodeInvalidEmail},
		{"a@example.com", "short", model.ErrCodeWeakPassword},
	}
	for _, tt := range tests {
		_, err := svc.SignUp(context.Background(), tt.email, tt.password, "")
		if apiCode(err) != tt.code {
			t.Errorf("SignUp(%q, %q) err = %v, want %s", tt.email, tt.password, err, tt.code)
		}
	}
}

func TestSignUp_EmailTaken(t *testing.T) {
	svc := newTestService(&testDeps{users: &mockUserRepo{
		findByEmailFn: func(context.Context, string) (*model.User, error) {
			return &model.User{ID: "u1"}, nil
		},
	}})

	_, err := svc.SignUp(context.Background(), "taken@example.com", "password123", "")
	if apiCode(err) != model.ErrCodeEmailTaken {
		t.Errorf("err = %v, want EMAIL_TAKEN", err)
	}
}

// 同時登録でDBの一意制約に当たった場合もEMAIL_TAKENになる
func TestSignUp_DuplicateOnInsert(t *testing.T) {
	svc := newTestService(&testDeps{users: &mockUserRepo{
		createWithPasswordFn: func(context.Context, *model.User, string) error {
			return repository.ErrDuplicateEmail
		},
	}})

	_, err := svc.SignUp(context.Background(), "race@example.com", "password123", "")
	if apiCode(err) != model.ErrCodeEmailTaken {
		t.Errorf("err = %v, want EMAIL_TAKEN", err)
	}
}

// --- SignIn ---

func signInUsers(hash string) *mockUserRepo {
	return &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == "alice@example.com" {
				return &model.User{ID: "u-alice", Email: email}, nil
			}
			return nil, nil
		},
		findPasswordHashFn: func(context.Context, string) (string, error) {
			return hash, nil
		},
	}
}

func TestSignIn_Success(t *testing.T) {
	d := &testDeps{users: signInUsers("plain:secret123")}
	svc := newTestService(d)

	res, err := svc.SignIn(context.Background(), "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Identity.ID != "u-alice" {
		t.Errorf("identity = %+v", res.Identity)
	}
	userID, err := svc.VerifyAccessToken(res.AccessToken)
	if err != nil || userID != "u-alice" {
		t.Errorf("VerifyAccessToken = %q, %v", userID, err)
	}
	uid, sid, err := svc.ParseAccessToken(res.AccessToken)
	if err != nil || uid != "u-alice" || sid != res.Session.ID {
		t.Errorf("ParseAccessToken = %q, %q, %v (session %q)", uid, sid, err, res.Session.ID)
	}
	if d.metrics.signIn["success"] != 1 {
		t.Errorf("sign_in success = %d", d.metrics.signIn["success"])
	}
}

func TestSignIn_FailuresAreIndistinguishable(t *testing.T) {
	tests := []struct {
		name  string
		email string
		pw    string
		hash  string
	}{
		{"未登録", "nobody@example.com", "secret123", "plain:secret123"},
		{"パスワード不一致", "alice@example.com", "wrong", "plain:secret123"},
		{"OAuthのみ", "alice@example.com", "secret123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &testDeps{users: signInUsers(tt.hash)}
			svc := newTestService(d)
			_, err := svc.SignIn(context.Background(), tt.email, tt.pw)
			if apiCode(err) != model.ErrCodeInvalidCredentials {
				t.Errorf("err = %v, want INVALID_CREDENTIALS", err)
			}
			if d.metrics.signIn["failure"] != 1 {
				t.Errorf("sign_in failure = %d", d.metrics.signIn["failure"])
			}
		})
	}
}

func TestSignIn_RepositoryError(t *testing.T) {
	svc := newTestService(&testDeps{users: &mockUserRepo{
		findByEmailFn: func(context.Context, string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}})
	_, err := svc.SignIn(context.Background(), "alice@example.com", "x")
	if err == nil || apiCode(err) != "" {
		t.Errorf("err = %v, want internal error", err)
	}
}

// 無効化されたユーザーはセッションを削除された後もサインインし直せない
func TestSignIn_DisabledAccount(t *testing.T) {
	users := signInUsers("plain:secret123")
	users.findByIDFn = func(_ context.Context, id string) (*model.User, error) {
		return &model.User{ID: id, Email: "alice@example.com"}, nil
	}
	d := &testDeps{users: users, profiles: &mockProfileStore{}}
	svc := newTestService(d)
	ctx := context.Background()

	res, err := svc.SignIn(ctx, "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	// 管理者による無効化: プロフィールを無効にしてセッションを全削除する
	d.profiles.disabled = map[string]bool{"u-alice": true}
	if err := d.sessions.DeleteByUserID(ctx, "u-alice"); err != nil {
		t.Fatal(err)
	}

	again, err := svc.SignIn(ctx, "alice@example.com", "secret123")
	if apiCode(err) != model.ErrCodeAccountDisabled {
		t.Fatalf("SignIn after disable = %+v, %v, want ACCOUNT_DISABLED", again, err)
	}
	if d.metrics.signIn["failure"] != 1 {
		t.Errorf("sign_in failure = %d, want 1", d.metrics.signIn["failure"])
	}
	if n := d.sessions.count(); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
	if _, err := svc.Refresh(ctx, res.Session.ID); apiCode(err) != model.ErrCodeInvalidToken {
		t.Errorf("Refresh of deleted session = %v, want INVALID_TOKEN", err)
	}
}

func TestRefresh_DisabledAccountRevokesSession(t *testing.T) {
	users := signInUsers("plain:secret123")
	users.findByIDFn = func(_ context.Context, id string) (*model.User, error) {
		return &model.User{ID: id, Email: "alice@example.com"}, nil
	}
	d := &testDeps{users: users, profiles: &mockProfileStore{}}
	svc := newTestService(d)
	ctx := context.Background()

	res, err := svc.SignIn(ctx, "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	d.profiles.disabled = map[string]bool{"u-alice": true}

	if _, err := svc.Refresh(ctx, res.Session.ID); apiCode(err) != model.ErrCodeAccountDisabled {
		t.Fatalf("Refresh = %v, want ACCOUNT_DISABLED", err)
	}
	if session, _, _ := svc.GetSession(ctx, res.Session.ID); session != nil {
		t.Error("無効化されたユーザーのセッションが残っている")
	}
}

func TestSignIn_ActiveCheckError(t *testing.T) {
	d := &testDeps{
		users:    signInUsers("plain:secret123"),
		profiles: &mockProfileStore{activeErr: errors.New("connection refused")},
	}
	svc := newTestService(d)

	_, err := svc.SignIn(context.Background(), "alice@example.com", "secret123")
	if err == nil || apiCode(err) != "" {
		t.Errorf("err = %v, want internal error", err)
	}
	if d.sessions.count() != 0 {
		t.Error("確認に失敗した場合はセッションを発行してはいけない")
	}
}

// --- Session lifecycle ---

func TestGetSession_RefreshAndSignOut(t *testing.T) {
	users := signInUsers("plain:secret123")
	users.findByIDFn = func(_ context.Context, id string) (*model.User, error) {
		return &model.User{ID: id, Email: "alice@example.com"}, nil
	}
	d := &testDeps{users: users}
	svc := newTestService(d)
	ctx := context.Background()

	res, err := svc.SignIn(ctx, "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	session, identity, err := svc.GetSession(ctx, res.Session.ID)
	if err != nil || session == nil || identity.ID != "u-alice" {
		t.Fatalf("GetSession = %+v, %+v, %v", session, identity, err)
	}

	refreshed, err := svc.Refresh(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.Session.ID != res.Session.ID || refreshed.AccessToken == "" {
		t.Errorf("refreshed = %+v", refreshed)
	}

	if err := svc.SignOut(ctx, res.Session.ID); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	session, identity, err = svc.GetSession(ctx, res.Session.ID)
	if err != nil || session != nil || identity != nil {
		t.Errorf("GetSession after sign-out = %+v, %+v, %v", session, identity, err)
	}

	if _, err := svc.Refresh(ctx, res.Session.ID); apiCode(err) != model.ErrCodeInvalidToken {
		t.Errorf("Refresh after sign-out err = %v, want INVALID_TOKEN", err)
	}
}

func TestGetSession_EmptyID(t *testing.T) {
	svc := newTestService(&testDeps{})
	s, i, err := svc.GetSession(context.Background(), "")
	if s != nil || i != nil || err != nil {
		t.Errorf("GetSession(\"\") = %v, %v, %v", s, i, err)
	}
}

func TestSignOut_EmptyID(t *testing.T) {
	svc := newTestService(&testDeps{})
	if err := svc.SignOut(context.Background(), ""); err == nil {
		t.Error("expected error for empty session ID")
	}
}

func TestVerifyAccessToken_RejectsGarbage(t *testing.T) {
	svc := newTestService(&testDeps{})
	if _, err := svc.VerifyAccessToken("not-a-jwt"); err == nil {
		t.Error("expected error")
	}
}

// --- OAuth ---

func TestGetLoginURL_Disabled(t *testing.T) {
	svc := newTestService(&testDeps{})
	if svc.OAuthEnabled() {
		t.Error("OAuthEnabled() = true without provider")
	}
	if _, err := svc.GetLoginURL("state"); apiCode(err) != model.ErrCodeOAuthDisabled {
		t.Errorf("err = %v, want OAUTH_DISABLED", err)
	}
	if _, err := svc.HandleCallback(context.Background(), "code"); apiCode(err) != model.ErrCodeOAuthDisabled {
		t.Errorf("err = %v, want OAUTH_DISABLED", err)
	}
}

func TestGetLoginURL_DelegatesToProvider(t *testing.T) {
	svc := newTestService(&testDeps{oauth: &mockOAuthProvider{
		getLoginURLFn: func(state string) string { return "https://idp/auth?state=" + state },
	}})
	url, err := svc.GetLoginURL("abc")
	if err != nil || !strings.HasSuffix(url, "state=abc") {
		t.Errorf("GetLoginURL = %q, %v", url, err)
	}
}

func googleUser() *mockOAuthProvider {
	return &mockOAuthProvider{
		exchangeCodeFn: func(context.Context, string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{ProviderUserID: "g-1", Email: "g@example.com", Name: "G", Provider: "google"}, nil
		},
	}
}

func TestHandleCallback_NewUser(t *testing.T) {
	var created *model.ExternalAccount
	d := &testDeps{
		oauth: googleUser(),
		users: &mockUserRepo{
			createWithExternalAccountFn: func(_ context.Context, _ *model.User, a *model.ExternalAccount) error {
				created = a
				return nil
			},
		},
	}
	svc := newTestService(d)

	res, err := svc.HandleCallback(context.Background(), "code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil || created.ProviderUserID != "g-1" || created.UserID != res.Identity.ID {
		t.Errorf("external account = %+v", created)
	}
	if len(d.profiles.calls) != 1 {
		t.Errorf("profile calls = %v, want 1", d.profiles.calls)
	}
}

func TestHandleCallback_ExistingAccount(t *testing.T) {
	d := &testDeps{
		oauth: googleUser(),
		accounts: &mockAccountRepo{findFn: func(context.Context, string, string) (*model.ExternalAccount, error) {
			return &model.ExternalAccount{UserID: "u-g"}, nil
		}},
		users: &mockUserRepo{
			findByIDFn: func(_ context.Context, id string) (*model.User, error) {
				return &model.User{ID: id, Email: "g@example.com"}, nil
			},
			createWithExternalAccountFn: func(context.Context, *model.User, *model.ExternalAccount) error {
				t.Error("must not create user for existing account")
				return nil
			},
		},
	}
	svc := newTestService(d)

	res, err := svc.HandleCallback(context.Background(), "code")
	if err != nil || res.Identity.ID != "u-g" {
		t.Fatalf("HandleCallback = %+v, %v", res, err)
	}
	if len(d.profiles.calls) != 0 {
		t.Errorf("profile must not be created for existing account")
	}
}

func TestHandleCallback_DisabledAccount(t *testing.T) {
	d := &testDeps{
		oauth: googleUser(),
		accounts: &mockAccountRepo{findFn: func(context.Context, string, string) (*model.ExternalAccount, error) {
			return &model.ExternalAccount{UserID: "u-g"}, nil
		}},
		users: &mockUserRepo{
			findByIDFn: func(_ context.Context, id string) (*model.User, error) {
				return &model.User{ID: id, Email: "g@example.com"}, nil
			},
		},
		profiles: &mockProfileStore{disabled: map[string]bool{"u-g": true}},
	}
	svc := newTestService(d)

	res, err := svc.HandleCallback(context.Background(), "code")
	if apiCode(err) != model.ErrCodeAccountDisabled {
		t.Fatalf("HandleCallback = %+v, %v, want ACCOUNT_DISABLED", res, err)
	}
	if d.sessions.count() != 0 {
		t.Errorf("sessions = %d, want 0", d.sessions.count())
	}
}

// パスワードアカウントと同じメールのGoogleアカウントは自動紐付けしない
func TestHandleCallback_EmailOwnedByPasswordAccount(t *testing.T) {
	svc := newTestService(&testDeps{
		oauth: googleUser(),
		users: &mockUserRepo{findByEmailFn: func(context.Context, string) (*model.User, error) {
			return &model.User{ID: "u-pw"}, nil
		}},
	})
	if _, err := svc.HandleCallback(context.Background(), "code"); apiCode(err) != model.ErrCodeEmailTaken {
		t.Errorf("err = %v, want EMAIL_TAKEN", err)
	}
}

func TestHandleCallback_ExchangeError(t *testing.T) {
	svc := newTestService(&testDeps{oauth: &mockOAuthProvider{
		exchangeCodeFn: func(context.Context, string) (*OAuthUserInfo, error) {
			return nil, errors.New("bad code")
		},
	}})
	if _, err := svc.HandleCallback(context.Background(), "code"); err == nil {
		t.Error("expected error")
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("  ", "jane@example.com"); got != "jane" {
		t.Errorf("displayName = %q, want jane", got)
	}
	if got := displayName("Jane", "jane@example.com"); got != "Jane" {
		t.Errorf("displayName = %q, want Jane", got)
	}
}

func TestGenerateSessionID_UniqueHex(t *testing.T) {
	a, _ := generateSessionID()
	b, _ := generateSessionID()
	if len(a) != 64 || a == b {
		t.Errorf("session IDs = %q, %q", a, b)
	}
}
