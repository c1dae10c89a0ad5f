package console

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/prmconsole/internal/model"
)

// ViewKind は描画する画面の種別。
type ViewKind string

const (
	ViewLoading         ViewKind = "loading"
	ViewRedirect        ViewKind = "redirect"
	ViewLogin           ViewKind = "login"
	ViewSignup          ViewKind = "signup"
	ViewDashboard       ViewKind = "dashboard"
	ViewSettingsForm    ViewKind = "settings_form"
	ViewSettingsLoading ViewKind = "settings_loading"
	ViewAccessDenied    ViewKind = "access_denied"
	ViewAdminUsers      ViewKind = "admin_users"
	ViewProfile         ViewKind = "profile"
	ViewNotifications   ViewKind = "notifications"
	ViewRecords         ViewKind = "records"
	ViewNotFound        ViewKind = "not_found"
)

// View はRenderの結果。
type View struct {
	Kind ViewKind
	Path string

	// ViewRedirect
	RedirectTo string
	From       string

	// ヘッダー表示用
	AppName string
	LogoURL *string

	Identity *model.Identity
	Profile  *model.Profile

	// ViewRecords / ViewNotifications
	Collection model.Collection

	// ViewSettingsForm の現在値と、取得時のエラー（既定値で代替した場合）
	Settings    *model.AppSettings
	SettingsErr error
}

// recordRoutes はレコード一覧画面のパスとコレクションの対応。
var recordRoutes = map[string]model.Collection{
	"/partners":  model.CollectionPartners,
	"/vendors":   model.CollectionVendors,
	"/products":  model.CollectionProducts,
	"/deals":     model.CollectionDeals,
	"/marketing": model.CollectionMarketingCampaigns,
	"/training":  model.CollectionTrainingPrograms,
}

// adminOnly は管理者のみ表示できる画面。
var adminOnly = RoleGate{Allowed: []model.Role{model.RoleAdmin}}

// Options はConsoleの挙動を制御する。
type Options struct {
	AuthReadyTimeout     time.Duration
	SettingsFetchTimeout time.Duration
	// Authorizer が空の場合はDefaultRouteAuthorizerを使う
	Authorizer RouteAuthorizer
}

// ActionState は操作元ローカルの実行中表示。
type ActionState struct {
	SigningIn  bool
	SigningUp  bool
	SigningOut bool
}

// Console はセッション・プロフィール・設定の各ローダーをまとめ、
// 画面ごとの表示内容を決める。
type Console struct {
	store      *SessionStore
	profiles   *ProfileLoader
	settings   *SettingsLoader
	authorizer RouteAuthorizer

	signIn  Action
	signUp  Action
	signOut Action

	mu        sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	detach    []func()
	listeners listeners[struct{}]
}

// New はConsoleを生成する。Startを呼ぶまで何も取得しない。
func New(auth AuthProvider, data DataProvider, opts Options) *Console {
	authorizer := opts.Authorizer
	if authorizer.LoginPath == "" {
		authorizer = DefaultRouteAuthorizer()
	}
	c := &Console{
		store:      NewSessionStore(auth, data, opts.AuthReadyTimeout),
		profiles:   NewProfileLoader(data),
		settings:   NewSettingsLoader(data, opts.SettingsFetchTimeout),
		authorizer: authorizer,
	}
	c.detach = []func(){
		c.store.Subscribe(func(*Session) { c.listeners.emit(struct{}{}) }),
		c.profiles.Subscribe(func(ProfileState) { c.listeners.emit(struct{}{}) }),
		c.settings.Subscribe(func(SettingsState) { c.listeners.emit(struct{}{}) }),
	}
	return c
}

// Start はセッションの購読、プロフィールの追従、設定の取得を開始する。
func (c *Console) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	untrack := c.profiles.Track(c.store)
	c.mu.Lock()
	c.detach = append(c.detach, untrack)
	c.mu.Unlock()

	c.store.Start()
	c.settings.Load(ctx)
}

// UseAuth は認証状態のスナップショットを返す。
func (c *Console) UseAuth() AuthState {
	if !c.store.Ready() {
		return AuthState{}
	}
	state := AuthState{Ready: true}

	identity := c.store.Identity()
	if identity == nil {
		return state
	}
	state.Identity = identity

	ps := c.profiles.Snapshot()
	// 別のIdentityの結果は現在のものとして扱わない
	if ps.IdentityID != identity.ID || ps.Loading {
		state.ProfileLoading = true
		return state
	}
	switch ps.Result.Kind {
	case ProfileOk:
		state.Profile = ps.Result.Profile
	case ProfileNotFound:
		state.ProfileNotFound = true
	case ProfileFailed:
		state.ProfileErr = ps.Result.Err
	default:
		state.ProfileLoading = true
	}
	return state
}

// UseSettings は設定のスナップショットを返す。
func (c *Console) UseSettings() SettingsState {
	return c.settings.Snapshot()
}

// Ready はセッションの準備ができているかを返す。
func (c *Console) Ready() bool {
	return c.store.Ready()
}

// WaitReady はセッションの準備ができるまで待つ。
func (c *Console) WaitReady(ctx context.Context) error {
	return c.store.WaitReady(ctx)
}

// Session は現在のセッションを返す。
func (c *Console) Session() *Session {
	return c.store.GetSession()
}

// Render はpathに対して表示する画面を決める。
func (c *Console) Render(path string) View {
	auth := c.UseAuth()
	settings := c.UseSettings()

	v := View{Path: path, AppName: model.DefaultAppName}
	if settings.Settings != nil {
		v.AppName = settings.Settings.AppName
		v.LogoURL = settings.Settings.LogoURL
	}

	if Gate(auth) == GateLoading {
		v.Kind = ViewLoading
		return v
	}
	v.Identity = auth.Identity
	v.Profile = auth.Profile

	route, _ := splitPath(path)
	if !c.knownRoute(route) {
		v.Kind = ViewNotFound
		return v
	}

	d := c.authorizer.Authorize(auth, path)
	switch d.Kind {
	case DecisionPending:
		v.Kind = ViewLoading
		return v
	case DecisionRedirect:
		v.Kind = ViewRedirect
		v.RedirectTo = d.To
		v.From = d.From
		return v
	}

	switch {
	case route == c.authorizer.LoginPath:
		v.Kind = ViewLogin
	case route == c.authorizer.SignupPath:
		v.Kind = ViewSignup
	case route == "/dashboard":
		v.Kind = ViewDashboard
	case route == "/settings":
		v.Kind = c.renderSettings(auth, settings, &v)
	case route == "/admin/users":
		v.Kind = roleView(adminOnly.Evaluate(auth), ViewAdminUsers)
	case route == "/profile":
		v.Kind = ViewProfile
	case route == "/notifications":
		v.Kind = ViewNotifications
		v.Collection = model.CollectionNotifications
	default:
		v.Kind = ViewRecords
		v.Collection = recordRoutes[route]
	}
	return v
}

func (c *Console) renderSettings(auth AuthState, settings SettingsState, v *View) ViewKind {
	kind := roleView(adminOnly.Evaluate(auth), ViewSettingsForm)
	if kind != ViewSettingsForm {
		return kind
	}
	if !settings.Ready {
		return ViewSettingsLoading
	}
	v.Settings = settings.Settings
	v.SettingsErr = settings.Err
	return ViewSettingsForm
}

func roleView(outcome RoleOutcome, granted ViewKind) ViewKind {
	switch outcome {
	case RoleGranted:
		return granted
	case RoleFallback:
		return ViewAccessDenied
	default:
		return ViewLoading
	}
}

func (c *Console) knownRoute(route string) bool {
	switch route {
	case "/", "/dashboard", "/settings", "/admin/users", "/profile", "/notifications",
		c.authorizer.LoginPath, c.authorizer.SignupPath:
		return true
	}
	_, ok := recordRoutes[route]
	return ok
}

// SignIn はサインインする。同時に1つだけ実行できる。
func (c *Console) SignIn(ctx context.Context, email, password string) error {
	return c.signIn.Run(func() error {
		return c.store.SignIn(ctx, email, password)
	})
}

// SignUp はアカウントとプロフィールを作成する。
func (c *Console) SignUp(ctx context.Context, email, password, name string) (*model.Identity, error) {
	var identity *model.Identity
	err := c.signUp.Run(func() error {
		var err error
		identity, err = c.store.SignUp(ctx, email, password, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	// サインイン通知の時点ではプロフィールが未作成の場合があるため取得し直す
	if cur := c.store.Identity(); cur != nil && cur.ID == identity.ID {
		c.profiles.Reload(identity.ID)
	}
	return identity, nil
}

// SignOut はサインアウトする。
func (c *Console) SignOut(ctx context.Context) error {
	return c.signOut.Run(func() error {
		return c.store.SignOut(ctx)
	})
}

// SignInWithOAuth は外部IdPのログインURLを返す。
func (c *Console) SignInWithOAuth(provider, redirectTo string) (string, error) {
	return c.store.SignInWithOAuth(provider, redirectTo)
}

// Actions は各操作の実行中状態を返す。
func (c *Console) Actions() ActionState {
	return ActionState{
		SigningIn:  c.signIn.InFlight(),
		SigningUp:  c.signUp.InFlight(),
		SigningOut: c.signOut.InFlight(),
	}
}

// Subscribe は状態が変わるたびに呼ばれる関数を登録し、解除関数を返す。
func (c *Console) Subscribe(fn func()) func() {
	return c.listeners.add(func(struct{}) { fn() })
}

// Close はすべての購読と取得中の処理を止める。
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	c.store.Close()
	c.profiles.Close()
	c.settings.Close()
	if cancel != nil {
		cancel()
	}
	c.listeners.clear()
}
