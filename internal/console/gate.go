package console

import (
	"net/url"
	"slices"
	"strings"

	"github.com/hitoshi/prmconsole/internal/model"
)

// AuthState はuseAuthで公開する認証状態のスナップショット。
// ReadyがfalseのときProfileは常にnil。
type AuthState struct {
	Identity        *model.Identity
	Profile         *model.Profile
	ProfileLoading  bool
	ProfileNotFound bool
	ProfileErr      error
	Ready           bool
}

// GateState は起動ゲートの判定結果。
type GateState int

const (
	GateLoading GateState = iota
	GateReady
)

// Gate はセッションの準備状態のみで判定する。
// 設定に依存する画面はSettingsState.Readyを個別に参照する。
func Gate(auth AuthState) GateState {
	if !auth.Ready {
		return GateLoading
	}
	return GateReady
}

// DecisionKind はルート判定の種別。
type DecisionKind int

const (
	DecisionPending DecisionKind = iota
	DecisionRender
	DecisionRedirect
)

// Decision はルート判定の結果。DecisionRedirectの場合のみToが入る。
type Decision struct {
	Kind DecisionKind
	To   string
	// From はログイン後に戻る元のパス
	From string
}

// Location はリダイレクト先のURLを返す。Fromがあればクエリに含める。
func (d Decision) Location() string {
	if d.From == "" {
		return d.To
	}
	return d.To + "?from=" + url.QueryEscape(d.From)
}

// RouteAuthorizer はIdentityの有無で画面遷移を許可またはリダイレクトする。
type RouteAuthorizer struct {
	LoginPath   string
	SignupPath  string
	HomePath    string
	PublicPaths []string
}

// DefaultRouteAuthorizer はコンソール標準のRouteAuthorizerを返す。
func DefaultRouteAuthorizer() RouteAuthorizer {
	return RouteAuthorizer{
		LoginPath:  "/login",
		SignupPath: "/signup",
		HomePath:   "/dashboard",
	}
}

// Authorize はpathへの遷移を判定する。Ready前はリダイレクトしない。
func (a RouteAuthorizer) Authorize(auth AuthState, path string) Decision {
	if !auth.Ready {
		return Decision{Kind: DecisionPending}
	}

	route, query := splitPath(path)
	signedIn := auth.Identity != nil

	switch {
	case route == "/":
		if signedIn {
			return Decision{Kind: DecisionRedirect, To: a.HomePath}
		}
		return Decision{Kind: DecisionRedirect, To: a.LoginPath}
	case a.isAuthPage(route):
		if signedIn {
			return Decision{Kind: DecisionRedirect, To: a.returnPath(query.Get("from"))}
		}
		return Decision{Kind: DecisionRender}
	case slices.Contains(a.PublicPaths, route):
		return Decision{Kind: DecisionRender}
	case !signedIn:
		return Decision{Kind: DecisionRedirect, To: a.LoginPath, From: path}
	default:
		return Decision{Kind: DecisionRender}
	}
}

func (a RouteAuthorizer) isAuthPage(route string) bool {
	return route == a.LoginPath || (a.SignupPath != "" && route == a.SignupPath)
}

// returnPath はログイン後の戻り先を返す。同一オリジンの相対パス以外はHomePathにする。
func (a RouteAuthorizer) returnPath(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return a.HomePath
	}
	route, _ := splitPath(from)
	if route == "/" || a.isAuthPage(route) {
		return a.HomePath
	}
	return from
}

func splitPath(path string) (string, url.Values) {
	route, rawQuery, _ := strings.Cut(path, "?")
	if route == "" {
		route = "/"
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
	}
	q, _ := url.ParseQuery(rawQuery)
	return route, q
}

// HasAccess はプロフィールのロールが許可されたロールに含まれるかを返す。
func HasAccess(profile *model.Profile, allowed ...model.Role) bool {
	return profile != nil && slices.Contains(allowed, profile.Role)
}

// RoleOutcome はロールゲートの判定結果。
type RoleOutcome int

const (
	// RoleHidden は許可・拒否どちらの内容も表示しない
	RoleHidden RoleOutcome = iota
	RoleGranted
	RoleFallback
)

// RoleGate はプロフィールのロールで表示内容を切り替える。
type RoleGate struct {
	Allowed []model.Role
}

// Evaluate はReady前とプロフィール取得中はRoleHiddenを返す。
func (g RoleGate) Evaluate(auth AuthState) RoleOutcome {
	if !auth.Ready || auth.ProfileLoading {
		return RoleHidden
	}
	if HasAccess(auth.Profile, g.Allowed...) {
		return RoleGranted
	}
	return RoleFallback
}
