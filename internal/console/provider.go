// Package console はPRMコンソールの起動シーケンス
// （セッション復元、プロフィール取得、設定取得、画面のゲート判定）を提供する。
package console

import (
	"context"
	"time"

	"github.com/hitoshi/prmconsole/internal/model"
)

// AuthEventType は認証状態変化イベントの種別。
type AuthEventType string

const (
	EventInitialSession AuthEventType = "INITIAL_SESSION"
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventType = "USER_UPDATED"
)

// Session はプロバイダーが発行したセッションのクライアント側コピー。
type Session struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Identity     model.Identity `json:"identity"`
}

// AuthEvent は認証状態の変化を表す。Sessionがnilなら未ログイン。
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}

// AuthProvider は外部の認証プロバイダー。
// OnAuthStateChangeは購読直後に少なくとも1回INITIAL_SESSIONを通知する。
type AuthProvider interface {
	OnAuthStateChange(cb func(AuthEvent)) (unsubscribe func())
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)
	SignOut(ctx context.Context) error
	SignInWithOAuth(provider, redirectTo string) (string, error)
}

// DataProvider は外部のデータストア。
type DataProvider interface {
	// FetchProfile は存在しない場合 nil, nil を返す
	FetchProfile(ctx context.Context, id string) (*model.Profile, error)
	CreateProfile(ctx context.Context, identity model.Identity, name string) error
	// FetchSettings は行がない場合 nil, nil を返す
	FetchSettings(ctx context.Context) (*model.AppSettings, error)
}
