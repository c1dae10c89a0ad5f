// Package model はドメインモデルを定義する。
package model

import "time"

// User はコンソールの利用者アカウントを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity はセッションから導出される最小限のユーザー参照。
// セッションが存在する間だけ存在し、独立したライフサイクルを持たない。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ExternalAccount は外部IdPとの紐付け情報を表す。
type ExternalAccount struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はサーバー側のログインセッションを表す。
// IDはリフレッシュトークンとしてクライアントにも渡される。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが指定時刻時点で期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
