package model

import "time"

// DefaultAppName は設定レコードが取得できない場合のアプリケーション名。
const DefaultAppName = "Default App Name"

// DefaultSettingsID は既定の設定（未保存）を表すID。
const DefaultSettingsID = "default"

// AppSettings はユーザーに依存しないシングルトンの全体設定。
type AppSettings struct {
	ID        string    `json:"id"`
	AppName   string    `json:"app_name"`
	LogoURL   *string   `json:"logo_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultAppSettings は取得失敗・タイムアウト・未登録時に使う既定の設定を返す。
// 呼び出しごとに新しい値を返すため、呼び出し側で変更してよい。
func DefaultAppSettings() *AppSettings {
	return &AppSettings{
		ID:      DefaultSettingsID,
		AppName: DefaultAppName,
	}
}

// IsDefault は保存されていない既定の設定かどうかを返す。
func (s *AppSettings) IsDefault() bool {
	return s == nil || s.ID == DefaultSettingsID
}
