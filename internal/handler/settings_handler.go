package handler

import (
	"context"
	"net/http"
	"time"
)

// SettingsServiceInterface は全体設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	GetSettings(ctx context.Context) (*settingsResponse, error)
	UpdateSettings(ctx context.Context, actorID, appName, logoURL string) (*settingsResponse, error)
}

// settingsResponse は全体設定のレスポンス。
// is_default は設定が未保存で既定値を返していることを示す。
type settingsResponse struct {
	ID        string    `json:"id"`
	AppName   string    `json:"app_name"`
	LogoURL   *string   `json:"logo_url"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDefault bool      `json:"is_default"`
}

type updateSettingsRequest struct {
	AppName string `json:"app_name"`
	LogoURL string `json:"logo_url"`
}

// SettingsHandler は全体設定のHTTPハンドラー。
type SettingsHandler struct {
	service SettingsServiceInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// Get は全体設定を返す。ログイン画面でも使うため認証は不要。
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSettings(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Update は全体設定を更新する。
// PUT /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req updateSettingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	s, err := h.service.UpdateSettings(r.Context(), userID, req.AppName, req.LogoURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
