package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/prmconsole/internal/model"
	"github.com/hitoshi/prmconsole/internal/profile"
)

// ProfileServiceInterface は本人のプロフィール操作に必要なサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	// EnsureProfile は無ければ作成し、作成した場合はtrueを返す
	EnsureProfile(ctx context.Context, userID, name string) (*model.Profile, bool, error)
	UpdateProfile(ctx context.Context, userID string, upd profile.Update) (*model.Profile, error)
}

// AdminServiceInterface は管理者向けユーザー管理のサービスインターフェース。
// profile.Serviceがそのまま満たす。
type AdminServiceInterface interface {
	List(ctx context.Context, actorID string) ([]*model.Profile, error)
	UpdateRole(ctx context.Context, actorID, targetID string, role model.Role) (*model.Profile, error)
	SetActive(ctx context.Context, actorID, targetID string, active bool) (*model.Profile, error)
}

// ProfileHandler はプロフィールと管理者向けユーザー管理のHTTPハンドラー。
type ProfileHandler struct {
	profiles ProfileServiceInterface
	admin    AdminServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(profiles ProfileServiceInterface, admin AdminServiceInterface) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, admin: admin}
}

type ensureProfileRequest struct {
	Name string `json:"name"`
}

type updateProfileRequest struct {
	Name       *string `json:"name"`
	AvatarURL  *string `json:"avatar_url"`
	Department *string `json:"department"`
}

type updateRoleRequest struct {
	Role model.Role `json:"role"`
}

type updateActiveRequest struct {
	Active *bool `json:"active"`
}

// GetOwn は自分のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// EnsureOwn は自分のプロフィールを作成する。既にある場合は名前を更新する。
// POST /api/profile
func (h *ProfileHandler) EnsureOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req ensureProfileRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	p, created, err := h.profiles.EnsureProfile(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, p)
}

// UpdateOwn は自分のプロフィールを部分更新する。
// PATCH /api/profile
func (h *ProfileHandler) UpdateOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	p, err := h.profiles.UpdateProfile(r.Context(), userID, profile.Update{
		Name:       req.Name,
		AvatarURL:  req.AvatarURL,
		Department: req.Department,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListUsers は全ユーザーのプロフィールを返す。
// GET /api/admin/users
func (h *ProfileHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	profiles, err := h.admin.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// UpdateRole は他ユーザーのロールを変更する。
// PATCH /api/admin/users/{id}/role
func (h *ProfileHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "id")
	if targetID == "" {
		handleServiceError(w, pathParamError("id"))
		return
	}
	var req updateRoleRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	p, err := h.admin.UpdateRole(r.Context(), userID, targetID, req.Role)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateActive は他ユーザーの有効状態を切り替える。
// PATCH /api/admin/users/{id}/active
func (h *ProfileHandler) UpdateActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "id")
	if targetID == "" {
		handleServiceError(w, pathParamError("id"))
		return
	}
	var req updateActiveRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.Active == nil {
		handleServiceError(w, model.NewInvalidRequestError("active is required"))
		return
	}

	p, err := h.admin.SetActive(r.Context(), userID, targetID, *req.Active)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
