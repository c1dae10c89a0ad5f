package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/prmconsole/internal/model"
	"github.com/hitoshi/prmconsole/internal/record"
)

// RecordServiceInterface はレコードハンドラーが必要とするサービスインターフェース。
// record.Serviceがそのまま満たす。
type RecordServiceInterface interface {
	List(ctx context.Context, ownerID, collection string, includeInactive bool) ([]*model.Record, error)
	Get(ctx context.Context, ownerID, collection, id string) (*model.Record, error)
	Create(ctx context.Context, ownerID, collection string, in record.Input) (*model.Record, error)
	Update(ctx context.Context, ownerID, collection, id string, in record.Input) (*model.Record, error)
	Deactivate(ctx context.Context, ownerID, collection, id string) error
}

// RecordHandler はPRMコレクションのHTTPハンドラー。
type RecordHandler struct {
	service RecordServiceInterface
}

// NewRecordHandler はRecordHandlerを生成する。
func NewRecordHandler(service RecordServiceInterface) *RecordHandler {
	return &RecordHandler{service: service}
}

type recordRequest struct {
	Name   *string        `json:"name"`
	Status *string        `json:"status"`
	Data   map[string]any `json:"data"`
}

func (req recordRequest) input() record.Input {
	return record.Input{Name: req.Name, Status: req.Status, Data: req.Data}
}

// List はコレクション内の自分のレコードを返す。
// GET /api/records/{collection}?include_inactive=true
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	includeInactive := false
	if v := r.URL.Query().Get("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			handleServiceError(w, model.NewInvalidRequestError("include_inactive must be a boolean"))
			return
		}
		includeInactive = b
	}

	records, err := h.service.List(r.Context(), userID, chi.URLParam(r, "collection"), includeInactive)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if records == nil {
		records = []*model.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Get は自分のレコードを1件返す。
// GET /api/records/{collection}/{id}
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create はレコードを作成する。
// POST /api/records/{collection}
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req recordRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	rec, err := h.service.Create(r.Context(), userID, chi.URLParam(r, "collection"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Update は自分のレコードを部分更新する。
// PATCH /api/records/{collection}/{id}
func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req recordRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	rec, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "collection"), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Deactivate はレコードを無効化する。
// DELETE /api/records/{collection}/{id}
func (h *RecordHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), userID, chi.URLParam(r, "collection"), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
