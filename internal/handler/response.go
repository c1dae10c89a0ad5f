// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/prmconsole/internal/middleware"
	"github.com/hitoshi/prmconsole/internal/model"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeBody はリクエストボディをdstにデコードする。未知のフィールドは拒否する。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewInvalidRequestError("empty body")
		}
		return model.NewInvalidRequestError(err.Error())
	}
	if dec.More() {
		return model.NewInvalidRequestError("unexpected data after JSON body")
	}
	return nil
}

// requireUserID はセッションミドルウェアが注入したユーザーIDを返す。
// 無い場合は401を書き込んでfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized, model.ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeAccountDisabled, model.ErrCodeSSRFBlocked, model.ErrCodeCSRFFailed:
		return http.StatusForbidden
	case model.ErrCodeEmailTaken, model.ErrCodeSelfModification:
		return http.StatusConflict
	case model.ErrCodeProfileNotFound, model.ErrCodeRecordNotFound, model.ErrCodeOAuthDisabled:
		return http.StatusNotFound
	case model.ErrCodeInvalidEmail, model.ErrCodeWeakPassword, model.ErrCodeInvalidRole,
		model.ErrCodeInvalidAppName, model.ErrCodeInvalidURL, model.ErrCodeInvalidCollection,
		model.ErrCodeInvalidStatus, model.ErrCodeInvalidRecord, model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidOAuthState:
		return http.StatusBadRequest
	case model.ErrCodeLogoUnreachable:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// pathParamError はURLパラメータが欠けている場合のエラー。
func pathParamError(name string) error {
	return model.NewInvalidRequestError(fmt.Sprintf("missing path parameter: %s", name))
}
