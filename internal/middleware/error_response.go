package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/prmconsole/internal/model"
)

// ErrorResponseBody はAPIエラーのJSON。コンソールクライアントはcodeで分岐する。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action,omitempty"`
}

// WriteErrorResponse はAPIErrorをJSONで書き込む。
// 認証エラーを中継キャッシュに残さないよう no-store を付ける。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は500を書き込む。詳細はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
