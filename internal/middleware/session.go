// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/prmconsole/internal/model"
)

// SessionCookieName はブラウザ向けセッションCookieの名前。値はセッションID。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey    = contextKey("user_id")
	sessionIDContextKey = contextKey("session_id")
	requestUserKey      = contextKey("request_user")
)

// requestUser はロギングミドルウェアが内側で確定したユーザーIDを受け取るための入れ物。
type requestUser struct {
	id string
}

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// AccessTokenParser はBearerトークンを検証し、ユーザーIDとセッションIDを返す。
type AccessTokenParser interface {
	ParseAccessToken(token string) (userID, sessionID string, err error)
}

// NewSessionMiddleware はBearerトークンまたはHTTP Only Cookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// Bearerトークンの場合も紐づくセッションが残っているかを確認する。
// 未認証リクエストには401を返す。
func NewSessionMiddleware(sessions SessionFinder, tokens AccessTokenParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, sessionID, ok := authenticate(r, sessions, tokens)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if holder, ok := r.Context().Value(requestUserKey).(*requestUser); ok {
				holder.id = userID
			}
			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, sessions SessionFinder, tokens AccessTokenParser) (string, string, bool) {
	sessionID := ""
	expectUser := ""

	if raw := BearerToken(r); raw != "" {
		if tokens == nil {
			return "", "", false
		}
		uid, sid, err := tokens.ParseAccessToken(raw)
		if err != nil {
			slog.Debug("rejected access token", slog.String("error", err.Error()))
			return "", "", false
		}
		sessionID, expectUser = sid, uid
	} else {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			return "", "", false
		}
		sessionID = cookie.Value
	}
	if sessionID == "" {
		return "", "", false
	}

	session, err := sessions.FindByID(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to find session", slog.String("error", err.Error()))
		return "", "", false
	}
	if session == nil {
		return "", "", false
	}
	if expectUser != "" && session.UserID != expectUser {
		return "", "", false
	}
	return session.UserID, session.ID, true
}

// BearerToken はAuthorizationヘッダーのBearerトークンを返す。無い場合は空文字列。
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// SessionIDFromContext はリクエストを認証したセッションのIDを返す。
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
