package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/hitoshi/prmconsole/internal/model"
)

// RoleLookup はユーザーの現在のロールを返す。プロフィールが無い場合は空文字列。
type RoleLookup interface {
	Role(ctx context.Context, id string) (model.Role, error)
}

// NewRequireRoleMiddleware は許可されたロールのユーザーだけを通すミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func NewRequireRoleMiddleware(roles RoleLookup, allowed ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			role, err := roles.Role(r.Context(), userID)
			if err != nil {
				slog.Error("failed to look up role",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if !slices.Contains(allowed, role) {
				slog.Warn("role check failed",
					slog.String("user_id", userID),
					slog.String("role", string(role)),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
