package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/prmconsole/internal/metrics"
	"github.com/hitoshi/prmconsole/internal/middleware"
	"github.com/hitoshi/prmconsole/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	TokenParser       middleware.AccessTokenParser
	RoleLookup        middleware.RoleLookup
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用
	HealthChecker    HealthChecker
	MetricsCollector metrics.MetricsCollector
	MetricsGatherer  prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール・設定・レコード
	ProfileService  ProfileServiceInterface
	AdminService    AdminServiceInterface
	SettingsService SettingsServiceInterface
	RecordService   RecordServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS → CSRF
//	  /auth/sign-in 等: AuthRateLimit(IP単位)
//	  /api/*: Session → GeneralRateLimit(ユーザー単位) [→ RequireRole(admin)]
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.MetricsCollector
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.AdminService)
	settingsHandler := NewSettingsHandler(deps.SettingsService)
	recordHandler := NewRecordHandler(deps.RecordService)
	session := middleware.NewSessionMiddleware(deps.SessionFinder, deps.TokenParser)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	r.Get("/api/settings", settingsHandler.Get)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Post("/sign-up", authHandler.SignUp)
			r.Post("/sign-in", authHandler.SignIn)
			r.Post("/refresh", authHandler.Refresh)
			r.Get("/google/login", authHandler.GoogleLogin)
			r.Get("/google/callback", authHandler.GoogleCallback)
		})
		r.Post("/sign-out", authHandler.SignOut)
		r.With(session).Get("/session", authHandler.Session)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(session)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetOwn)
			r.Post("/", profileHandler.EnsureOwn)
			r.Patch("/", profileHandler.UpdateOwn)
		})

		r.Route("/api/records/{collection}", func(r chi.Router) {
			r.Get("/", recordHandler.List)
			r.Post("/", recordHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", recordHandler.Get)
				r.Patch("/", recordHandler.Update)
				r.Delete("/", recordHandler.Deactivate)
			})
		})

		// 管理者のみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireRoleMiddleware(deps.RoleLookup, model.RoleAdmin))
			r.Put("/api/settings", settingsHandler.Update)
			r.Route("/api/admin/users", func(r chi.Router) {
				r.Get("/", profileHandler.ListUsers)
				r.Patch("/{id}/role", profileHandler.UpdateRole)
				r.Patch("/{id}/active", profileHandler.UpdateActive)
			})
		})
	})

	return r
}
