package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/prmconsole/internal/auth"
	"github.com/hitoshi/prmconsole/internal/config"
	"github.com/hitoshi/prmconsole/internal/database"
	"github.com/hitoshi/prmconsole/internal/handler"
	"github.com/hitoshi/prmconsole/internal/logger"
	"github.com/hitoshi/prmconsole/internal/metrics"
	"github.com/hitoshi/prmconsole/internal/middleware"
	"github.com/hitoshi/prmconsole/internal/profile"
	"github.com/hitoshi/prmconsole/internal/record"
	"github.com/hitoshi/prmconsole/internal/repository"
	"github.com/hitoshi/prmconsole/internal/security"
	"github.com/hitoshi/prmconsole/internal/settings"
	"github.com/hitoshi/prmconsole/internal/worker/cleanup"
)

const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込んだうえで環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	if err := config.LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		return nil, err
	}

	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck と console はDB設定を必要としないため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandConsole:
		return runConsole(w, args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		margs, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, margs)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、到達できることを確認する。
func openDB(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(db, dbPingTimeout); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// server はAPIサーバーの依存関係一式。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// buildServer はリポジトリ・サービス・ハンドラーを組み立てる。
func buildServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, mc metrics.MetricsCollector) *server {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	accountRepo := repository.NewPostgresExternalAccountRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)
	recordRepo := repository.NewPostgresRecordRepo(db)

	// 2. セキュリティ
	guard := security.NewURLGuard(cfg.LogoCheckTimeout)
	sanitizer := security.NewTextSanitizer()

	// 3. ドメインサービス
	profileService := profile.NewService(profileRepo, sessionRepo, guard, sanitizer).
		WithAdminEmails(cfg.AdminEmails)
	settingsService := settings.NewService(settingsRepo, profileService, guard, sanitizer, settings.Config{
		LogoCheck:        cfg.LogoCheck,
		LogoCheckTimeout: cfg.LogoCheckTimeout,
	})
	recordService := record.NewService(recordRepo, sanitizer)

	// GOOGLE_CLIENT_IDが無ければGoogleログインは無効（nilのまま渡す）
	var oauthProvider auth.OAuthProvider
	if cfg.GoogleEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}
	authService := auth.NewService(
		oauthProvider, userRepo, accountRepo, sessionRepo, profileService,
		auth.NewArgon2Hasher(),
		auth.NewTokenIssuer(cfg.SessionSecret, cfg.AccessTokenTTL),
		mc,
		auth.ServiceConfig{
			SessionMaxAge: time.Duration(cfg.SessionMaxAge) * time.Second,
			AdminEmails:   cfg.AdminEmails,
		},
	)

	// 4. ルーター
	rl := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth), mc)

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		TokenParser:       authService,
		RoleLookup:        profileService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rl,
		Logger:      slog.Default(),

		HealthChecker:    db,
		MetricsCollector: mc,
		MetricsGatherer:  reg,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService:  handler.NewProfileServiceAdapter(profileService, authService),
		AdminService:    profileService,
		SettingsService: handler.NewSettingsServiceAdapter(settingsService),
		RecordService:   recordService,
	}

	return &server{handler: handler.NewRouter(deps), rateLimiter: rl}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	reg, mc := newRegistry()
	srv := buildServer(cfg, db, reg, mc)
	defer srv.rateLimiter.Stop()

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを日次で実行し、シグナル受信で停止する。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	_, mc := newRegistry()
	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default(), mc)
	job.RetentionDays = cfg.SessionRetentionDays

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Int("session_retention_days", job.RetentionDays),
		slog.Duration("interval", job.Interval),
	)

	job.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args MigrateArgs) error {
	slog.Info("running database migrations",
		slog.String("action", string(args.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch args.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
