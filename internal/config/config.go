package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// defaultDotEnvPath はLoadDotEnvでパス未指定の場合に読む.envファイル。
const defaultDotEnvPath = ".env"

// Config はAPIサーバーとワーカーの設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth（GOOGLE_CLIENT_IDが未設定ならGoogleログインは無効）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret        string
	SessionMaxAge        int
	AccessTokenTTL       time.Duration
	SessionRetentionDays int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Profile
	AdminEmails []string

	// Settings
	LogoCheck        bool
	LogoCheckTimeout time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// GoogleEnabled はGoogleログインが設定されているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

// LoadDotEnv は.envファイルがあれば環境変数に読み込む。既に設定されている変数は上書きしない。
// pathが空の場合はカレントディレクトリの.envを読む。ファイルが無ければ何もしない。
func LoadDotEnv(path string) error {
	if path == "" {
		path = defaultDotEnvPath
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	// Googleログインを有効にする場合は3点セットで必須
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID != "" {
		cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
		if cfg.GoogleClientSecret == "" {
			missing = append(missing, "GOOGLE_CLIENT_SECRET")
		}
		cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
		if cfg.GoogleRedirectURL == "" {
			missing = append(missing, "GOOGLE_REDIRECT_URL")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 7)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.AdminEmails = getEnvList("ADMIN_EMAILS")
	cfg.LogoCheck = getEnvBool("LOGO_CHECK", false)
	cfg.LogoCheckTimeout = getEnvDuration("LOGO_CHECK_TIMEOUT", 5*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// ConsoleConfig はconsoleサブコマンド（APIクライアント側）の設定を保持する。
type ConsoleConfig struct {
	APIURL               string
	TokenFile            string
	AuthReadyTimeout     time.Duration
	SettingsFetchTimeout time.Duration
	RequestTimeout       time.Duration
	LogLevel             string
}

// LoadConsole は環境変数からConsoleConfigを読み込む。
// DB接続情報は不要で、APIのベースURLのみ必須。
func LoadConsole() (*ConsoleConfig, error) {
	cfg := &ConsoleConfig{}

	cfg.APIURL = strings.TrimRight(os.Getenv("PRM_API_URL"), "/")
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"PRM_API_URL"})
	}

	cfg.TokenFile = getEnvString("PRM_TOKEN_FILE", defaultTokenFile())
	cfg.AuthReadyTimeout = getEnvDuration("AUTH_READY_TIMEOUT", 3*time.Second)
	cfg.SettingsFetchTimeout = getEnvDuration("SETTINGS_FETCH_TIMEOUT", 15*time.Second)
	cfg.RequestTimeout = getEnvDuration("PRM_REQUEST_TIMEOUT", 10*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "warn")

	return cfg, nil
}

// defaultTokenFile はトークン保存先の既定パスを返す。
func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".prmconsole-session.json"
	}
	return dir + "/prmconsole/session.json"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を小文字・前後空白除去済みのスライスで返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
