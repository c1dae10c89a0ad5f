package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/prmconsole/internal/metrics"
	"github.com/hitoshi/prmconsole/internal/model"
)

// レート制限のスコープ。メトリクスのラベルにも使う。
const (
	ScopeGeneral = "general"
	ScopeAuth    = "auth"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit // 認証済みAPIのユーザーごとのレート（req/sec）
	GeneralBurst    int
	AuthRate        rate.Limit // 認証エンドポイントのIPごとのレート（req/sec）
	AuthBurst       int
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// RateLimiterConfigPerMinute は1分あたりの上限からRateLimiterConfigを作る。
func RateLimiterConfigPerMinute(general, auth int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(general) / 60.0),
		GeneralBurst:    max(general, 1),
		AuthRate:        rate.Limit(float64(auth) / 60.0),
		AuthBurst:       max(auth, 1),
		CleanupInterval: 5 * time.Minute,
	}
}

// DefaultRateLimiterConfig は既定のレート制限設定を返す。
// 認証済みAPI 120 req/min/user、認証エンドポイント 10 req/min/IP。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfigPerMinute(120, 10)
}

type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はキー（ユーザーIDやIP）ごとのトークンバケットを保持する。
type limiterSet struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, limiters: make(map[string]*keyedLimiter)}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	kl, ok := s.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = kl
	}
	kl.lastAccess = now
	s.mu.Unlock()
	return kl.limiter.AllowN(now, 1)
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// sweep は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) sweep(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter は認証済みAPIのユーザー単位と、認証エンドポイントのIP単位の
// 2種類のレート制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	metrics metrics.MetricsCollector
	general *limiterSet
	auth    *limiterSet
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, mc metrics.MetricsCollector) *RateLimiter {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		metrics: mc,
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		auth:    newLimiterSet(config.AuthRate, config.AuthBurst),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware は認証済みAPIのユーザー単位のレート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !rl.general.allow(userID, rl.now()) {
				rl.reject(w, ScopeGeneral, rl.config.GeneralRate, slog.String("user_id", userID))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware はサインイン・サインアップなど認証エンドポイントの
// クライアントIP単位のレート制限ミドルウェアを返す。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.auth.allow(ip, rl.now()) {
				rl.reject(w, ScopeAuth, rl.config.AuthRate, slog.String("ip", ip))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は管理中のユーザー単位リミッター数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// AuthLimiterCount は管理中のIP単位リミッター数を返す。
func (rl *RateLimiter) AuthLimiterCount() int {
	return rl.auth.len()
}

func (rl *RateLimiter) reject(w http.ResponseWriter, scope string, limit rate.Limit, key slog.Attr) {
	rl.metrics.RecordRateLimited(scope)
	slog.Warn("rate limit exceeded", key, slog.String("limit_type", scope))
	writeRateLimitResponse(w, limit)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	now := rl.now()
	ttl := rl.config.CleanupInterval * 2
	rl.general.sweep(now, ttl)
	rl.auth.sweep(now, ttl)
}

// clientIP はRemoteAddrのホスト部を返す。
// プロキシ配下ではchiのRealIPミドルウェアで事前にRemoteAddrを書き換える。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429レスポンスを書き込む。
// Retry-Afterには1トークンが補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(int(math.Ceil(1.0/float64(r))), 1)
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
