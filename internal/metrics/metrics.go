// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証結果のラベル値。
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn(result string)
	RecordSignUp(result string)
	RecordProfileCreateFailure()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRateLimited(scope string)
	RecordSessionsPurged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn            *prometheus.CounterVec
	signUp            *prometheus.CounterVec
	profileCreateFail prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	rateLimited       *prometheus.CounterVec
	sessionsPurged    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prmconsole_sign_in_total",
			Help: "サインイン試行数（結果別）",
		}, []string{"result"}),
		signUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prmconsole_sign_up_total",
			Help: "サインアップ試行数（結果別）",
		}, []string{"result"}),
		profileCreateFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prmconsole_profile_create_fail_total",
			Help: "サインアップ時のプロフィール作成失敗数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prmconsole_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prmconsole_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prmconsole_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"scope"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prmconsole_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッション数",
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.signUp,
		c.profileCreateFail,
		c.httpStatus,
		c.requestLatency,
		c.rateLimited,
		c.sessionsPurged,
	)

	return c
}

// RecordSignIn はサインインの結果を記録する。
func (c *Collector) RecordSignIn(result string) {
	c.signIn.WithLabelValues(result).Inc()
}

// RecordSignUp はサインアップの結果を記録する。
func (c *Collector) RecordSignUp(result string) {
	c.signUp.WithLabelValues(result).Inc()
}

// RecordProfileCreateFailure はプロフィール作成の失敗を記録する。
func (c *Collector) RecordProfileCreateFailure() {
	c.profileCreateFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。scopeは"general"または"auth"。
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordSessionsPurged は削除したセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。CLIやテストで使う。
type Nop struct{}

func (Nop) RecordSignIn(string)                {}
func (Nop) RecordSignUp(string)                {}
func (Nop) RecordProfileCreateFailure()        {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordRateLimited(string)           {}
func (Nop) RecordSessionsPurged(int)           {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
