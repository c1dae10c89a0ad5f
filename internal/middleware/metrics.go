package middleware

import (
	"net/http"
	"time"

	"github.com/hitoshi/prmconsole/internal/metrics"
)

// NewMetricsMiddleware はレスポンスのステータスコードとレイテンシを記録するミドルウェアを返す。
func NewMetricsMiddleware(mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			mc.RecordHTTPStatus(rec.statusCode)
			mc.RecordRequestLatency(time.Since(start))
		})
	}
}
