// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// BaaSクライアント、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordBackendCall(operation string, success bool, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordLogin(success bool)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendCalls    *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	loginAttempts   *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appledex_backend_calls_total",
			Help: "BaaS呼び出しの合計数（操作・結果別）",
		}, []string{"operation", "result"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appledex_backend_latency_seconds",
			Help:    "BaaS呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appledex_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appledex_login_attempts_total",
			Help: "ログイン試行の合計数（結果別）",
		}, []string{"result"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appledex_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.backendCalls,
		c.backendLatency,
		c.httpStatus,
		c.loginAttempts,
		c.sessionsCleaned,
	)

	return c
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordBackendCall はBaaS呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordBackendCall(operation string, success bool, duration time.Duration) {
	c.backendCalls.WithLabelValues(operation, result(success)).Inc()
	c.backendLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	c.loginAttempts.WithLabelValues(result(success)).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
