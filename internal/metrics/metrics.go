// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess         = "success"
	LoginProviderError   = "provider_error"
	LoginResolutionError = "resolution_error"
	LoginSessionError    = "session_error"
)

// セッション参照結果のラベル値
const (
	SessionHit     = "hit"
	SessionMiss    = "miss"
	SessionInvalid = "invalid"
	SessionError   = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordPrincipalCreated()
	RecordResolveConflict()
	RecordSessionLookup(result string)
	RecordExchangeLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	login           *prometheus.CounterVec
	created         prometheus.Counter
	resolveConflict prometheus.Counter
	sessionLookup   *prometheus.CounterVec
	exchangeLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoria_login_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memoria_principal_created_total",
			Help: "初回ログインで作成されたローカルユーザー数",
		}),
		resolveConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memoria_principal_resolve_conflict_total",
			Help: "並行ログインによる作成競合を再取得で解決した回数",
		}),
		sessionLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoria_session_lookup_total",
			Help: "結果別のセッション参照数",
		}, []string{"result"}),
		exchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "memoria_auth_exchange_latency_seconds",
			Help:    "上流IdPとの認証情報交換のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoria_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.login,
		c.created,
		c.resolveConflict,
		c.sessionLookup,
		c.exchangeLatency,
		c.httpStatus,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.login.WithLabelValues(result).Inc()
}

// RecordPrincipalCreated はローカルユーザーの新規作成を記録する。
func (c *Collector) RecordPrincipalCreated() {
	c.created.Inc()
}

// RecordResolveConflict は作成競合の発生を記録する。
func (c *Collector) RecordResolveConflict() {
	c.resolveConflict.Inc()
}

// RecordSessionLookup はセッション参照結果を記録する。
func (c *Collector) RecordSessionLookup(result string) {
	c.sessionLookup.WithLabelValues(result).Inc()
}

// RecordExchangeLatency は認証情報交換のレイテンシを記録する。
func (c *Collector) RecordExchangeLatency(duration time.Duration) {
	c.exchangeLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。メトリクス未設定時に使う。
type Nop struct{}

func (Nop) RecordLogin(string)                  {}
func (Nop) RecordPrincipalCreated()             {}
func (Nop) RecordResolveConflict()              {}
func (Nop) RecordSessionLookup(string)          {}
func (Nop) RecordExchangeLatency(time.Duration) {}
func (Nop) RecordHTTPStatus(int)                {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// StatusRecorder はレスポンスのステータスコードをcollectorへ記録するミドルウェアを返す。
func StatusRecorder(collector MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			collector.RecordHTTPStatus(sw.status)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
