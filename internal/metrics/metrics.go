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
// 生成オーケストレーターや修正エンジンから利用する。
type MetricsCollector interface {
	RecordGenerationSuccess(aiType string)
	RecordGenerationFailure(aiType string, reason string)
	RecordQuotaRejection(projectID string)
	RecordHTTPStatus(statusCode int)
	RecordGenerationLatency(aiType string, duration time.Duration)
	RecordStreamedChunks(count int)
	RecordRevisionSuccess()
	RecordRevisionFailure(reason string)
	RecordUsageQueueDepth(depth int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generationSuccess *prometheus.CounterVec
	generationFail    *prometheus.CounterVec
	quotaRejected     prometheus.Counter
	httpStatus        *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	streamedChunks    prometheus.Counter
	revisionSuccess   prometheus.Counter
	revisionFail      *prometheus.CounterVec
	usageQueueDepth   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generationSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_generation_success_total",
			Help: "生成モード別のAI生成成功の合計数",
		}, []string{"ai_type"}),
		generationFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_generation_fail_total",
			Help: "生成モード・要因別のAI生成失敗の合計数",
		}, []string{"ai_type", "reason"}),
		quotaRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kotoba_quota_rejected_total",
			Help: "月間利用上限による拒否の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "kotoba_generation_latency_seconds",
			Help: "生成開始からストリーム完了までのレイテンシ（秒）",
			// LLMのストリーミングは数十秒かかるため長めのバケットを使う
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
		}, []string{"ai_type"}),
		streamedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kotoba_streamed_chunks_total",
			Help: "クライアントに中継したテキストチャンクの合計数",
		}),
		revisionSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kotoba_revision_success_total",
			Help: "SEO記事修正成功の合計数",
		}),
		revisionFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_revision_fail_total",
			Help: "要因別のSEO記事修正失敗の合計数",
		}, []string{"reason"}),
		usageQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kotoba_usage_queue_depth",
			Help: "利用イベント記録キューの現在の滞留数",
		}),
	}

	reg.MustRegister(
		c.generationSuccess,
		c.generationFail,
		c.quotaRejected,
		c.httpStatus,
		c.generationLatency,
		c.streamedChunks,
		c.revisionSuccess,
		c.revisionFail,
		c.usageQueueDepth,
	)

	return c
}

// RecordGenerationSuccess は生成成功を記録する。
func (c *Collector) RecordGenerationSuccess(aiType string) {
	c.generationSuccess.WithLabelValues(aiType).Inc()
}

// RecordGenerationFailure は生成失敗を記録する。
func (c *Collector) RecordGenerationFailure(aiType string, reason string) {
	c.generationFail.WithLabelValues(aiType, reason).Inc()
}

// RecordQuotaRejection は上限超過による拒否を記録する。
func (c *Collector) RecordQuotaRejection(projectID string) {
	c.quotaRejected.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordGenerationLatency は生成のレイテンシを記録する。
func (c *Collector) RecordGenerationLatency(aiType string, duration time.Duration) {
	c.generationLatency.WithLabelValues(aiType).Observe(duration.Seconds())
}

// RecordStreamedChunks は中継したチャンク数を記録する。
func (c *Collector) RecordStreamedChunks(count int) {
	c.streamedChunks.Add(float64(count))
}

// RecordRevisionSuccess はSEO記事修正の成功を記録する。
func (c *Collector) RecordRevisionSuccess() {
	c.revisionSuccess.Inc()
}

// RecordRevisionFailure はSEO記事修正の失敗を記録する。
func (c *Collector) RecordRevisionFailure(reason string) {
	c.revisionFail.WithLabelValues(reason).Inc()
}

// RecordUsageQueueDepth は利用イベントキューの滞留数を記録する。
func (c *Collector) RecordUsageQueueDepth(depth int) {
	c.usageQueueDepth.Set(float64(depth))
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
