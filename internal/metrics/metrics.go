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
// ハンドラー、サービス層、ディスパッチャから利用する。
type MetricsCollector interface {
	RecordResolutionOutcome(outcome string)
	RecordEventEmitted(eventType string)
	RecordDispatchResult(channel string, result string)
	RecordDispatchLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// ディスパッチ結果のラベル値。
const (
	DispatchResultSent  = "sent"
	DispatchResultRetry = "retry"
	DispatchResultFail  = "failed"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	resolutionOutcomes *prometheus.CounterVec
	eventsEmitted      *prometheus.CounterVec
	dispatchResults    *prometheus.CounterVec
	dispatchLatency    prometheus.Histogram
	httpStatus         *prometheus.CounterVec
}

// NewCollector はCollectorの新しいインスタンスを生成し、レジストリに登録する。
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		resolutionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estately_resolution_outcomes_total",
			Help: "ペルソナ解決の結果ごとの合計数",
		}, []string{"outcome"}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estately_events_emitted_total",
			Help: "発行されたドメインイベントの合計数",
		}, []string{"event_type"}),
		dispatchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estately_dispatch_total",
			Help: "アウトボックス配信の結果ごとの合計数",
		}, []string{"channel", "result"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "estately_dispatch_latency_seconds",
			Help:    "アウトボックス配信サイクルの所要時間",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estately_http_responses_total",
			Help: "HTTPレスポンスのステータスコードごとの合計数",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.resolutionOutcomes,
		c.eventsEmitted,
		c.dispatchResults,
		c.dispatchLatency,
		c.httpStatus,
	)

	return c
}

// RecordResolutionOutcome はペルソナ解決の結果（redirect / interstitial）を記録する。
func (c *Collector) RecordResolutionOutcome(outcome string) {
	c.resolutionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordEventEmitted はドメインイベントの発行を記録する。
func (c *Collector) RecordEventEmitted(eventType string) {
	c.eventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordDispatchResult はアウトボックス配信の結果を記録する。
func (c *Collector) RecordDispatchResult(channel string, result string) {
	c.dispatchResults.WithLabelValues(channel, result).Inc()
}

// RecordDispatchLatency は配信サイクルの所要時間を記録する。
func (c *Collector) RecordDispatchLatency(duration time.Duration) {
	c.dispatchLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
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
