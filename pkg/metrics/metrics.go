// Package metrics 提供 Prometheus 指标：HTTP、资金流水、结算、outbox 投递
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/walletledger/pkg/logger"
)

const namespace = "ledger"

// Metrics 指标集合，nil 接收者上的记录方法是空操作
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 资金流水，按类型与结果
	MovementsTotal *prometheus.CounterVec
	// 结算，按义务类型与结果
	SettlementsTotal *prometheus.CounterVec

	// outbox 投递
	OutboxPublished prometheus.Counter
	OutboxFailed    prometheus.Counter
	OutboxDead      prometheus.Counter
}

// New 创建指标实例，serviceName 作为 subsystem，与 namespace 相同时省略
func New(serviceName string) *Metrics {
	subsystem := serviceName
	if subsystem == namespace {
		subsystem = ""
	}
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		MovementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "movements_total",
			Help:      "Money movements by kind and outcome",
		}, []string{"kind", "outcome"}),
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "settlements_total",
			Help:      "Obligation settlement attempts by type and result",
		}, []string{"type", "result"}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_published_total",
			Help:      "Outbox events delivered to Kafka",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_failed_total",
			Help:      "Failed outbox delivery attempts",
		}),
		OutboxDead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_dead_total",
			Help:      "Outbox events moved to the dead letter topic",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MovementsTotal,
		m.SettlementsTotal,
		m.OutboxPublished,
		m.OutboxFailed,
		m.OutboxDead,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordMovement 记录一条资金流水
func (m *Metrics) RecordMovement(kind, outcome string) {
	if m == nil {
		return
	}
	m.MovementsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordSettlement 记录一次结算尝试
func (m *Metrics) RecordSettlement(obligationType, result string) {
	if m == nil {
		return
	}
	m.SettlementsTotal.WithLabelValues(obligationType, result).Inc()
}

// RecordOutbox 记录一批投递结果
func (m *Metrics) RecordOutbox(published, failed, dead int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(published))
	m.OutboxFailed.Add(float64(failed))
	m.OutboxDead.Add(float64(dead))
}

// NewServer 创建 Prometheus HTTP 服务器，由调用方负责启动与关闭
func NewServer(port int, path string, gatherer prometheus.Gatherer) *http.Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Prometheus HTTP server configured", "addr", addr, "path", path)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
