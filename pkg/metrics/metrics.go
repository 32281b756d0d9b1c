package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hod"

// 签名拒绝原因标签
const (
	ReasonAccepted  = "accepted"
	ReasonInvalid   = "invalid"
	ReasonNotFound  = "not_found"
	ReasonClosed    = "closed"
	ReasonDuplicate = "duplicate"
	ReasonError     = "error"
)

// Metrics 应用 Prometheus 指标集合
// 所有方法对 nil 接收者安全，便于测试与关闭指标时直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	signatures     *prometheus.CounterVec
	sessionEvents  *prometheus.CounterVec
	identityMisses *prometheus.CounterVec
}

// New 创建指标集合并注册到独立的 Registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP 请求总数",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP 请求耗时",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "signatures_total",
			Help:      "签到请求结果计数",
		}, []string{"result"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "session_events_total",
			Help:      "签到会话生命周期事件计数",
		}, []string{"event"}),
		identityMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "identity_lookup_failures_total",
			Help:      "手机号身份匹配查询失败次数（已降级为未匹配）",
		}, []string{"directory"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpLatency,
		m.signatures,
		m.sessionEvents,
		m.identityMisses,
	)
	return m
}

// Handler 返回 /metrics 暴露端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP 记录一次 HTTP 请求
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(seconds)
}

// SignatureResult 记录一次签到结果
func (m *Metrics) SignatureResult(result string) {
	if m == nil {
		return
	}
	m.signatures.WithLabelValues(result).Inc()
}

// SessionEvent 记录会话事件：opened / closed / refreshed / deleted
func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

// IdentityLookupFailed 记录一次名录查询失败
func (m *Metrics) IdentityLookupFailed(directory string) {
	if m == nil {
		return
	}
	m.identityMisses.WithLabelValues(directory).Inc()
}
