// Package metrics 提供 Prometheus 指标采集与上报的统一封装。
// 该包集中定义控制台关键指标（后端调用、操作日志、资源编排、模拟环境健康），便于在各模块复用并保持标签一致。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oriys/localcloud/internal/backend"
	"github.com/oriys/localcloud/internal/domain"
)

// Metrics 封装控制台运行时指标集合。
//
// 指标分类:
//   - 后端调用指标: 跟踪供应脚本的调用次数与耗时
//   - 操作日志指标: 按级别统计日志条目、订阅者数量与丢弃条目
//   - 资源指标: 按资源类型统计创建成功与失败
//   - 模拟环境指标: 最近一次健康检查结果
type Metrics struct {
	registry prometheus.Gatherer

	// ========== 后端调用相关指标 ==========

	// BackendInvocations 后端调用总次数
	// 标签: action, outcome (success/failure/timeout)
	BackendInvocations *prometheus.CounterVec

	// BackendDuration 后端调用耗时直方图（单位：毫秒）
	// 标签: action
	BackendDuration *prometheus.HistogramVec

	// ========== 操作日志相关指标 ==========

	// LogEntries 追加的日志条目数
	// 标签: level
	LogEntries *prometheus.CounterVec

	// LogSubscribers 当前实时订阅者数量
	LogSubscribers prometheus.Gauge

	// LogDropped 因订阅者通道已满而丢弃的条目数
	LogDropped prometheus.Counter

	// ========== 资源相关指标 ==========

	// ResourcesCreated 创建成功的资源数
	// 标签: kind
	ResourcesCreated *prometheus.CounterVec

	// ResourcesFailed 创建失败的资源数
	// 标签: kind
	ResourcesFailed *prometheus.CounterVec

	// ========== 模拟环境相关指标 ==========

	// EmulatorUp 最近一次健康检查是否成功（1/0）
	EmulatorUp prometheus.Gauge
}

// NewMetrics 创建并注册一组 Prometheus 指标。
// namespace 作为所有指标名前缀；reg 为 nil 时注册到默认 Registry。
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: gatherer,
		BackendInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_invocations_total",
				Help:      "Total number of provisioning backend invocations",
			},
			[]string{"action", "outcome"},
		),
		BackendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_invocation_duration_ms",
				Help:      "Provisioning backend invocation duration in milliseconds",
				Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
			},
			[]string{"action"},
		),
		LogEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_entries_total",
				Help:      "Total number of console log entries appended",
			},
			[]string{"level"},
		),
		LogSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "log_subscribers",
				Help:      "Active real-time log subscribers",
			},
		),
		LogDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_entries_dropped_total",
				Help:      "Log entries dropped for slow subscribers",
			},
		),
		ResourcesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_created_total",
				Help:      "Resources created successfully",
			},
			[]string{"kind"},
		),
		ResourcesFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_failed_total",
				Help:      "Resource creations that failed",
			},
			[]string{"kind"},
		),
		EmulatorUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "emulator_up",
				Help:      "Whether the last emulator health check succeeded",
			},
		),
	}
}

// Handler 返回 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveInvocation 记录一次后端调用，实现 backend.Observer。
func (m *Metrics) ObserveInvocation(action backend.Action, outcome string, duration time.Duration) {
	m.BackendInvocations.WithLabelValues(string(action), outcome).Inc()
	m.BackendDuration.WithLabelValues(string(action)).Observe(float64(duration.Milliseconds()))
}

// EntryAppended 实现 eventlog.Observer
func (m *Metrics) EntryAppended(level domain.LogLevel) {
	m.LogEntries.WithLabelValues(string(level)).Inc()
}

// EntryDropped 实现 eventlog.Observer
func (m *Metrics) EntryDropped() {
	m.LogDropped.Inc()
}

// SubscribersChanged 实现 eventlog.Observer
func (m *Metrics) SubscribersChanged(active int) {
	m.LogSubscribers.Set(float64(active))
}

// ResourceCreated 记录一个资源创建成功
func (m *Metrics) ResourceCreated(kind domain.ResourceKind) {
	m.ResourcesCreated.WithLabelValues(string(kind)).Inc()
}

// ResourceFailed 记录一个资源创建失败
func (m *Metrics) ResourceFailed(kind domain.ResourceKind) {
	m.ResourcesFailed.WithLabelValues(string(kind)).Inc()
}

// SetEmulatorUp 更新模拟环境健康指标
func (m *Metrics) SetEmulatorUp(up bool) {
	if up {
		m.EmulatorUp.Set(1)
		return
	}
	m.EmulatorUp.Set(0)
}
