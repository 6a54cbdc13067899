// Package health 定时检查模拟环境的健康状态，并维护供状态接口读取的最新结果。
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/eventlog"
	"github.com/oriys/localcloud/internal/telemetry"
)

// HealthPath 模拟环境的健康检查路径
const HealthPath = "/_localstack/health"

// Observer 接收每次检查的结果，可为 nil。
type Observer interface {
	SetEmulatorUp(up bool)
}

// Config 健康监控配置
type Config struct {
	// Endpoint 后端访问模拟环境使用的内部地址
	Endpoint string
	// PublicEndpoint 展示给用户的地址，为空时使用 Endpoint
	PublicEndpoint string
	// Schedule 秒级 cron 表达式
	Schedule string
	// Timeout 单次检查超时
	Timeout time.Duration
	// InitialDelay 启动后首次检查的延迟
	InitialDelay time.Duration
}

// Monitor 模拟环境健康监控
type Monitor struct {
	cfg      Config
	client   *http.Client
	events   *eventlog.EventLog
	logger   *logrus.Logger
	observer Observer
	cron     *cron.Cron
	now      func() time.Time

	mu        sync.RWMutex
	status    domain.EmulatorStatus
	upSince   time.Time
	initTimer *time.Timer
}

// NewMonitor 创建健康监控。client 为 nil 时使用带追踪的 HTTP 客户端。
func NewMonitor(cfg Config, events *eventlog.EventLog, logger *logrus.Logger, observer Observer, client *http.Client) *Monitor {
	if cfg.Schedule == "" {
		cfg.Schedule = "*/30 * * * * *"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.PublicEndpoint == "" {
		cfg.PublicEndpoint = cfg.Endpoint
	}
	if client == nil {
		client = &http.Client{Transport: telemetry.HTTPClientTransport(nil)}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Monitor{
		cfg:      cfg,
		client:   client,
		events:   events,
		logger:   logger,
		observer: observer,
		cron:     cron.New(cron.WithSeconds()), // 支持秒级
		now:      time.Now,
		status: domain.EmulatorStatus{
			Running:  false,
			Endpoint: cfg.PublicEndpoint,
			Health:   domain.HealthUnknown,
		},
	}
}

// Start 注册定时检查并在 InitialDelay 后执行首次检查
func (m *Monitor) Start() error {
	if _, err := m.cron.AddFunc(m.cfg.Schedule, func() {
		m.Check(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid health schedule %q: %w", m.cfg.Schedule, err)
	}
	m.cron.Start()

	m.mu.Lock()
	m.initTimer = time.AfterFunc(m.cfg.InitialDelay, func() {
		m.Check(context.Background())
	})
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"endpoint": m.cfg.Endpoint,
		"schedule": m.cfg.Schedule,
	}).Info("Health monitor started")
	return nil
}

// Stop 停止定时检查，并等待正在执行的检查结束
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.initTimer != nil {
		m.initTimer.Stop()
	}
	m.mu.Unlock()

	<-m.cron.Stop().Done()
	m.logger.Info("Health monitor stopped")
}

// Status 返回最近一次检查的结果
func (m *Monitor) Status() domain.EmulatorStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := m.status
	if status.Running && !m.upSince.IsZero() {
		uptime := m.now().Sub(m.upSince).Truncate(time.Second).String()
		status.Uptime = &uptime
	}
	return status
}

// Check 立即执行一次健康检查并返回结果。
// 返回 200 视为健康；其他状态码视为运行异常；请求失败时状态未知。
func (m *Monitor) Check(ctx context.Context) domain.EmulatorStatus {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(m.cfg.Endpoint, "/") + HealthPath
	running, health, err := m.probe(ctx, url)

	now := m.now()
	m.mu.Lock()
	m.status.Running = running
	m.status.Health = health
	checkedAt := now.UTC()
	m.status.CheckedAt = &checkedAt
	switch {
	case running && m.upSince.IsZero():
		m.upSince = now
	case !running:
		m.upSince = time.Time{}
	}
	m.mu.Unlock()

	switch {
	case err != nil:
		m.events.Logf(domain.LevelError, domain.SourceBackend, "LocalStack health check failed: %v", err)
	case health == domain.HealthHealthy:
		m.events.Logf(domain.LevelInfo, domain.SourceBackend, "LocalStack is running and healthy")
	default:
		m.events.Logf(domain.LevelWarning, domain.SourceBackend, "LocalStack is running but unhealthy")
	}
	if m.observer != nil {
		m.observer.SetEmulatorUp(running)
	}
	return m.Status()
}

func (m *Monitor) probe(ctx context.Context, url string) (bool, domain.HealthState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, domain.HealthUnknown, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, domain.HealthUnknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, domain.HealthHealthy, nil
	}
	m.logger.WithFields(logrus.Fields{
		"url":    url,
		"status": resp.StatusCode,
	}).Warn("Emulator health check returned non-OK status")
	return false, domain.HealthUnhealthy, nil
}
