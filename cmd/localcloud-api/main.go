// Package main 是本地云控制台 API 服务的入口点。
// 服务负责资源编排、资源清单查询、模拟环境健康检查以及实时操作日志推送。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/api"
	"github.com/oriys/localcloud/internal/auth"
	"github.com/oriys/localcloud/internal/backend"
	"github.com/oriys/localcloud/internal/cache"
	"github.com/oriys/localcloud/internal/config"
	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/eventlog"
	"github.com/oriys/localcloud/internal/events"
	"github.com/oriys/localcloud/internal/health"
	"github.com/oriys/localcloud/internal/inventory"
	"github.com/oriys/localcloud/internal/metrics"
	"github.com/oriys/localcloud/internal/orchestrator"
	"github.com/oriys/localcloud/internal/telemetry"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "1.0.0"

// main 初始化所有依赖组件并启动 HTTP 服务器
func main() {
	// 配置文件可选；未指定时只使用默认值与环境变量
	configPath := flag.String("config", os.Getenv("LOCALCLOUD_CONFIG"), "Path to config file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	configureLogger(logger, cfg.Logging)

	// 初始化遥测系统 (OpenTelemetry)
	// 初始化失败不影响主服务运行，仅记录警告
	tel, err := telemetry.New(context.Background(), cfg.Telemetry, version)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
	} else {
		defer tel.Shutdown(context.Background())
		if tel.IsEnabled() {
			logger.AddHook(telemetry.NewLogrusHook())
			logger.WithFields(logrus.Fields{
				"endpoint":    cfg.Telemetry.Endpoint,
				"sample_rate": cfg.Telemetry.SampleRate,
			}).Info("Telemetry initialized")
		}
	}

	// Prometheus 指标使用独立的 Registry，避免与默认采集器混在一起
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
	}

	// 操作日志：内存缓冲 + 结构化日志出口
	logOpts := eventlog.Options{
		Capacity:         cfg.EventLog.Capacity,
		SubscriberBuffer: cfg.EventLog.SubscriberBuffer,
		Sinks:            []eventlog.Sink{eventlog.NewLogrusSink(logger)},
	}
	if m != nil {
		logOpts.Observer = m
	}
	eventLog := eventlog.New(logOpts)

	// NATS 事件总线：持久化操作日志并发布资源事件
	var bus *events.EventBus
	if cfg.Events.Enabled {
		bus, err = events.NewEventBus(cfg.Events.NatsURL, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to NATS, continuing without event bus")
		} else {
			defer bus.Close()
			eventLog.AddSink(bus)
			logger.WithField("url", cfg.Events.NatsURL).Info("Event bus connected")
		}
	}

	// 供应后端：外部脚本与命令行工具
	var backendObserver backend.Observer
	if m != nil {
		backendObserver = m
	}
	provisioner := backend.NewScriptBackend(backend.ScriptConfig{
		ScriptsDir:  cfg.Backend.ScriptsDir,
		Shell:       cfg.Backend.Shell,
		AWSBinary:   cfg.Backend.AWSBinary,
		Endpoint:    cfg.Project.Endpoint,
		Region:      cfg.Project.Region,
		Environment: cfg.Backend.Environment,
		Timeout:     cfg.Backend.Timeout,
		Env:         cfg.Backend.Env,
	}, logger, backendObserver)

	orchOpts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if bus != nil {
		orchOpts = append(orchOpts, orchestrator.WithNotifier(bus))
	}
	if m != nil {
		orchOpts = append(orchOpts, orchestrator.WithObserver(m))
	}
	orch := orchestrator.New(provisioner, eventLog, orchOpts...)
	inv := inventory.New(provisioner, eventLog, logger)

	// 模拟环境健康检查
	var statusProvider api.StatusProvider
	if cfg.Health.IsEnabled() {
		var healthObserver health.Observer
		if m != nil {
			healthObserver = m
		}
		client := &http.Client{Transport: telemetry.HTTPClientTransport(http.DefaultTransport)}
		monitor := health.NewMonitor(health.Config{
			Endpoint:       cfg.Project.Endpoint,
			PublicEndpoint: cfg.Project.PublicEndpoint,
			Schedule:       cfg.Health.Schedule,
			Timeout:        cfg.Health.Timeout,
			InitialDelay:   cfg.Health.InitialDelay,
		}, eventLog, logger, healthObserver, client)
		if err := monitor.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start health monitor")
		}
		defer monitor.Stop()
		statusProvider = monitor
	}

	// Redis 缓存控制台（可选）
	var cacheService *cache.Service
	if cfg.Cache.Enabled {
		cacheService = cache.NewService(cache.NewRedisStore(cache.RedisOptions{
			Addr:     cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		}), eventLog, logger)
		defer cacheService.Close()
	}

	var authMiddleware *auth.Middleware
	if cfg.Auth.Enabled {
		authMiddleware = auth.NewMiddleware(auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration), true)
		logger.Info("Bearer authentication enabled for mutating routes")
	}

	handler := api.NewHandler(api.HandlerConfig{
		Orchestrator: orch,
		Inventory:    inv,
		Health:       statusProvider,
		Cache:        cacheService,
		Events:       eventLog,
		Project:      cfg.Project,
		Version:      version,
		Logger:       logger,
	})

	routerCfg := &api.RouterConfig{
		Handler:        handler,
		Console:        api.NewConsoleHandler(eventLog, logger),
		Auth:           authMiddleware,
		ServiceName:    cfg.Telemetry.ServiceName,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigin:     cfg.Server.CORSOrigin,
	}

	// 指标端口与主服务端口不同时单独启动指标服务器，避免公开暴露
	var metricsServer *http.Server
	if m != nil {
		if cfg.Server.MetricsPort != 0 && cfg.Server.MetricsPort != cfg.Server.HTTPPort {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			metricsServer = &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			go func() {
				logger.WithField("port", cfg.Server.MetricsPort).Info("Starting metrics server")
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Fatal("Metrics server failed")
				}
			}()
		} else {
			routerCfg.Metrics = m.Handler()
		}
	}

	// 写超时为 0：日志流是长连接，其余请求由路由的超时中间件约束
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		eventLog.Logf(domain.LevelInfo, domain.SourceAutomation, "LocalCloud Kit API server running on port %d", cfg.Server.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// 监听 SIGINT (Ctrl+C) 和 SIGTERM (容器停止) 信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown error")
		}
	}

	logger.Info("Server stopped")
}

// configureLogger 根据配置设置日志级别与格式
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
