// Package api 提供本地云控制台的 HTTP API。
// 该文件负责配置HTTP路由器和中间件，将HTTP请求映射到相应的处理器方法。
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oriys/localcloud/internal/auth"
	"github.com/oriys/localcloud/internal/telemetry"
)

// RouterConfig 路由器配置选项
type RouterConfig struct {
	// Handler API处理器
	Handler *Handler
	// Console 控制台日志流处理器
	Console *ConsoleHandler
	// Auth 写操作鉴权中间件（可选）
	Auth *auth.Middleware
	// Metrics 指标处理器（可选）；为 nil 时不注册 /metrics
	Metrics http.Handler
	// ServiceName 追踪中的服务名
	ServiceName string
	// RequestTimeout API 请求超时时间，需覆盖最慢的后端调用
	RequestTimeout time.Duration
	// CORSOrigin 允许的跨域来源，默认 "*"
	CORSOrigin string
}

// NewRouter 创建并配置HTTP路由器。
//
// 路由结构：
//
//	/health                    - 服务健康检查
//	/metrics                   - Prometheus指标端点
//	/api/v1/emulator/*         - 模拟环境状态与操作日志
//	/api/v1/resources/*        - 资源编排
//	/api/v1/config/*           - 项目配置与模板
//	/api/v1/s3/*               - 存储桶与对象
//	/api/v1/dynamodb/*         - 表
//	/api/v1/secrets/*          - 密钥
//	/api/v1/cache/*            - 缓存控制台
//	/api/console/logs/stream   - 实时日志流（WebSocket）
func NewRouter(cfg *RouterConfig) *chi.Mux {
	h := cfg.Handler
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "localcloud-api"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	r := chi.NewRouter()

	// 中间件按照添加顺序执行，形成洋葱模型
	r.Use(telemetry.HTTPMiddleware(serviceName))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.CORSOrigin))

	r.Get("/health", h.Health)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	// API v1 路由组
	r.Route("/api/v1", func(r chi.Router) {
		// 压缩与超时只作用于普通请求，不包括 WebSocket
		r.Use(middleware.Compress(5, "application/json"))
		r.Use(middleware.Timeout(timeout))
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Authenticate)
		}

		r.Route("/emulator", func(r chi.Router) {
			r.Get("/status", h.EmulatorStatus)
			r.Get("/logs", h.EmulatorLogs)
		})

		r.Route("/resources", func(r chi.Router) {
			r.Get("/", h.ListResources)
			r.Post("/", h.CreateResources)
			r.Post("/single", h.CreateSingleResource)
			r.Post("/destroy", h.DestroyResources)
			r.Post("/destroy-single", h.DestroySingleResource)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/project", h.ProjectConfig)
			r.Get("/templates", h.Templates)
		})

		r.Route("/s3/buckets", func(r chi.Router) {
			r.Get("/", h.ListBuckets)
			r.Route("/{bucket}/objects", func(r chi.Router) {
				r.Get("/", h.ListBucketContents)
				// 对象键可以包含 "/"，使用通配段
				r.Get("/*", h.GetObject)
				r.Delete("/*", h.DeleteObject)
			})
		})

		r.Route("/dynamodb/tables", func(r chi.Router) {
			r.Get("/", h.ListTables)
			r.Route("/{table}", func(r chi.Router) {
				r.Get("/scan", h.ScanTable)
				r.Get("/query", h.QueryTable)
				r.Get("/schema", h.TableSchema)
				r.Post("/items", h.PutItem)
			})
		})

		r.Route("/secrets", func(r chi.Router) {
			r.Get("/", h.ListSecrets)
			r.Get("/{name}", h.GetSecret)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/status", h.CacheStatus)
			r.Get("/keys", h.CacheKeys)
			r.Post("/flush", h.CacheFlush)
			r.Get("/{key}", h.CacheGet)
			r.Put("/{key}", h.CacheSet)
			r.Delete("/{key}", h.CacheDelete)
		})
	})

	if cfg.Console != nil {
		r.Get("/api/console/logs/stream", cfg.Console.LogStream)
	}

	return r
}

// corsMiddleware 是处理跨域资源共享(CORS)的中间件。
//
// 功能说明：
//   - 设置允许的来源，默认允许所有来源
//   - 允许的HTTP方法：GET, POST, PUT, DELETE, OPTIONS
//   - 允许的请求头：Content-Type, Authorization
//   - 处理预检请求（OPTIONS方法）
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			// 浏览器在发送跨域请求前会先发送OPTIONS请求来检查服务器是否允许
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
