// Package api 提供本地云控制台的 HTTP API。
// 处理器只负责请求解析与响应编码，资源编排、清单查询、健康状态与缓存管理
// 分别委托给 orchestrator、inventory、health 与 cache 包。
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/cache"
	"github.com/oriys/localcloud/internal/config"
	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/eventlog"
	"github.com/oriys/localcloud/internal/inventory"
	"github.com/oriys/localcloud/internal/orchestrator"
	"github.com/oriys/localcloud/internal/telemetry"
)

// ServiceName /health 返回的服务名
const ServiceName = "LocalCloud Kit API"

// maxBodyBytes 请求体大小上限
const maxBodyBytes = 1 << 20

// StatusProvider 提供模拟环境的最新状态
type StatusProvider interface {
	Status() domain.EmulatorStatus
}

// HandlerConfig 处理器依赖
type HandlerConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Inventory    *inventory.Service
	Health       StatusProvider
	// Cache 为 nil 时缓存接口返回 503
	Cache   *cache.Service
	Events  *eventlog.EventLog
	Project config.ProjectConfig
	Version string
	Logger  *logrus.Logger
}

// Handler API 处理器
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	inventory    *inventory.Service
	health       StatusProvider
	cache        *cache.Service
	events       *eventlog.EventLog
	project      config.ProjectConfig
	version      string
	logger       *logrus.Logger
}

// NewHandler 创建 API 处理器
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}
	return &Handler{
		orchestrator: cfg.Orchestrator,
		inventory:    cfg.Inventory,
		health:       cfg.Health,
		cache:        cfg.Cache,
		events:       cfg.Events,
		project:      cfg.Project,
		version:      version,
		logger:       logger,
	}
}

// Response 统一响应结构。
// 批量创建与销毁接口直接返回各自的结果对象，其中同样包含 success 字段。
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// writeJSON 将 data 编码为 JSON 写入响应
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeData 写入成功响应
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// writeErrorWithContext 写入失败响应，附带请求 ID 与追踪 ID
func writeErrorWithContext(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, Response{
		Success:   false,
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
		TraceID:   telemetry.TraceIDFromContext(r.Context()),
	})
}

// statusFor 将领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case domain.IsConfigError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTableNotFound),
		errors.Is(err, domain.ErrObjectNotFound),
		errors.Is(err, domain.ErrSecretNotFound),
		errors.Is(err, domain.ErrCacheKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCacheUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeDomainError 按错误类型写入失败响应
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorWithContext(w, r, statusFor(err), err.Error())
}

// decodeJSON 解析请求体，空请求体视为错误
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body", domain.ErrMissingField)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

// projectName 返回请求中的项目名，未指定时使用配置的默认项目
func (h *Handler) projectName(r *http.Request) string {
	q := r.URL.Query()
	for _, key := range []string{"projectName", "project"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
	}
	return h.project.Name
}

func (h *Handler) requestEntry(r *http.Request, method string, fields logrus.Fields) *logrus.Entry {
	entry := h.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       r.URL.Path,
		"remote_ip":  r.RemoteAddr,
		"request_id": middleware.GetReqID(r.Context()),
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	return telemetry.EntryWithTraceContext(r.Context(), entry)
}

// logInfo 记录信息级别日志
func (h *Handler) logInfo(r *http.Request, method, message string, fields logrus.Fields) {
	h.requestEntry(r, method, fields).Info(message)
}

// logWarn 记录警告级别日志
func (h *Handler) logWarn(r *http.Request, method, message string, fields logrus.Fields) {
	h.requestEntry(r, method, fields).Warn(message)
}

// logError 记录错误级别日志
func (h *Handler) logError(r *http.Request, method, message string, err error, fields logrus.Fields) {
	h.requestEntry(r, method, fields).WithError(err).Error(message)
}

// Health 服务自身的健康检查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"service":   ServiceName,
		"version":   h.version,
	})
}

// EmulatorStatus 返回模拟环境状态，地址替换为面向用户的地址
func (h *Handler) EmulatorStatus(w http.ResponseWriter, r *http.Request) {
	status := domain.EmulatorStatus{Health: domain.HealthUnknown}
	if h.health != nil {
		status = h.health.Status()
	}
	status.Endpoint = h.project.PublicEndpoint
	writeData(w, status)
}

// EmulatorLogs 返回操作日志快照。
//
// Query 参数：
//   - level: 只返回指定级别（可选）
//   - limit: 只返回最近的 N 条（可选）
func (h *Handler) EmulatorLogs(w http.ResponseWriter, r *http.Request) {
	entries := h.events.Snapshot()

	if level := domain.LogLevel(r.URL.Query().Get("level")); level != "" {
		if !level.Valid() {
			writeErrorWithContext(w, r, http.StatusBadRequest, fmt.Sprintf("invalid level %q", level))
			return
		}
		filtered := entries[:0]
		for _, e := range entries {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	writeData(w, entries)
}

// ProjectConfig 返回项目配置，地址替换为面向用户的地址
func (h *Handler) ProjectConfig(w http.ResponseWriter, r *http.Request) {
	writeData(w, domain.ProjectConfig{
		ProjectName: h.project.Name,
		AWSEndpoint: h.project.PublicEndpoint,
		AWSRegion:   h.project.Region,
	})
}

// Templates 返回资源模板目录
func (h *Handler) Templates(w http.ResponseWriter, r *http.Request) {
	writeData(w, domain.Templates())
}
