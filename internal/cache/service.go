package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/eventlog"
)

// 缓存服务状态
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Status 缓存服务状态
type Status struct {
	Status string `json:"status"`
	Info   string `json:"info,omitempty"`
	Keys   int64  `json:"keys"`
}

// Service 缓存管理服务。store 为 nil 表示缓存未启用，所有操作返回 domain.ErrCacheUnavailable。
type Service struct {
	store  Store
	events *eventlog.EventLog
	logger *logrus.Logger
}

// NewService 创建缓存管理服务
func NewService(store Store, events *eventlog.EventLog, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{store: store, events: events, logger: logger}
}

func (s *Service) logf(level domain.LogLevel, format string, args ...any) {
	s.events.Logf(level, domain.SourceAutomation, format, args...)
}

// unavailable 将存储错误包装为缓存不可用，键不存在的错误保持原样
func unavailable(err error) error {
	if err == nil || errors.Is(err, domain.ErrCacheKeyNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
}

// Status 返回缓存服务状态；不可达时返回 stopped 而不是错误。
func (s *Service) Status(ctx context.Context) Status {
	if s.store == nil {
		return Status{Status: StatusStopped, Info: "cache is disabled"}
	}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.WithError(err).Debug("Cache ping failed")
		return Status{Status: StatusStopped, Info: err.Error()}
	}

	status := Status{Status: StatusRunning}
	if info, err := s.store.Info(ctx); err == nil {
		status.Info = summarizeInfo(info)
	}
	if n, err := s.store.Size(ctx); err == nil {
		status.Keys = n
	}
	return status
}

// summarizeInfo 从 INFO 输出中提取版本与运行时长
func summarizeInfo(info string) string {
	fields := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[k] = v
		}
	}

	var parts []string
	if v := fields["redis_version"]; v != "" {
		parts = append(parts, "Redis "+v)
	}
	if v := fields["uptime_in_seconds"]; v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			parts = append(parts, "up "+d.String())
		}
	}
	return strings.Join(parts, ", ")
}

// Set 写入一个键
func (s *Service) Set(ctx context.Context, key, value string) error {
	if s.store == nil {
		return domain.ErrCacheUnavailable
	}
	if key == "" {
		return fmt.Errorf("%w: key", domain.ErrMissingField)
	}
	if err := s.store.Set(ctx, key, value, 0); err != nil {
		s.logf(domain.LevelError, "Failed to set cache key %s: %v", key, err)
		return unavailable(err)
	}
	s.logf(domain.LevelSuccess, "Cache key set: %s", key)
	return nil
}

// Get 读取一个键
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if s.store == nil {
		return "", domain.ErrCacheUnavailable
	}
	if key == "" {
		return "", fmt.Errorf("%w: key", domain.ErrMissingField)
	}
	val, err := s.store.Get(ctx, key)
	return val, unavailable(err)
}

// Delete 删除一个键，键不存在时返回 domain.ErrCacheKeyNotFound
func (s *Service) Delete(ctx context.Context, key string) error {
	if s.store == nil {
		return domain.ErrCacheUnavailable
	}
	if key == "" {
		return fmt.Errorf("%w: key", domain.ErrMissingField)
	}
	n, err := s.store.Del(ctx, key)
	if err != nil {
		s.logf(domain.LevelError, "Failed to delete cache key %s: %v", key, err)
		return unavailable(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrCacheKeyNotFound, key)
	}
	s.logf(domain.LevelSuccess, "Cache key deleted: %s", key)
	return nil
}

// Flush 清空缓存
func (s *Service) Flush(ctx context.Context) error {
	if s.store == nil {
		return domain.ErrCacheUnavailable
	}
	if err := s.store.Flush(ctx); err != nil {
		s.logf(domain.LevelError, "Failed to flush cache: %v", err)
		return unavailable(err)
	}
	s.logf(domain.LevelWarning, "Cache flushed")
	return nil
}

// Keys 按字典序返回匹配的键
func (s *Service) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.store == nil {
		return nil, domain.ErrCacheUnavailable
	}
	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		return nil, unavailable(err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close 关闭底层存储
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
