// Package config 提供了本地云控制台的配置管理功能。
// 该包负责从 YAML 配置文件加载配置，并支持通过环境变量覆盖部署相关与敏感配置项（如密码和密钥）。
// 配置包含了服务器、项目、供应后端、操作日志、健康检查、缓存、事件、认证、日志、指标和遥测等多个方面的设置。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是应用程序的主配置结构体，包含所有子系统的配置。
// 该结构体通过 YAML 标签与配置文件进行映射。
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server"`
	// Project 项目与模拟环境配置，进程生命周期内只读
	Project ProjectConfig `yaml:"project"`
	// Backend 供应脚本的执行配置
	Backend BackendConfig `yaml:"backend"`
	// EventLog 操作日志缓冲配置
	EventLog EventLogConfig `yaml:"eventlog"`
	// Health 模拟环境健康检查配置
	Health HealthConfig `yaml:"health"`
	// Cache Redis 缓存控制台配置
	Cache CacheConfig `yaml:"cache"`
	// Events NATS 事件总线配置
	Events EventsConfig `yaml:"events"`
	// Auth 认证配置
	Auth AuthConfig `yaml:"auth"`
	// Logging 日志配置
	Logging LoggingConfig `yaml:"logging"`
	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics"`
	// Telemetry 分布式追踪配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig 服务器配置结构体。
type ServerConfig struct {
	// HTTPPort HTTP API 服务端口，可通过 PORT 环境变量覆盖
	// 默认值：3031
	HTTPPort int `yaml:"http_port"`
	// MetricsPort 指标服务端口；为 0 时 /metrics 挂在 API 端口上
	MetricsPort int `yaml:"metrics_port"`
	// ShutdownTimeout 优雅关闭超时时间
	// 默认值：30 秒
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RequestTimeout 单个 HTTP 请求的处理超时，需要大于供应脚本的超时
	// 默认值：3 分钟
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// CORSOrigin 允许的跨域来源
	// 默认值：*
	CORSOrigin string `yaml:"cors_origin"`
}

// ProjectConfig 项目配置结构体。
type ProjectConfig struct {
	// Name 默认项目名称，请求未指定项目时使用
	// 默认值：localstack-dev
	Name string `yaml:"name"`
	// Endpoint 后端访问模拟环境的内部地址
	// 默认值：http://localstack:4566
	Endpoint string `yaml:"endpoint"`
	// PublicEndpoint 展示给用户的地址
	// 默认值：http://localhost:4566
	PublicEndpoint string `yaml:"public_endpoint"`
	// Region 模拟环境区域
	// 默认值：us-east-1
	Region string `yaml:"region"`
}

// BackendConfig 供应后端配置结构体。
type BackendConfig struct {
	// ScriptsDir 供应脚本所在目录
	// 默认值：/app/scripts/shell
	ScriptsDir string `yaml:"scripts_dir"`
	// Shell 执行脚本使用的解释器，为空时直接执行脚本
	// 默认值：/bin/sh
	Shell string `yaml:"shell"`
	// Timeout 单次调用超时
	// 默认值：2 分钟
	Timeout time.Duration `yaml:"timeout"`
	// AWSBinary 直接调用的命令行工具（表结构、密钥查询）
	// 默认值：aws
	AWSBinary string `yaml:"aws_binary"`
	// Environment 传给脚本的环境名
	// 默认值：local
	Environment string `yaml:"environment"`
	// Env 额外注入脚本的环境变量
	Env map[string]string `yaml:"env"`
}

// EventLogConfig 操作日志配置结构体。
type EventLogConfig struct {
	// Capacity 保留的日志条数
	// 默认值：1000
	Capacity int `yaml:"capacity"`
	// SubscriberBuffer 每个实时订阅者的通道缓冲
	// 默认值：256
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// HealthConfig 健康检查配置结构体。
type HealthConfig struct {
	// Enabled 是否启用定时健康检查
	// 默认值：true
	Enabled *bool `yaml:"enabled"`
	// Schedule 秒级 cron 表达式
	// 默认值：*/30 * * * * *
	Schedule string `yaml:"schedule"`
	// Timeout 单次检查超时
	// 默认值：5 秒
	Timeout time.Duration `yaml:"timeout"`
	// InitialDelay 启动后首次检查延迟
	// 默认值：2 秒
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// IsEnabled 返回是否启用健康检查，未配置时默认启用
func (h HealthConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// CacheConfig Redis 缓存配置结构体。
type CacheConfig struct {
	// Enabled 是否启用缓存控制台
	Enabled bool `yaml:"enabled"`
	// Address Redis 服务器地址，格式为 "host:port"
	// 默认值：redis:6379
	Address string `yaml:"address"`
	// Password Redis 密码，可通过环境变量 LOCALCLOUD_REDIS_PASSWORD 或
	// LOCALCLOUD_REDIS_PASSWORD_FILE（文件路径）覆盖
	Password string `yaml:"password"`
	// DB Redis 数据库编号（0-15）
	DB int `yaml:"db"`
}

// EventsConfig 事件配置结构体。
type EventsConfig struct {
	// Enabled 是否将操作日志与资源事件发布到 NATS
	Enabled bool `yaml:"enabled"`
	// NatsURL NATS 消息服务器 URL，如 "nats://localhost:4222"
	NatsURL string `yaml:"nats_url"`
}

// AuthConfig 认证配置结构体。
// 启用后，修改类接口需要携带 Bearer 令牌。
type AuthConfig struct {
	// Enabled 是否启用认证
	Enabled bool `yaml:"enabled"`
	// JWTSecret JWT 签名密钥，可通过环境变量 LOCALCLOUD_AUTH_JWT_SECRET 或
	// LOCALCLOUD_AUTH_JWT_SECRET_FILE（文件路径）覆盖
	JWTSecret string `yaml:"jwt_secret"`
	// JWTExpiration 签发令牌的有效期
	// 默认值：24 小时
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
}

// LoggingConfig 日志配置结构体。
type LoggingConfig struct {
	// Level 日志级别，可选值：debug、info、warn、error
	Level string `yaml:"level"`
	// Format 日志格式，可选值：json、text
	Format string `yaml:"format"`
}

// MetricsConfig 指标配置结构体。
type MetricsConfig struct {
	// Enabled 是否启用指标收集
	Enabled bool `yaml:"enabled"`
	// Namespace 指标命名空间前缀
	// 默认值：localcloud
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig 遥测配置结构体。
// 定义了分布式追踪的相关设置，支持 OpenTelemetry 协议。
type TelemetryConfig struct {
	// Enabled 是否启用遥测
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP 端点地址（如 "tempo:4317"）
	// 默认值：tempo:4317
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名称，用于追踪标识
	// 默认值：localcloud-api
	ServiceName string `yaml:"service_name"`
	// SampleRate 采样率，范围 0.0 到 1.0
	// 默认值：0.1（10% 采样）
	SampleRate float64 `yaml:"sample_rate"`
	// Environment 环境标识（如 production、staging、development）
	// 默认值：development
	Environment string `yaml:"environment"`
}

// Load 从指定路径加载配置文件。
// path 为空时不读取文件，只使用默认值与环境变量。
//
// 参数：
//   - path: 配置文件的路径
//
// 返回值：
//   - *Config: 加载并处理后的配置对象
//   - error: 如果读取或解析失败则返回错误
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置取值范围
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}
	if c.EventLog.Capacity <= 0 {
		return fmt.Errorf("invalid eventlog.capacity: %d", c.EventLog.Capacity)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("invalid telemetry.sample_rate: %v", c.Telemetry.SampleRate)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}

// applyEnvOverrides 应用环境变量覆盖。
// 敏感配置项支持两种方式：
// 1. 直接设置环境变量（如 LOCALCLOUD_REDIS_PASSWORD）
// 2. 通过 _FILE 后缀指定包含密钥的文件路径（如 LOCALCLOUD_REDIS_PASSWORD_FILE）
// _FILE 方式优先级更高，适用于 Docker Secrets 等场景。
func (c *Config) applyEnvOverrides() {
	if v := readEnvOrFileAny(
		[]string{"LOCALCLOUD_REDIS_PASSWORD"},
		[]string{"LOCALCLOUD_REDIS_PASSWORD_FILE"},
	); v != "" {
		c.Cache.Password = v
	}
	if v := readEnvOrFileAny(
		[]string{"LOCALCLOUD_AUTH_JWT_SECRET"},
		[]string{"LOCALCLOUD_AUTH_JWT_SECRET_FILE"},
	); v != "" {
		c.Auth.JWTSecret = v
	}

	// 部署相关配置
	if v := readEnvOrFileAny([]string{"LOCALCLOUD_HTTP_PORT", "PORT"}, nil); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
	overrideString(&c.Project.Name, "LOCALCLOUD_PROJECT_NAME")
	overrideString(&c.Project.Endpoint, "LOCALCLOUD_AWS_ENDPOINT", "LOCALSTACK_ENDPOINT")
	overrideString(&c.Project.PublicEndpoint, "LOCALCLOUD_PUBLIC_ENDPOINT", "AWS_ENDPOINT_URL")
	overrideString(&c.Project.Region, "LOCALCLOUD_AWS_REGION", "AWS_DEFAULT_REGION")
	overrideString(&c.Backend.ScriptsDir, "LOCALCLOUD_SCRIPTS_DIR")
	overrideString(&c.Cache.Address, "LOCALCLOUD_REDIS_ADDRESS")
	overrideString(&c.Events.NatsURL, "LOCALCLOUD_NATS_URL")
	overrideString(&c.Logging.Level, "LOCALCLOUD_LOG_LEVEL")
}

// overrideString 使用第一个非空的环境变量覆盖目标值
func overrideString(dst *string, envKeys ...string) {
	if v := readEnvOrFileAny(envKeys, nil); v != "" {
		*dst = v
	}
}

// readEnvOrFileAny 从环境变量或文件读取配置值。
// 优先从 fileKeys 指定的文件路径读取，如果文件不存在或读取失败，
// 则从 envKeys 指定的环境变量读取。
//
// 参数：
//   - envKeys: 直接存储值的环境变量名（按优先级从高到低）
//   - fileKeys: 存储文件路径的环境变量名（按优先级从高到低）
//
// 返回值：
//   - string: 读取到的配置值，如果都未设置则返回空字符串
func readEnvOrFileAny(envKeys []string, fileKeys []string) string {
	for _, fileKey := range fileKeys {
		if filePath := strings.TrimSpace(os.Getenv(fileKey)); filePath != "" {
			if b, err := os.ReadFile(filePath); err == nil {
				return strings.TrimSpace(string(b))
			}
		}
	}

	for _, envKey := range envKeys {
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			return v
		}
	}

	return ""
}

// applyDefaults 应用默认配置值。
// 该方法为未设置的配置项填充合理的默认值，确保应用可以正常运行。
func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 3031
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.CORSOrigin == "" {
		c.Server.CORSOrigin = "*"
	}

	if c.Project.Name == "" {
		c.Project.Name = "localstack-dev"
	}
	if c.Project.Endpoint == "" {
		c.Project.Endpoint = "http://localstack:4566"
	}
	if c.Project.PublicEndpoint == "" {
		c.Project.PublicEndpoint = "http://localhost:4566"
	}
	if c.Project.Region == "" {
		c.Project.Region = "us-east-1"
	}

	if c.Backend.ScriptsDir == "" {
		c.Backend.ScriptsDir = "/app/scripts/shell"
	}
	if c.Backend.Shell == "" {
		c.Backend.Shell = "/bin/sh"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 2 * time.Minute
	}
	if c.Backend.AWSBinary == "" {
		c.Backend.AWSBinary = "aws"
	}
	if c.Backend.Environment == "" {
		c.Backend.Environment = "local"
	}
	// 请求超时需要覆盖一次完整的批量创建
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = c.Backend.Timeout + time.Minute
	}

	if c.EventLog.Capacity == 0 {
		c.EventLog.Capacity = 1000
	}
	if c.EventLog.SubscriberBuffer == 0 {
		c.EventLog.SubscriberBuffer = 256
	}

	if c.Health.Schedule == "" {
		c.Health.Schedule = "*/30 * * * * *"
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = 5 * time.Second
	}
	if c.Health.InitialDelay == 0 {
		c.Health.InitialDelay = 2 * time.Second
	}

	if c.Cache.Address == "" {
		c.Cache.Address = "redis:6379"
	}

	if c.Auth.JWTExpiration == 0 {
		c.Auth.JWTExpiration = 24 * time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "localcloud"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "localcloud-api"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "tempo:4317"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 0.1
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
}
