package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv 清空会影响配置加载的环境变量
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOCALCLOUD_HTTP_PORT", "LOCALCLOUD_PROJECT_NAME",
		"LOCALCLOUD_AWS_ENDPOINT", "LOCALSTACK_ENDPOINT",
		"LOCALCLOUD_PUBLIC_ENDPOINT", "AWS_ENDPOINT_URL",
		"LOCALCLOUD_AWS_REGION", "AWS_DEFAULT_REGION",
		"LOCALCLOUD_SCRIPTS_DIR", "LOCALCLOUD_REDIS_ADDRESS", "LOCALCLOUD_NATS_URL",
		"LOCALCLOUD_LOG_LEVEL",
		"LOCALCLOUD_REDIS_PASSWORD", "LOCALCLOUD_REDIS_PASSWORD_FILE",
		"LOCALCLOUD_AUTH_JWT_SECRET", "LOCALCLOUD_AUTH_JWT_SECRET_FILE",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"http port", cfg.Server.HTTPPort, 3031},
		{"project", cfg.Project.Name, "localstack-dev"},
		{"endpoint", cfg.Project.Endpoint, "http://localstack:4566"},
		{"public endpoint", cfg.Project.PublicEndpoint, "http://localhost:4566"},
		{"region", cfg.Project.Region, "us-east-1"},
		{"backend timeout", cfg.Backend.Timeout, 2 * time.Minute},
		{"request timeout", cfg.Server.RequestTimeout, 3 * time.Minute},
		{"capacity", cfg.EventLog.Capacity, 1000},
		{"subscriber buffer", cfg.EventLog.SubscriberBuffer, 256},
		{"health schedule", cfg.Health.Schedule, "*/30 * * * * *"},
		{"health timeout", cfg.Health.Timeout, 5 * time.Second},
		{"health delay", cfg.Health.InitialDelay, 2 * time.Second},
		{"health enabled", cfg.Health.IsEnabled(), true},
		{"metrics namespace", cfg.Metrics.Namespace, "localcloud"},
		{"service name", cfg.Telemetry.ServiceName, "localcloud-api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  http_port: 8088
project:
  name: shop
  region: eu-west-1
backend:
  scripts_dir: /opt/scripts
  timeout: 30s
  env:
    TF_LOG: debug
health:
  enabled: false
cache:
  enabled: true
  address: localhost:6380
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8088 || cfg.Project.Name != "shop" || cfg.Project.Region != "eu-west-1" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Backend.Timeout != 30*time.Second || cfg.Backend.Env["TF_LOG"] != "debug" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Server.RequestTimeout != 90*time.Second {
		t.Errorf("request timeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Health.IsEnabled() {
		t.Error("health should be disabled")
	}
	if !cfg.Cache.Enabled || cfg.Cache.Address != "localhost:6380" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)

	secretFile := filepath.Join(t.TempDir(), "jwt")
	if err := os.WriteFile(secretFile, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "4000")
	t.Setenv("LOCALCLOUD_PROJECT_NAME", "env-project")
	t.Setenv("LOCALCLOUD_REDIS_PASSWORD", "pw")
	t.Setenv("LOCALCLOUD_AUTH_JWT_SECRET", "from-env")
	t.Setenv("LOCALCLOUD_AUTH_JWT_SECRET_FILE", secretFile)

	cfg, err := Load(writeConfig(t, "project:\n  name: file-project\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 4000 {
		t.Errorf("port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Project.Name != "env-project" {
		t.Errorf("project = %q", cfg.Project.Name)
	}
	if cfg.Cache.Password != "pw" {
		t.Errorf("redis password = %q", cfg.Cache.Password)
	}
	// _FILE 优先于直接环境变量
	if cfg.Auth.JWTSecret != "from-file" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "server: [1, 2"},
		{"bad port", "server:\n  http_port: 70000\n"},
		{"auth without secret", "auth:\n  enabled: true\n"},
		{"bad sample rate", "telemetry:\n  sample_rate: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
