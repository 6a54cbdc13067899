package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/telemetry"
)

// Observer 接收每次后端调用的结果与耗时，可为 nil
type Observer interface {
	ObserveInvocation(action Action, outcome string, duration time.Duration)
}

// 调用结果标签
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// ScriptConfig 脚本后端配置
type ScriptConfig struct {
	// ScriptsDir 供应脚本所在目录，同时作为工作目录
	ScriptsDir string
	// Shell 执行脚本使用的解释器，为空时直接执行脚本文件
	Shell string
	// AWSBinary 用于表结构与密钥查询的命令行工具
	AWSBinary string
	// Endpoint 模拟环境的内部访问地址，注入为 AWS_ENDPOINT_URL
	Endpoint string
	// Region 注入为 AWS_DEFAULT_REGION
	Region string
	// Environment 传给销毁/列举脚本的环境名
	Environment string
	// Timeout 单次调用的超时时间
	Timeout time.Duration
	// Env 额外的环境变量
	Env map[string]string
}

// ScriptBackend 通过外部 shell 脚本和命令行工具实现 ProvisioningBackend
type ScriptBackend struct {
	cfg      ScriptConfig
	logger   *logrus.Logger
	observer Observer
}

// NewScriptBackend 创建脚本后端
func NewScriptBackend(cfg ScriptConfig, logger *logrus.Logger, observer Observer) *ScriptBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.AWSBinary == "" {
		cfg.AWSBinary = "aws"
	}
	if cfg.Environment == "" {
		cfg.Environment = "local"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	// 脚本路径相对于工作目录解析，这里统一转为绝对路径
	if cfg.ScriptsDir != "" {
		if abs, err := filepath.Abs(cfg.ScriptsDir); err == nil {
			cfg.ScriptsDir = abs
		}
	}
	return &ScriptBackend{cfg: cfg, logger: logger, observer: observer}
}

// Create 实现 ProvisioningBackend
func (b *ScriptBackend) Create(ctx context.Context, project string, kind domain.ResourceKind, config json.RawMessage) (*Output, error) {
	args := []string{project, string(kind)}
	if len(bytes.TrimSpace(config)) > 0 && !bytes.Equal(bytes.TrimSpace(config), []byte("null")) {
		args = append(args, "--config", string(config))
	}
	return b.script(ctx, ActionCreate, kind, "create_single_resource.sh", args...)
}

// Destroy 实现 ProvisioningBackend
func (b *ScriptBackend) Destroy(ctx context.Context, project string, ids []string) (*Output, error) {
	args := append([]string{project, b.cfg.Environment}, ids...)
	return b.script(ctx, ActionDestroy, "", "destroy_resources.sh", args...)
}

// DestroyOne 实现 ProvisioningBackend
func (b *ScriptBackend) DestroyOne(ctx context.Context, project string, kind domain.ResourceKind, name string) (*Output, error) {
	return b.script(ctx, ActionDestroyOne, kind, "destroy_single_resource.sh", project, string(kind), name)
}

// ListResources 实现 ProvisioningBackend
func (b *ScriptBackend) ListResources(ctx context.Context, project string) (*Output, error) {
	return b.script(ctx, ActionList, "", "list_resources.sh", project, b.cfg.Environment, "--all")
}

// ListBucketContents 实现 ProvisioningBackend
func (b *ScriptBackend) ListBucketContents(ctx context.Context, project, bucket string) (*Output, error) {
	args := []string{project, "dev"}
	if bucket != "" {
		args = append(args, bucket)
	}
	return b.script(ctx, ActionListObjects, domain.KindObjectStore, "list_bucket_contents.sh", args...)
}

// GetObject 实现 ProvisioningBackend
func (b *ScriptBackend) GetObject(ctx context.Context, project, bucket, key string) (*Output, error) {
	return b.script(ctx, ActionGetObject, domain.KindObjectStore, "download_s3_object.sh", project, bucket, key)
}

// DeleteObject 实现 ProvisioningBackend
func (b *ScriptBackend) DeleteObject(ctx context.Context, project, bucket, key string) (*Output, error) {
	return b.script(ctx, ActionDeleteObject, domain.KindObjectStore, "delete_s3_object.sh", project, bucket, key)
}

// ListTables 实现 ProvisioningBackend
func (b *ScriptBackend) ListTables(ctx context.Context, project string) (*Output, error) {
	return b.script(ctx, ActionListTables, domain.KindKVTable, "list_dynamodb_tables.sh", project, "--all")
}

// Scan 实现 ProvisioningBackend
func (b *ScriptBackend) Scan(ctx context.Context, project, table string, limit int) (*Output, error) {
	return b.script(ctx, ActionScan, domain.KindKVTable, "scan_dynamodb_table.sh", project, table, strconv.Itoa(limit))
}

// Query 实现 ProvisioningBackend
func (b *ScriptBackend) Query(ctx context.Context, project string, q domain.QuerySpec) (*Output, error) {
	return b.script(ctx, ActionQuery, domain.KindKVTable, "query_dynamodb_table.sh",
		project, q.Table, q.PartitionKey, q.PartitionValue, q.SortKey, q.SortValue, strconv.Itoa(q.Limit))
}

// DescribeTable 实现 ProvisioningBackend
func (b *ScriptBackend) DescribeTable(ctx context.Context, project, table string) (*Output, error) {
	return b.tool(ctx, ActionDescribe, domain.KindKVTable,
		"dynamodb", "describe-table", "--table-name", table)
}

// PutItem 实现 ProvisioningBackend
func (b *ScriptBackend) PutItem(ctx context.Context, project, table string, item json.RawMessage) (*Output, error) {
	return b.script(ctx, ActionPutItem, domain.KindKVTable, "put_dynamodb_item.sh", project, table, string(item))
}

// ListSecrets 实现 ProvisioningBackend
func (b *ScriptBackend) ListSecrets(ctx context.Context, project string) (*Output, error) {
	return b.tool(ctx, ActionListSecrets, domain.KindSecretStore, "secretsmanager", "list-secrets")
}

// GetSecret 实现 ProvisioningBackend
func (b *ScriptBackend) GetSecret(ctx context.Context, project, name string, includeValue bool) (*Output, error) {
	if includeValue {
		return b.tool(ctx, ActionGetSecret, domain.KindSecretStore, "secretsmanager", "get-secret-value", "--secret-id", name)
	}
	return b.tool(ctx, ActionGetSecret, domain.KindSecretStore, "secretsmanager", "describe-secret", "--secret-id", name)
}

// script 在脚本目录中执行一个供应脚本
func (b *ScriptBackend) script(ctx context.Context, action Action, kind domain.ResourceKind, name string, args ...string) (*Output, error) {
	path := name
	if b.cfg.ScriptsDir != "" {
		path = filepath.Join(b.cfg.ScriptsDir, name)
	}
	if b.cfg.Shell != "" {
		return b.run(ctx, action, kind, b.cfg.Shell, append([]string{path}, args...))
	}
	return b.run(ctx, action, kind, path, args)
}

// tool 执行命令行工具，附带模拟环境的地址与区域参数
func (b *ScriptBackend) tool(ctx context.Context, action Action, kind domain.ResourceKind, args ...string) (*Output, error) {
	if b.cfg.Endpoint != "" {
		args = append(args, "--endpoint-url", b.cfg.Endpoint)
	}
	if b.cfg.Region != "" {
		args = append(args, "--region", b.cfg.Region)
	}
	args = append(args, "--output", "json")
	return b.run(ctx, action, kind, b.cfg.AWSBinary, args)
}

func (b *ScriptBackend) run(ctx context.Context, action Action, kind domain.ResourceKind, name string, args []string) (out *Output, err error) {
	invocationID := uuid.New().String()
	startTime := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "backend."+string(action),
		attribute.String("backend.invocation_id", invocationID),
		attribute.String("backend.kind", string(kind)),
		attribute.String("backend.command", filepath.Base(name)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	// 创建带超时的上下文
	cmdCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Dir = b.cfg.ScriptsDir
	cmd.Env = b.environ()
	// 脚本派生的子进程可能继续持有输出管道，超时后最多再等待一秒
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	duration := time.Since(startTime)

	fields := logrus.Fields{
		"invocation_id": invocationID,
		"action":        action,
		"kind":          kind,
		"command":       filepath.Base(name),
		"duration_ms":   duration.Milliseconds(),
		"stdout":        Truncate(stdout.Bytes(), 500),
		"stderr":        Truncate(stderr.Bytes(), 500),
	}

	if err != nil {
		ie := &InvocationError{
			Action: action,
			Kind:   kind,
			Err:    err,
			Stderr: stderr.String(),
		}
		outcome := OutcomeFailure
		// 只有本次调用自身的超时才记为超时；调用方上下文结束属于普通失败
		if ctx.Err() == nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			ie.TimedOut = true
			ie.Timeout = b.cfg.Timeout
			outcome = OutcomeTimeout
		}
		b.observe(action, outcome, duration)
		telemetry.EntryWithTraceContext(ctx, b.logger.WithFields(fields)).WithError(err).Warn("Backend invocation failed")
		return nil, ie
	}

	b.observe(action, OutcomeSuccess, duration)
	b.logger.WithFields(fields).Debug("Backend invocation completed")

	return &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		Duration: duration,
	}, nil
}

func (b *ScriptBackend) observe(action Action, outcome string, d time.Duration) {
	if b.observer != nil {
		b.observer.ObserveInvocation(action, outcome, d)
	}
}

// environ 继承当前进程环境，并注入模拟环境地址、区域与额外变量
func (b *ScriptBackend) environ() []string {
	env := os.Environ()
	if b.cfg.Endpoint != "" {
		env = append(env, "AWS_ENDPOINT_URL="+b.cfg.Endpoint)
	}
	if b.cfg.Region != "" {
		env = append(env, "AWS_DEFAULT_REGION="+b.cfg.Region)
	}

	keys := make([]string, 0, len(b.cfg.Env))
	for k := range b.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, b.cfg.Env[k]))
	}
	return env
}

var _ ProvisioningBackend = (*ScriptBackend)(nil)
