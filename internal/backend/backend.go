// Package backend 定义了资源供应后端的抽象，以及基于外部脚本的实现。
//
// 后端对核心逻辑而言是一个黑盒：每次调用产生一个主输出流（结构化操作期望为 JSON，
// 对象下载为原始字节）和一个诊断输出流（默认视为警告文本）。
// 进程无法启动、非零退出或超时都视为调用失败，与输出内容无关。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oriys/localcloud/internal/domain"
)

// Action 表示一次后端调用的动作
type Action string

const (
	ActionCreate       Action = "create"
	ActionDestroy      Action = "destroy"
	ActionDestroyOne   Action = "destroy-single"
	ActionList         Action = "list"
	ActionListObjects  Action = "list-objects"
	ActionGetObject    Action = "get-object"
	ActionDeleteObject Action = "delete-object"
	ActionListTables   Action = "list-tables"
	ActionScan         Action = "scan"
	ActionQuery        Action = "query"
	ActionDescribe     Action = "describe"
	ActionPutItem      Action = "put-item"
	ActionListSecrets  Action = "list-secrets"
	ActionGetSecret    Action = "get-secret"
)

// Output 一次成功调用的输出
type Output struct {
	Stdout   []byte
	Stderr   string
	Duration time.Duration
}

// Warning 返回去除首尾空白的诊断输出
func (o *Output) Warning() string {
	if o == nil {
		return ""
	}
	return strings.TrimSpace(o.Stderr)
}

// ProvisioningBackend 资源供应后端，每个动作对应一个方法。
// 所有方法在调用失败时返回 *InvocationError。
type ProvisioningBackend interface {
	// Create 为项目创建一个指定类型的资源，config 为可选的 JSON 配置
	Create(ctx context.Context, project string, kind domain.ResourceKind, config json.RawMessage) (*Output, error)
	// Destroy 销毁项目中的一组资源；ids 为空表示全部
	Destroy(ctx context.Context, project string, ids []string) (*Output, error)
	// DestroyOne 按类型和名称销毁单个资源
	DestroyOne(ctx context.Context, project string, kind domain.ResourceKind, name string) (*Output, error)
	// ListResources 列出项目的全部资源
	ListResources(ctx context.Context, project string) (*Output, error)
	ListBucketContents(ctx context.Context, project, bucket string) (*Output, error)
	GetObject(ctx context.Context, project, bucket, key string) (*Output, error)
	DeleteObject(ctx context.Context, project, bucket, key string) (*Output, error)
	ListTables(ctx context.Context, project string) (*Output, error)
	Scan(ctx context.Context, project, table string, limit int) (*Output, error)
	Query(ctx context.Context, project string, q domain.QuerySpec) (*Output, error)
	DescribeTable(ctx context.Context, project, table string) (*Output, error)
	// PutItem 写入一条线上格式的记录
	PutItem(ctx context.Context, project, table string, item json.RawMessage) (*Output, error)
	ListSecrets(ctx context.Context, project string) (*Output, error)
	// GetSecret 获取密钥描述；includeValue 为 true 时同时获取密钥值
	GetSecret(ctx context.Context, project, name string, includeValue bool) (*Output, error)
}

// InvocationError 表示后端调用失败（无法启动、非零退出或超时）
type InvocationError struct {
	Action   Action
	Kind     domain.ResourceKind
	Err      error
	Stderr   string
	TimedOut bool
	Timeout  time.Duration
}

// Error 实现 error 接口。优先展示诊断输出，便于在日志中直接看到失败原因。
func (e *InvocationError) Error() string {
	if e.TimedOut {
		if e.Timeout > 0 {
			return fmt.Sprintf("%s timed out after %s", e.Action, e.Timeout)
		}
		return fmt.Sprintf("%s timed out", e.Action)
	}
	stderr := Truncate([]byte(e.Stderr), 512)
	switch {
	case e.Err != nil && stderr != "":
		return fmt.Sprintf("%v: %s", e.Err, stderr)
	case e.Err != nil:
		return e.Err.Error()
	case stderr != "":
		return stderr
	}
	return fmt.Sprintf("%s failed", e.Action)
}

// Unwrap 返回底层错误
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// IsInvocationError 判断错误是否为后端调用失败
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}

// ExtractJSON 从主输出中提取 JSON。
// 整体是合法 JSON 时直接返回；否则取最后一个非空且合法的 JSON 行（脚本可能先打印进度信息）。
// 空输出视为无法解析。返回值是输入的副本。
func ExtractJSON(stdout []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil, false
	}

	if json.Valid(trimmed) {
		return append([]byte(nil), trimmed...), true
	}

	lines := bytes.Split(trimmed, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		if json.Valid(line) {
			return append([]byte(nil), line...), true
		}
	}

	return nil, false
}

// Truncate 截断过长的输出用于日志和错误信息
func Truncate(b []byte, max int) string {
	b = bytes.TrimSpace(b)
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
