// Package backendtest 提供用于测试的内存供应后端。
package backendtest

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"github.com/oriys/localcloud/internal/backend"
	"github.com/oriys/localcloud/internal/domain"
)

// Call 记录一次后端调用
type Call struct {
	Action  backend.Action
	Project string
	Kind    domain.ResourceKind
	Args    []string
	Config  json.RawMessage

	// CtxErr 为调用发生时上下文的错误状态
	CtxErr error
}

// Fake 记录所有调用，并通过 Respond 决定每次调用的结果。
// Respond 为 nil 时返回空输出。
type Fake struct {
	mu      sync.Mutex
	calls   []Call
	Respond func(call Call) (*backend.Output, error)
}

// Calls 返回已记录调用的副本
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) do(ctx context.Context, call Call) (*backend.Output, error) {
	call.CtxErr = ctx.Err()
	f.mu.Lock()
	f.calls = append(f.calls, call)
	respond := f.Respond
	f.mu.Unlock()

	if respond == nil {
		return &backend.Output{}, nil
	}
	return respond(call)
}

// Stdout 构造只有主输出的结果
func Stdout(s string) *backend.Output {
	return &backend.Output{Stdout: []byte(s)}
}

// JSON 将 v 编码为主输出
func JSON(v any) *backend.Output {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return &backend.Output{Stdout: b}
}

// Fail 构造一次调用失败
func Fail(call Call, msg string) error {
	return &backend.InvocationError{
		Action: call.Action,
		Kind:   call.Kind,
		Err:    errors.New(msg),
	}
}

func (f *Fake) Create(ctx context.Context, project string, kind domain.ResourceKind, config json.RawMessage) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionCreate, Project: project, Kind: kind, Config: config})
}

func (f *Fake) Destroy(ctx context.Context, project string, ids []string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionDestroy, Project: project, Args: append([]string(nil), ids...)})
}

func (f *Fake) DestroyOne(ctx context.Context, project string, kind domain.ResourceKind, name string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionDestroyOne, Project: project, Kind: kind, Args: []string{name}})
}

func (f *Fake) ListResources(ctx context.Context, project string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionList, Project: project})
}

func (f *Fake) ListBucketContents(ctx context.Context, project, bucket string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionListObjects, Project: project, Kind: domain.KindObjectStore, Args: []string{bucket}})
}

func (f *Fake) GetObject(ctx context.Context, project, bucket, key string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionGetObject, Project: project, Kind: domain.KindObjectStore, Args: []string{bucket, key}})
}

func (f *Fake) DeleteObject(ctx context.Context, project, bucket, key string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionDeleteObject, Project: project, Kind: domain.KindObjectStore, Args: []string{bucket, key}})
}

func (f *Fake) ListTables(ctx context.Context, project string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionListTables, Project: project, Kind: domain.KindKVTable})
}

func (f *Fake) Scan(ctx context.Context, project, table string, limit int) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionScan, Project: project, Kind: domain.KindKVTable, Args: []string{table, strconv.Itoa(limit)}})
}

func (f *Fake) Query(ctx context.Context, project string, q domain.QuerySpec) (*backend.Output, error) {
	return f.do(ctx, Call{
		Action:  backend.ActionQuery,
		Project: project,
		Kind:    domain.KindKVTable,
		Args:    []string{q.Table, q.PartitionKey, q.PartitionValue, q.SortKey, q.SortValue, strconv.Itoa(q.Limit)},
	})
}

func (f *Fake) DescribeTable(ctx context.Context, project, table string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionDescribe, Project: project, Kind: domain.KindKVTable, Args: []string{table}})
}

func (f *Fake) PutItem(ctx context.Context, project, table string, item json.RawMessage) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionPutItem, Project: project, Kind: domain.KindKVTable, Args: []string{table}, Config: item})
}

func (f *Fake) ListSecrets(ctx context.Context, project string) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionListSecrets, Project: project, Kind: domain.KindSecretStore})
}

func (f *Fake) GetSecret(ctx context.Context, project, name string, includeValue bool) (*backend.Output, error) {
	return f.do(ctx, Call{Action: backend.ActionGetSecret, Project: project, Kind: domain.KindSecretStore, Args: []string{name, strconv.FormatBool(includeValue)}})
}

var _ backend.ProvisioningBackend = (*Fake)(nil)
