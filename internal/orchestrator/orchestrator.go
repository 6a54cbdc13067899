// Package orchestrator 实现资源编排：将“为项目 X 创建/销毁这些资源”的声明式请求
// 转换为一系列相互隔离的供应调用，并汇总结果。
//
// 创建按资源类型逐个执行，某一类型失败不会中止其余类型；只要至少一个资源创建成功，
// 整体结果即视为成功。销毁是一次组合调用，诊断输出视为警告，调用失败则整体失败。
// 每一步都会写入操作日志。
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/backend"
	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/eventlog"
)

// Notifier 接收编排完成后的通知（例如发布到事件总线），可为 nil。
// 通知失败只记录日志，不影响返回结果。
type Notifier interface {
	PublishResourcesCreated(ctx context.Context, project string, result *domain.ResourceCreationResult) error
	PublishResourcesDestroyed(ctx context.Context, project string, ids []string, outcome *domain.OperationOutcome) error
}

// Observer 接收按资源类型统计的创建结果，可为 nil。
type Observer interface {
	ResourceCreated(kind domain.ResourceKind)
	ResourceFailed(kind domain.ResourceKind)
}

// Orchestrator 资源编排器
type Orchestrator struct {
	backend  backend.ProvisioningBackend
	events   *eventlog.EventLog
	notifier Notifier
	observer Observer
	logger   *logrus.Logger
	now      func() time.Time
}

// Option 编排器可选配置
type Option func(*Orchestrator)

// WithNotifier 设置完成通知
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithObserver 设置指标观察者
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger 设置结构化日志
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock 设置时钟，用于合成资源描述的创建时间
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New 创建资源编排器
func New(b backend.ProvisioningBackend, events *eventlog.EventLog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: b,
		events:  events,
		logger:  logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) logf(level domain.LogLevel, format string, args ...any) {
	o.events.Logf(level, domain.SourceAutomation, format, args...)
}

// CreateResources 为项目逐个创建请求中的资源类型。
// 只有请求校验失败时返回错误；调用失败与输出解析失败都体现在返回结果中。
func (o *Orchestrator) CreateResources(ctx context.Context, req *domain.CreateResourcesRequest) (*domain.ResourceCreationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// 调用方断开或超时不会中断正在执行的供应调用
	ctx = context.WithoutCancel(ctx)
	project := req.ProjectName
	kinds := req.Resources.Kinds()

	result := &domain.ResourceCreationResult{
		CreatedResources: []domain.ResourceDescriptor{},
	}
	if len(kinds) == 0 {
		o.logf(domain.LevelWarning, "No resources requested for %s", project)
		result.Message = "No resources requested"
		return result, nil
	}

	o.logf(domain.LevelInfo, "Creating resources for %s", project)

	for _, kind := range kinds {
		desc, err := o.createKind(ctx, project, kind, req.KindConfig(kind))
		if err != nil {
			result.Errors = append(result.Errors, domain.KindError{Kind: kind, Message: err.Error()})
			o.logf(domain.LevelError, "Failed to create %s: %v", kind.DisplayName(), err)
			o.observeFailed(kind)
			continue
		}
		result.CreatedResources = append(result.CreatedResources, *desc)
		o.logf(domain.LevelSuccess, "%s created: %s", kind.DisplayName(), desc.Name)
		o.observeCreated(kind)
	}

	created := len(result.CreatedResources)
	result.Success = created > 0

	if len(result.Errors) > 0 {
		summary := summarizeErrors(result.Errors)
		o.logf(domain.LevelWarning, "Some resources failed to create: %s", summary)
		result.Message = fmt.Sprintf("Created %d resources successfully, %d failed. Errors: %s", created, len(result.Errors), summary)
	} else {
		o.logf(domain.LevelSuccess, "All %d resources created successfully for %s", created, project)
		result.Message = fmt.Sprintf("All %d resources created successfully", created)
	}

	if created > 0 {
		o.notifyCreated(ctx, project, result)
	}
	return result, nil
}

// CreateSingle 按给定配置创建单个资源。
// 与批量创建不同，调用失败会作为错误返回给调用方。
func (o *Orchestrator) CreateSingle(ctx context.Context, req *domain.CreateSingleResourceRequest) (*domain.ResourceDescriptor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// 调用方断开或超时不会中断正在执行的供应调用
	ctx = context.WithoutCancel(ctx)
	kind := req.ResourceType

	desc, err := o.createKind(ctx, req.ProjectName, kind, req.KindConfig())
	if err != nil {
		o.logf(domain.LevelError, "Failed to create %s: %v", kind.DisplayName(), err)
		o.observeFailed(kind)
		return nil, fmt.Errorf("failed to create %s: %w", kind, err)
	}

	o.logf(domain.LevelSuccess, "%s created: %s", kind.DisplayName(), desc.Name)
	o.observeCreated(kind)
	o.notifyCreated(ctx, req.ProjectName, &domain.ResourceCreationResult{
		Success:          true,
		Message:          fmt.Sprintf("%s resource created successfully", kind),
		CreatedResources: []domain.ResourceDescriptor{*desc},
	})
	return desc, nil
}

// createKind 执行单个资源类型的供应调用。
// 调用成功但输出无法解析时合成确定性的资源描述，不视为失败。
func (o *Orchestrator) createKind(ctx context.Context, project string, kind domain.ResourceKind, config json.RawMessage) (*domain.ResourceDescriptor, error) {
	o.logf(domain.LevelInfo, "Creating %s for %s", kind.DisplayName(), project)

	out, err := o.backend.Create(ctx, project, kind, config)
	if err != nil {
		return nil, err
	}
	if w := out.Warning(); w != "" {
		o.logf(domain.LevelWarning, "Single resource creation warning: %s", w)
	}
	if msg, failed := reportedFailure(out.Stdout); failed {
		return nil, &backend.InvocationError{Action: backend.ActionCreate, Kind: kind, Err: errors.New(msg)}
	}

	desc, ok := parseDescriptor(out.Stdout)
	if !ok {
		o.logger.WithFields(logrus.Fields{
			"project": project,
			"kind":    kind,
			"stdout":  backend.Truncate(out.Stdout, 200),
		}).Debug("Backend output is not a resource description, using synthesized descriptor")
		synth := domain.SynthesizeDescriptor(kind, project, o.now())
		return &synth, nil
	}

	if desc.Type == "" {
		desc.Type = string(kind)
	}
	if desc.Project == "" {
		desc.Project = project
	}
	if desc.Status == "" {
		desc.Status = domain.ResourceStatusActive
	}
	if desc.CreatedAt.IsZero() {
		desc.CreatedAt = o.now().UTC()
	}
	if desc.Name == "" {
		desc.Name = desc.ID
	}
	if desc.ID == "" {
		desc.ID = desc.Name
	}
	return desc, nil
}

// parseDescriptor 解析资源描述；既没有 id 也没有 name 的对象视为无法解析。
func parseDescriptor(stdout []byte) (*domain.ResourceDescriptor, bool) {
	raw, ok := backend.ExtractJSON(stdout)
	if !ok {
		return nil, false
	}
	var desc domain.ResourceDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, false
	}
	if desc.ID == "" && desc.Name == "" {
		return nil, false
	}
	return &desc, true
}

// reportedFailure 识别正常退出但在输出中声明失败的调用，
// 例如 {"success":false,"error":"..."}。
func reportedFailure(stdout []byte) (string, bool) {
	raw, ok := backend.ExtractJSON(stdout)
	if !ok {
		return "", false
	}
	var status struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return "", false
	}
	if status.Error == "" && (status.Success == nil || *status.Success) {
		return "", false
	}
	switch {
	case status.Error != "":
		return status.Error, true
	case status.Message != "":
		return status.Message, true
	default:
		return "backend reported failure", true
	}
}

func summarizeErrors(errs []domain.KindError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ", ")
}

// DestroyResources 通过一次组合调用销毁项目中的资源；未指定资源 ID 时销毁全部。
// 诊断输出记为警告；调用失败记为整体失败，但不作为错误返回。
func (o *Orchestrator) DestroyResources(ctx context.Context, req *domain.DestroyResourcesRequest) (*domain.OperationOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// 调用方断开或超时不会中断正在执行的供应调用
	ctx = context.WithoutCancel(ctx)
	project := req.ProjectName

	target := "all resources"
	if len(req.ResourceIDs) > 0 {
		target = strings.Join(req.ResourceIDs, ", ")
	}
	o.logf(domain.LevelInfo, "Destroying specific resources for %s: %s", project, target)

	out, err := o.backend.Destroy(ctx, project, req.ResourceIDs)
	if err != nil {
		o.logf(domain.LevelError, "Failed to destroy resources: %v", err)
		return &domain.OperationOutcome{Success: false, Error: err.Error()}, nil
	}

	outcome := &domain.OperationOutcome{Success: true, Message: "Resources destroyed successfully"}
	if w := out.Warning(); w != "" {
		o.logf(domain.LevelWarning, "Resource destruction warning: %s", w)
		outcome.Warning = w
	}
	o.logf(domain.LevelSuccess, "Resources destroyed successfully for %s", project)

	o.notifyDestroyed(ctx, project, req.ResourceIDs, outcome)
	return outcome, nil
}

// DestroySingle 按类型和名称销毁单个资源，语义与 DestroyResources 相同。
func (o *Orchestrator) DestroySingle(ctx context.Context, req *domain.DestroySingleResourceRequest) (*domain.OperationOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// 调用方断开或超时不会中断正在执行的供应调用
	ctx = context.WithoutCancel(ctx)
	kind := req.ResourceType
	o.logf(domain.LevelInfo, "Destroying %s %s for %s", kind.DisplayName(), req.ResourceName, req.ProjectName)

	out, err := o.backend.DestroyOne(ctx, req.ProjectName, kind, req.ResourceName)
	if err != nil {
		o.logf(domain.LevelError, "Failed to destroy resource: %v", err)
		return &domain.OperationOutcome{Success: false, Error: err.Error()}, nil
	}

	outcome := &domain.OperationOutcome{Success: true, Message: "Resource destroyed successfully"}
	if w := out.Warning(); w != "" {
		o.logf(domain.LevelWarning, "Resource destruction warning: %s", w)
		outcome.Warning = w
	}
	o.logf(domain.LevelSuccess, "%s %s destroyed successfully for %s", kind.DisplayName(), req.ResourceName, req.ProjectName)

	o.notifyDestroyed(ctx, req.ProjectName, []string{req.ResourceName}, outcome)
	return outcome, nil
}

func (o *Orchestrator) observeCreated(kind domain.ResourceKind) {
	if o.observer != nil {
		o.observer.ResourceCreated(kind)
	}
}

func (o *Orchestrator) observeFailed(kind domain.ResourceKind) {
	if o.observer != nil {
		o.observer.ResourceFailed(kind)
	}
}

func (o *Orchestrator) notifyCreated(ctx context.Context, project string, result *domain.ResourceCreationResult) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.PublishResourcesCreated(ctx, project, result); err != nil {
		o.logger.WithError(err).WithField("project", project).Warn("Failed to publish resource created event")
	}
}

func (o *Orchestrator) notifyDestroyed(ctx context.Context, project string, ids []string, outcome *domain.OperationOutcome) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.PublishResourcesDestroyed(ctx, project, ids, outcome); err != nil {
		o.logger.WithError(err).WithField("project", project).Warn("Failed to publish resource destroyed event")
	}
}
