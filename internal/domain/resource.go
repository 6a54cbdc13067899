// Package domain 定义了本地云控制台的核心领域模型。
// 本文件定义了模拟资源类型、资源描述以及创建/销毁请求与结果。
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ResourceKind 表示一类模拟云资源。
// 取值与供应脚本接受的资源类型参数保持一致。
type ResourceKind string

// 资源类型常量定义
const (
	// KindObjectStore 对象存储（S3 存储桶）
	KindObjectStore ResourceKind = "s3"
	// KindKVTable 键值表（DynamoDB 表）
	KindKVTable ResourceKind = "dynamodb"
	// KindFunction 函数（Lambda）
	KindFunction ResourceKind = "lambda"
	// KindGateway 网关（API Gateway）
	KindGateway ResourceKind = "apigateway"
	// KindSecretStore 密钥存储（Secrets Manager）
	KindSecretStore ResourceKind = "secretsmanager"
)

// AllKinds 按编排顺序列出全部资源类型。
// 创建请求中的资源类型总是按照该顺序依次执行，以保证日志顺序稳定。
var AllKinds = []ResourceKind{
	KindObjectStore,
	KindKVTable,
	KindFunction,
	KindGateway,
	KindSecretStore,
}

var kindAliases = map[string]ResourceKind{
	"s3":             KindObjectStore,
	"object-store":   KindObjectStore,
	"objectstore":    KindObjectStore,
	"dynamodb":       KindKVTable,
	"kv-table":       KindKVTable,
	"kvtable":        KindKVTable,
	"lambda":         KindFunction,
	"function":       KindFunction,
	"apigateway":     KindGateway,
	"api-gateway":    KindGateway,
	"gateway":        KindGateway,
	"secretsmanager": KindSecretStore,
	"secret-store":   KindSecretStore,
	"secretstore":    KindSecretStore,
	"secrets":        KindSecretStore,
}

// ParseResourceKind 解析资源类型名称，支持常见别名（如 "kv-table"、"objectStore"）。
func ParseResourceKind(s string) (ResourceKind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if k, ok := kindAliases[key]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResourceKind, s)
}

// IsValid 检查资源类型是否有效
func (k ResourceKind) IsValid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Label 返回用于错误汇总的短标签（如 "S3"、"DynamoDB"）。
func (k ResourceKind) Label() string {
	switch k {
	case KindObjectStore:
		return "S3"
	case KindKVTable:
		return "DynamoDB"
	case KindFunction:
		return "Lambda"
	case KindGateway:
		return "API Gateway"
	case KindSecretStore:
		return "Secrets Manager"
	}
	return string(k)
}

// DisplayName 返回用于日志的资源描述（如 "S3 bucket"）。
func (k ResourceKind) DisplayName() string {
	switch k {
	case KindObjectStore:
		return "S3 bucket"
	case KindKVTable:
		return "DynamoDB table"
	case KindFunction:
		return "Lambda function"
	case KindGateway:
		return "API Gateway"
	case KindSecretStore:
		return "Secrets Manager secret"
	}
	return string(k)
}

// ResourceStatus 表示资源状态
type ResourceStatus string

const (
	ResourceStatusActive ResourceStatus = "active"
	ResourceStatusError  ResourceStatus = "error"
)

// ResourceDescriptor 描述一个已创建的模拟资源。
type ResourceDescriptor struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Status      ResourceStatus  `json:"status"`
	Project     string          `json:"project"`
	Environment string          `json:"environment,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Details     json.RawMessage `json:"details,omitempty"`
}

// UnmarshalJSON 宽松解析后端输出的资源描述。
// createdAt 不是 RFC3339 格式时置为零值，而不是整体解析失败。
func (d *ResourceDescriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Type        string          `json:"type"`
		Status      ResourceStatus  `json:"status"`
		Project     string          `json:"project"`
		Environment string          `json:"environment"`
		CreatedAt   json.RawMessage `json:"createdAt"`
		Details     json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = ResourceDescriptor{
		ID:          raw.ID,
		Name:        raw.Name,
		Type:        raw.Type,
		Status:      raw.Status,
		Project:     raw.Project,
		Environment: raw.Environment,
		Details:     raw.Details,
	}
	var ts string
	if len(raw.CreatedAt) > 0 && json.Unmarshal(raw.CreatedAt, &ts) == nil {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			d.CreatedAt = t
		}
	}
	return nil
}

// SynthesizeDescriptor 在后端输出无法解析时，根据 (kind, project) 构造确定性的资源描述。
func SynthesizeDescriptor(kind ResourceKind, project string, now time.Time) ResourceDescriptor {
	return ResourceDescriptor{
		ID:        fmt.Sprintf("%s-%s-%s", kind, project, kind),
		Name:      fmt.Sprintf("%s-%s", project, kind),
		Type:      string(kind),
		Status:    ResourceStatusActive,
		Project:   project,
		CreatedAt: now.UTC(),
	}
}

// ResourceSelection 表示请求中选择的资源类型集合。
// JSON 形式既支持对象 {"s3": true, "kvTable": false}，也支持数组 ["s3", "dynamodb"]。
type ResourceSelection map[ResourceKind]bool

// UnmarshalJSON 解析资源选择，并将别名归一化为标准资源类型。
func (s *ResourceSelection) UnmarshalJSON(data []byte) error {
	out := ResourceSelection{}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = out
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return err
		}
		for _, name := range names {
			k, err := ParseResourceKind(name)
			if err != nil {
				return err
			}
			out[k] = true
		}
		*s = out
		return nil
	}

	var flags map[string]bool
	if err := json.Unmarshal(trimmed, &flags); err != nil {
		return err
	}
	for name, enabled := range flags {
		k, err := ParseResourceKind(name)
		if err != nil {
			return err
		}
		out[k] = out[k] || enabled
	}
	*s = out
	return nil
}

// Kinds 按 AllKinds 的顺序返回被选中的资源类型。
func (s ResourceSelection) Kinds() []ResourceKind {
	var kinds []ResourceKind
	for _, k := range AllKinds {
		if s[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// S3BucketConfig 对象存储的可选配置
type S3BucketConfig struct {
	BucketName string `json:"bucketName"`
	Region     string `json:"region,omitempty"`
	Versioning bool   `json:"versioning,omitempty"`
	Encryption bool   `json:"encryption,omitempty"`
}

// DynamoDBGSI 全局二级索引定义
type DynamoDBGSI struct {
	IndexName        string   `json:"indexName"`
	PartitionKey     string   `json:"partitionKey"`
	SortKey          string   `json:"sortKey,omitempty"`
	ProjectionType   string   `json:"projectionType"`
	NonKeyAttributes []string `json:"nonKeyAttributes,omitempty"`
}

// DynamoDBTableConfig 键值表的可选配置
type DynamoDBTableConfig struct {
	TableName     string        `json:"tableName"`
	PartitionKey  string        `json:"partitionKey"`
	SortKey       string        `json:"sortKey,omitempty"`
	BillingMode   string        `json:"billingMode,omitempty"`
	ReadCapacity  int           `json:"readCapacity,omitempty"`
	WriteCapacity int           `json:"writeCapacity,omitempty"`
	GSIs          []DynamoDBGSI `json:"gsis,omitempty"`
}

// ValidateKindConfig 校验某资源类型的 JSON 配置。
// 空配置合法；目前只有 s3 与 dynamodb 定义了必填字段。
func ValidateKindConfig(kind ResourceKind, raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	switch kind {
	case KindObjectStore:
		var cfg S3BucketConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("%w: s3: %v", ErrInvalidKindConfig, err)
		}
		if cfg.BucketName == "" {
			return fmt.Errorf("%w: s3 bucketName", ErrMissingField)
		}
	case KindKVTable:
		var cfg DynamoDBTableConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("%w: dynamodb: %v", ErrInvalidKindConfig, err)
		}
		if cfg.TableName == "" || cfg.PartitionKey == "" {
			return fmt.Errorf("%w: dynamodb tableName and partitionKey", ErrMissingField)
		}
		switch cfg.BillingMode {
		case "", "PAY_PER_REQUEST":
		case "PROVISIONED":
			if cfg.ReadCapacity <= 0 || cfg.WriteCapacity <= 0 {
				return fmt.Errorf("%w: provisioned billing requires read and write capacity", ErrInvalidKindConfig)
			}
		default:
			return fmt.Errorf("%w: billingMode %q", ErrInvalidKindConfig, cfg.BillingMode)
		}
	default:
		if !json.Valid(raw) {
			return fmt.Errorf("%w: %s config is not valid JSON", ErrInvalidKindConfig, kind)
		}
	}
	return nil
}

// CreateResourcesRequest 表示按项目批量创建资源的请求。
type CreateResourcesRequest struct {
	ProjectName string                           `json:"projectName"`
	Resources   ResourceSelection                `json:"resources"`
	Template    string                           `json:"template,omitempty"`
	Config      map[ResourceKind]json.RawMessage `json:"config,omitempty"`
	S3Config    json.RawMessage                  `json:"s3Config,omitempty"`
	DynamoDB    json.RawMessage                  `json:"dynamodbConfig,omitempty"`
}

// KindConfig 返回某资源类型的配置，兼容 s3Config / dynamodbConfig 旧字段。
func (r *CreateResourcesRequest) KindConfig(kind ResourceKind) json.RawMessage {
	if cfg, ok := r.Config[kind]; ok && len(cfg) > 0 {
		return cfg
	}
	switch kind {
	case KindObjectStore:
		return r.S3Config
	case KindKVTable:
		return r.DynamoDB
	}
	return nil
}

// Validate 校验请求并在需要时展开模板。
// 返回的错误均为请求校验错误。
func (r *CreateResourcesRequest) Validate() error {
	r.ProjectName = strings.TrimSpace(r.ProjectName)
	if r.ProjectName == "" {
		return ErrMissingProjectName
	}
	if r.Template != "" && len(r.Resources.Kinds()) == 0 {
		tpl, ok := FindTemplate(r.Template)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTemplate, r.Template)
		}
		r.Resources = tpl.Selection()
	}

	// map 中的配置键也需要归一化
	if len(r.Config) > 0 {
		normalized := make(map[ResourceKind]json.RawMessage, len(r.Config))
		keys := make([]string, 0, len(r.Config))
		for k := range r.Config {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, name := range keys {
			k, err := ParseResourceKind(name)
			if err != nil {
				return err
			}
			normalized[k] = r.Config[ResourceKind(name)]
		}
		r.Config = normalized
	}

	for _, k := range r.Resources.Kinds() {
		if err := ValidateKindConfig(k, r.KindConfig(k)); err != nil {
			return err
		}
	}
	return nil
}

// KindError 记录单个资源类型的失败原因。
type KindError struct {
	Kind    ResourceKind `json:"kind"`
	Message string       `json:"message"`
}

// String 返回 "S3: message" 形式的汇总文本。
func (e KindError) String() string {
	return fmt.Sprintf("%s: %s", e.Kind.Label(), e.Message)
}

// ResourceCreationResult 批量创建的汇总结果。
// Success 在至少一个资源创建成功时为 true（部分成功也视为成功）。
type ResourceCreationResult struct {
	Success          bool                 `json:"success"`
	Message          string               `json:"message"`
	CreatedResources []ResourceDescriptor `json:"createdResources"`
	Errors           []KindError          `json:"errors,omitempty"`
}

// CreateSingleResourceRequest 创建单个资源的请求。
type CreateSingleResourceRequest struct {
	ProjectName  string          `json:"projectName"`
	ResourceType ResourceKind    `json:"resourceType"`
	Config       json.RawMessage `json:"config,omitempty"`
	S3Config     json.RawMessage `json:"s3Config,omitempty"`
	DynamoDB     json.RawMessage `json:"dynamodbConfig,omitempty"`
}

// Validate 校验请求并归一化资源类型。
func (r *CreateSingleResourceRequest) Validate() error {
	r.ProjectName = strings.TrimSpace(r.ProjectName)
	if r.ProjectName == "" {
		return ErrMissingProjectName
	}
	if r.ResourceType == "" {
		return fmt.Errorf("%w: resourceType", ErrMissingField)
	}
	k, err := ParseResourceKind(string(r.ResourceType))
	if err != nil {
		return err
	}
	r.ResourceType = k
	return ValidateKindConfig(k, r.KindConfig())
}

// KindConfig 返回该资源的配置，兼容旧字段。
func (r *CreateSingleResourceRequest) KindConfig() json.RawMessage {
	if len(r.Config) > 0 {
		return r.Config
	}
	switch r.ResourceType {
	case KindObjectStore:
		return r.S3Config
	case KindKVTable:
		return r.DynamoDB
	}
	return nil
}

// DestroyResourcesRequest 销毁一组资源的请求；ResourceIDs 为空表示全部资源。
type DestroyResourcesRequest struct {
	ProjectName string   `json:"projectName"`
	ResourceIDs []string `json:"resourceIds,omitempty"`
}

// Validate 校验请求
func (r *DestroyResourcesRequest) Validate() error {
	r.ProjectName = strings.TrimSpace(r.ProjectName)
	if r.ProjectName == "" {
		return ErrMissingProjectName
	}
	ids := r.ResourceIDs[:0]
	for _, id := range r.ResourceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	r.ResourceIDs = ids
	return nil
}

// DestroySingleResourceRequest 销毁单个资源的请求。
type DestroySingleResourceRequest struct {
	ProjectName  string       `json:"projectName"`
	ResourceType ResourceKind `json:"resourceType"`
	ResourceName string       `json:"resourceName"`
}

// Validate 校验请求
func (r *DestroySingleResourceRequest) Validate() error {
	r.ProjectName = strings.TrimSpace(r.ProjectName)
	if r.ProjectName == "" {
		return ErrMissingProjectName
	}
	if r.ResourceType == "" {
		return fmt.Errorf("%w: resourceType", ErrMissingField)
	}
	r.ResourceName = strings.TrimSpace(r.ResourceName)
	if r.ResourceName == "" {
		return fmt.Errorf("%w: resourceName", ErrMissingField)
	}
	k, err := ParseResourceKind(string(r.ResourceType))
	if err != nil {
		return err
	}
	r.ResourceType = k
	return nil
}

// OperationOutcome 销毁等单次调用类操作的结果。
type OperationOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}
