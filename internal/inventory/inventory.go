// Package inventory 实现只读的状态与清单查询：资源清单、存储桶及其内容、表的扫描与查询、
// 表结构、对象内容以及密钥。
//
// 这些都是轮询和浏览路径，可用性优先于精确性：后端调用失败或输出无法解析时，
// 返回空的中性结果并写入一条操作日志，不向调用方传播解析错误。
// 需要区分“不存在”的单对象查询返回领域层定义的 not-found 错误。
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/attribute"
	"github.com/oriys/localcloud/internal/backend"
	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/eventlog"
)

var (
	errNotJSON  = errors.New("output is not valid JSON")
	errNotArray = errors.New("output is not a JSON array")
)

// metadataMarker 对象下载脚本在诊断输出中附带的元数据标记
var metadataMarker = regexp.MustCompile(`<!--METADATA:(.*?)-->`)

// Service 状态与清单查询服务
type Service struct {
	backend backend.ProvisioningBackend
	events  *eventlog.EventLog
	logger  *logrus.Logger
}

// New 创建查询服务
func New(b backend.ProvisioningBackend, events *eventlog.EventLog, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{backend: b, events: events, logger: logger}
}

func (s *Service) logf(level domain.LogLevel, format string, args ...any) {
	s.events.Logf(level, domain.SourceAutomation, format, args...)
}

// warn 将后端诊断输出记为警告
func (s *Service) warn(out *backend.Output, prefix string) {
	if w := out.Warning(); w != "" {
		s.logf(domain.LevelWarning, "%s: %s", prefix, w)
	}
}

// decode 从主输出中提取 JSON 并解析到 v
func decode(out *backend.Output, v any) error {
	raw, ok := backend.ExtractJSON(out.Stdout)
	if !ok {
		return errNotJSON
	}
	return json.Unmarshal(raw, v)
}

// decodeArray 与 decode 相同，但要求输出是 JSON 数组
func decodeArray(out *backend.Output, v any) error {
	raw, ok := backend.ExtractJSON(out.Stdout)
	if !ok {
		return errNotJSON
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
		return errNotArray
	}
	return json.Unmarshal(raw, v)
}

// ListResources 返回项目下的全部资源描述。失败时返回空列表。
func (s *Service) ListResources(ctx context.Context, project string) []domain.ResourceDescriptor {
	resources, ok := s.listResources(ctx, project, "Resource listing warning", "Failed to list resources")
	if !ok {
		return []domain.ResourceDescriptor{}
	}
	return resources
}

func (s *Service) listResources(ctx context.Context, project, warnPrefix, failPrefix string) ([]domain.ResourceDescriptor, bool) {
	out, err := s.backend.ListResources(ctx, project)
	if err != nil {
		s.logf(domain.LevelError, "%s: %v", failPrefix, err)
		return nil, false
	}
	s.warn(out, warnPrefix)

	resources := []domain.ResourceDescriptor{}
	if err := decodeArray(out, &resources); err != nil {
		if errors.Is(err, errNotArray) {
			s.logf(domain.LevelError, "Resource listing output is not a JSON array")
		} else {
			s.logf(domain.LevelError, "Failed to parse resource listing JSON: %v", err)
		}
		return nil, false
	}
	return resources, true
}

// ListBuckets 从资源清单中筛选出存储桶。失败时返回空列表。
func (s *Service) ListBuckets(ctx context.Context, project string) []domain.Bucket {
	buckets := []domain.Bucket{}
	resources, ok := s.listResources(ctx, project, "Bucket listing warning", "Failed to list buckets")
	if !ok {
		return buckets
	}
	for _, r := range resources {
		if r.Type != string(domain.KindObjectStore) {
			continue
		}
		b := domain.Bucket{Name: r.Name}
		if !r.CreatedAt.IsZero() {
			b.CreationDate = r.CreatedAt.UTC().Format(time.RFC3339)
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// ListBucketContents 返回存储桶中的对象。失败时返回空列表。
func (s *Service) ListBucketContents(ctx context.Context, project, bucket string) []domain.BucketObject {
	objects := []domain.BucketObject{}

	out, err := s.backend.ListBucketContents(ctx, project, bucket)
	if err != nil {
		s.logf(domain.LevelError, "Failed to list bucket contents: %v", err)
		return objects
	}
	s.warn(out, "Bucket listing warning")

	if err := decodeArray(out, &objects); err != nil {
		if errors.Is(err, errNotArray) {
			s.logf(domain.LevelError, "Bucket listing output is not a JSON array")
		} else {
			s.logf(domain.LevelError, "Failed to parse bucket listing JSON: %v", err)
		}
		return []domain.BucketObject{}
	}
	return objects
}

// GetObject 下载对象内容。元数据来自诊断输出中的标记，标记损坏只记为警告。
// 与列表查询不同，调用失败会作为错误返回。
func (s *Service) GetObject(ctx context.Context, project, bucket, key string) (*domain.ObjectContent, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: bucket and key", domain.ErrMissingField)
	}

	out, err := s.backend.GetObject(ctx, project, bucket, key)
	if err != nil {
		s.logf(domain.LevelError, "Failed to download object: %v", err)
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrObjectNotFound, bucket, key)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": bucket,
		"key":    key,
		"bytes":  len(out.Stdout),
	}).Debug("Object downloaded")

	content := &domain.ObjectContent{
		Content:  string(out.Stdout),
		Metadata: map[string]any{},
	}
	if m := metadataMarker.FindStringSubmatch(out.Stderr); m != nil {
		var metadata map[string]any
		if err := json.Unmarshal([]byte(m[1]), &metadata); err != nil {
			s.logf(domain.LevelWarning, "Failed to parse object metadata: %v", err)
		} else if metadata != nil {
			content.Metadata = metadata
		}
	}

	s.logf(domain.LevelSuccess, "Object downloaded: %s from bucket %s", key, bucket)
	return content, nil
}

// DeleteObject 删除对象，返回后端的输出文本。
func (s *Service) DeleteObject(ctx context.Context, project, bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("%w: bucket and key", domain.ErrMissingField)
	}

	out, err := s.backend.DeleteObject(ctx, project, bucket, key)
	if err != nil {
		s.logf(domain.LevelError, "Failed to delete object: %v", err)
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s/%s", domain.ErrObjectNotFound, bucket, key)
		}
		return "", err
	}
	s.warn(out, "S3 delete-object warning")
	s.logf(domain.LevelSuccess, "Object deleted: %s from bucket %s", key, bucket)
	return strings.TrimSpace(string(out.Stdout)), nil
}

// ListTables 返回项目下的表名。失败时返回空列表。
func (s *Service) ListTables(ctx context.Context, project string) []string {
	tables := []string{}

	out, err := s.backend.ListTables(ctx, project)
	if err != nil {
		s.logf(domain.LevelError, "Failed to list DynamoDB tables: %v", err)
		return tables
	}
	s.warn(out, "DynamoDB table listing warning")

	var raw []json.RawMessage
	if err := decodeArray(out, &raw); err != nil {
		if errors.Is(err, errNotArray) {
			s.logf(domain.LevelError, "DynamoDB table listing output is not a JSON array")
		} else {
			s.logf(domain.LevelError, "Failed to parse DynamoDB table listing JSON: %v", err)
		}
		return tables
	}
	for _, r := range raw {
		if name := tableName(r); name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}

// tableName 兼容表名字符串与 {"TableName": ...} / {"name": ...} 两种元素形式
func tableName(raw json.RawMessage) string {
	var name string
	if json.Unmarshal(raw, &name) == nil {
		return name
	}
	var obj struct {
		TableName string `json:"TableName"`
		Name      string `json:"name"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.TableName != "" {
			return obj.TableName
		}
		return obj.Name
	}
	return ""
}

// Scan 扫描表。失败时返回空结果。
func (s *Service) Scan(ctx context.Context, project, table string, limit int) domain.ScanResult {
	if limit <= 0 {
		limit = domain.DefaultScanLimit
	}
	out, err := s.backend.Scan(ctx, project, table, limit)
	return s.scanResult(out, err, "scan")
}

// Query 按键查询表。分区键与分区值缺失属于请求错误；其余失败返回空结果。
func (s *Service) Query(ctx context.Context, project string, q domain.QuerySpec) (domain.ScanResult, error) {
	if q.Table == "" || q.PartitionKey == "" || q.PartitionValue == "" {
		return domain.EmptyScanResult(), fmt.Errorf("%w: table, partitionKey and partitionValue", domain.ErrMissingField)
	}
	if q.Limit <= 0 {
		q.Limit = domain.DefaultScanLimit
	}
	out, err := s.backend.Query(ctx, project, q)
	return s.scanResult(out, err, "query"), nil
}

func (s *Service) scanResult(out *backend.Output, err error, op string) domain.ScanResult {
	if err != nil {
		s.logf(domain.LevelError, "Failed to %s DynamoDB table: %v", op, err)
		return domain.EmptyScanResult()
	}
	s.warn(out, "DynamoDB "+op+" warning")

	// encoding/json 对字段名大小写不敏感，items 与 Items 两种输出都能解析
	var result domain.ScanResult
	if err := decode(out, &result); err != nil {
		s.logf(domain.LevelError, "Failed to parse DynamoDB %s JSON: %v", op, err)
		return domain.EmptyScanResult()
	}
	if result.Items == nil {
		result.Items = []attribute.Item{}
	}
	return result
}

// DescribeTable 返回表结构。任何失败都视为表不存在。
func (s *Service) DescribeTable(ctx context.Context, project, table string) (json.RawMessage, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: table", domain.ErrMissingField)
	}

	out, err := s.backend.DescribeTable(ctx, project, table)
	if err != nil {
		s.logf(domain.LevelError, "Failed to get DynamoDB table schema: %v", err)
		return nil, fmt.Errorf("%w: %s", domain.ErrTableNotFound, table)
	}
	s.warn(out, "DynamoDB describe-table warning")

	raw, ok := backend.ExtractJSON(out.Stdout)
	if !ok {
		s.logf(domain.LevelError, "Failed to parse DynamoDB describe-table JSON: %v", errNotJSON)
		return nil, fmt.Errorf("%w: %s", domain.ErrTableNotFound, table)
	}
	return raw, nil
}

// PutItem 向表写入一条以标签联合形式编码的条目。
func (s *Service) PutItem(ctx context.Context, project, table string, item attribute.Item) error {
	if table == "" {
		return fmt.Errorf("%w: table", domain.ErrMissingField)
	}
	if len(item) == 0 {
		return fmt.Errorf("%w: item", domain.ErrMissingField)
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	out, err := s.backend.PutItem(ctx, project, table, payload)
	if err != nil {
		s.logf(domain.LevelError, "Failed to add item to DynamoDB: %v", err)
		return err
	}
	s.warn(out, "DynamoDB put-item warning")
	s.logf(domain.LevelSuccess, "Item added to DynamoDB table %s", table)
	return nil
}

// ListSecrets 返回密钥摘要，不包含密钥值。失败时返回空列表。
func (s *Service) ListSecrets(ctx context.Context, project string) []domain.Secret {
	secrets := []domain.Secret{}

	out, err := s.backend.ListSecrets(ctx, project)
	if err != nil {
		s.logf(domain.LevelError, "Failed to list secrets: %v", err)
		return secrets
	}
	s.warn(out, "Secrets listing warning")

	// 兼容 {"SecretList": [...]} 与裸数组两种输出
	raw, ok := backend.ExtractJSON(out.Stdout)
	if !ok {
		s.logf(domain.LevelError, "Failed to parse secrets listing JSON: %v", errNotJSON)
		return secrets
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			SecretList []domain.Secret `json:"SecretList"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			s.logf(domain.LevelError, "Failed to parse secrets listing JSON: %v", err)
			return secrets
		}
		raw, _ = json.Marshal(envelope.SecretList)
	}
	if err := json.Unmarshal(raw, &secrets); err != nil {
		s.logf(domain.LevelError, "Failed to parse secrets listing JSON: %v", err)
		return []domain.Secret{}
	}
	if secrets == nil {
		secrets = []domain.Secret{}
	}
	for i := range secrets {
		secrets[i].SecretString = nil
	}
	return secrets
}

// GetSecret 返回单个密钥；includeValue 为 true 时附带密钥值。
// 任何失败都视为密钥不存在。
func (s *Service) GetSecret(ctx context.Context, project, name string, includeValue bool) (*domain.Secret, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: secret name", domain.ErrMissingField)
	}

	secret, err := s.fetchSecret(ctx, project, name, false)
	if err != nil {
		return nil, err
	}
	if !includeValue {
		secret.SecretString = nil
		return secret, nil
	}

	value, err := s.fetchSecret(ctx, project, name, true)
	if err != nil {
		return nil, err
	}
	secret.SecretString = value.SecretString
	if value.VersionID != "" {
		secret.VersionID = value.VersionID
	}
	return secret, nil
}

func (s *Service) fetchSecret(ctx context.Context, project, name string, includeValue bool) (*domain.Secret, error) {
	out, err := s.backend.GetSecret(ctx, project, name, includeValue)
	if err != nil {
		s.logf(domain.LevelError, "Failed to get secret %s: %v", name, err)
		return nil, fmt.Errorf("%w: %s", domain.ErrSecretNotFound, name)
	}
	s.warn(out, "Secret lookup warning")

	var secret domain.Secret
	if err := decode(out, &secret); err != nil {
		s.logf(domain.LevelError, "Failed to parse secret JSON: %v", err)
		return nil, fmt.Errorf("%w: %s", domain.ErrSecretNotFound, name)
	}
	if secret.Name == "" {
		secret.Name = name
	}
	return &secret, nil
}

// isNotFound 根据后端诊断输出判断对象是否不存在
func isNotFound(err error) bool {
	var ie *backend.InvocationError
	if !errors.As(err, &ie) {
		return false
	}
	return strings.Contains(ie.Stderr, "NoSuchKey") ||
		strings.Contains(ie.Stderr, "NoSuchBucket") ||
		strings.Contains(ie.Stderr, "Not Found")
}
