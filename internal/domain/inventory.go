// Package domain 定义了本地云控制台的核心领域模型。
// 本文件定义了查询类操作（资源清单、存储桶、表、密钥）的返回结构。
package domain

import (
	"encoding/json"
	"time"

	"github.com/oriys/localcloud/internal/attribute"
)

// HealthState 表示模拟环境的健康状态
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// EmulatorStatus 表示模拟环境的运行状态。
type EmulatorStatus struct {
	Running   bool        `json:"running"`
	Endpoint  string      `json:"endpoint"`
	Health    HealthState `json:"health"`
	Uptime    *string     `json:"uptime"`
	CheckedAt *time.Time  `json:"checkedAt,omitempty"`
}

// ProjectConfig 表示进程生命周期内只读的项目配置。
type ProjectConfig struct {
	ProjectName string `json:"projectName"`
	AWSEndpoint string `json:"awsEndpoint"`
	AWSRegion   string `json:"awsRegion"`
}

// Bucket 存储桶摘要，字段名与 AWS 风格保持一致
type Bucket struct {
	Name         string `json:"Name"`
	CreationDate string `json:"CreationDate,omitempty"`
}

// BucketObject 存储桶中的对象摘要，字段名与 AWS 风格保持一致
type BucketObject struct {
	Key          string `json:"Key"`
	LastModified string `json:"LastModified,omitempty"`
	Size         int64  `json:"Size"`
	ETag         string `json:"ETag,omitempty"`
	StorageClass string `json:"StorageClass,omitempty"`
}

// ObjectContent 对象内容及其元数据。
// 元数据来自后端诊断输出中的标记，解析失败时为空。
type ObjectContent struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// ScanResult 表的扫描/查询结果。
// Count 与 ScannedCount 由后端给出，不保证等于 len(Items)。
type ScanResult struct {
	Items            []attribute.Item `json:"items"`
	Count            int              `json:"count"`
	ScannedCount     int              `json:"scannedCount"`
	LastEvaluatedKey json.RawMessage  `json:"lastEvaluatedKey,omitempty"`
}

// EmptyScanResult 返回中性的空结果。
func EmptyScanResult() ScanResult {
	return ScanResult{Items: []attribute.Item{}}
}

// QuerySpec 表的键查询条件
type QuerySpec struct {
	Table          string `json:"table"`
	PartitionKey   string `json:"partitionKey"`
	PartitionValue string `json:"partitionValue"`
	SortKey        string `json:"sortKey,omitempty"`
	SortValue      string `json:"sortValue,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// DefaultScanLimit 扫描/查询的默认条数
const DefaultScanLimit = 100

// SecretTag 密钥标签
type SecretTag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Secret 密钥摘要，字段名与 AWS 风格保持一致；SecretString 仅在显式请求时填充。
type Secret struct {
	Name            string      `json:"Name"`
	ARN             string      `json:"ARN,omitempty"`
	Description     string      `json:"Description,omitempty"`
	LastChangedDate string      `json:"LastChangedDate,omitempty"`
	Tags            []SecretTag `json:"Tags,omitempty"`
	SecretString    *string     `json:"SecretString,omitempty"`
	VersionID       string      `json:"VersionId,omitempty"`
}

// UnmarshalJSON 兼容 LastChangedDate 为时间字符串或 Unix 秒数两种形式。
func (s *Secret) UnmarshalJSON(data []byte) error {
	type plain Secret
	var raw struct {
		plain
		LastChangedDate json.RawMessage `json:"LastChangedDate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Secret(raw.plain)

	var str string
	var secs float64
	switch {
	case len(raw.LastChangedDate) == 0:
	case json.Unmarshal(raw.LastChangedDate, &str) == nil:
		s.LastChangedDate = str
	case json.Unmarshal(raw.LastChangedDate, &secs) == nil:
		s.LastChangedDate = time.Unix(int64(secs), 0).UTC().Format(time.RFC3339)
	}
	return nil
}
