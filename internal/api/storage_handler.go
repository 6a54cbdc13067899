package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/attribute"
	"github.com/oriys/localcloud/internal/domain"
)

// ==================== S3 ====================

// ListBuckets 列出项目的存储桶。
// HTTP端点: GET /api/v1/s3/buckets
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.inventory.ListBuckets(r.Context(), h.projectName(r)))
}

// ListBucketContents 列出存储桶中的对象。
// HTTP端点: GET /api/v1/s3/buckets/{bucket}/objects
func (h *Handler) ListBucketContents(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	writeData(w, h.inventory.ListBucketContents(r.Context(), h.projectName(r), bucket))
}

// objectKey 返回通配段中的对象键，键可以包含 "/"
func objectKey(r *http.Request) string {
	return chi.URLParam(r, "*")
}

// GetObject 下载对象内容与元数据。
// HTTP端点: GET /api/v1/s3/buckets/{bucket}/objects/{key...}
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), objectKey(r)

	content, err := h.inventory.GetObject(r.Context(), h.projectName(r), bucket, key)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, content)
}

// DeleteObject 删除对象。
// HTTP端点: DELETE /api/v1/s3/buckets/{bucket}/objects/{key...}
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), objectKey(r)

	msg, err := h.inventory.DeleteObject(r.Context(), h.projectName(r), bucket, key)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.logInfo(r, "DeleteObject", "Object deleted", logrus.Fields{"bucket": bucket, "key": key})
	writeJSON(w, http.StatusOK, Response{Success: true, Message: msg})
}

// ==================== DynamoDB ====================

// ListTables 列出项目的表。
// HTTP端点: GET /api/v1/dynamodb/tables
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.inventory.ListTables(r.Context(), h.projectName(r)))
}

// queryLimit 解析 limit 参数，缺失或非法时返回 0（由查询层使用默认值）
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// ScanTable 扫描表。失败时返回空结果，详情见操作日志。
// HTTP端点: GET /api/v1/dynamodb/tables/{table}/scan?limit=
func (h *Handler) ScanTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	writeData(w, h.inventory.Scan(r.Context(), h.projectName(r), table, queryLimit(r)))
}

// QueryTable 按键查询表。
// HTTP端点: GET /api/v1/dynamodb/tables/{table}/query?partitionKey=&partitionValue=&sortKey=&sortValue=&limit=
func (h *Handler) QueryTable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec := domain.QuerySpec{
		Table:          chi.URLParam(r, "table"),
		PartitionKey:   q.Get("partitionKey"),
		PartitionValue: q.Get("partitionValue"),
		SortKey:        q.Get("sortKey"),
		SortValue:      q.Get("sortValue"),
		Limit:          queryLimit(r),
	}

	result, err := h.inventory.Query(r.Context(), h.projectName(r), spec)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, result)
}

// TableSchema 返回表结构。
// HTTP端点: GET /api/v1/dynamodb/tables/{table}/schema
func (h *Handler) TableSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.inventory.DescribeTable(r.Context(), h.projectName(r), chi.URLParam(r, "table"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, schema)
}

// PutItemRequest 写入条目的请求体。
// Item 为线上格式的条目；Attributes 为编辑器的树形描述，两者任选其一，Item 优先。
type PutItemRequest struct {
	ProjectName string           `json:"projectName,omitempty"`
	Item        json.RawMessage  `json:"item,omitempty"`
	Attributes  []attribute.Node `json:"attributes,omitempty"`
}

// toItem 将请求体转换为条目
func (req *PutItemRequest) toItem() (attribute.Item, error) {
	if len(req.Item) > 0 && string(req.Item) != "null" {
		var item attribute.Item
		if err := json.Unmarshal(req.Item, &item); err != nil {
			return nil, fmt.Errorf("%w: item: %v", domain.ErrInvalidRequest, err)
		}
		return item, nil
	}
	return attribute.EncodeItem(req.Attributes), nil
}

// PutItem 向表写入一条条目。
// HTTP端点: POST /api/v1/dynamodb/tables/{table}/items
//
// 请求体格式:
//
//	{"item": {"id": {"S": "1"}, "age": {"N": "42"}}}
//	{"attributes": [{"key": "id", "type": "string", "value": "1"}]}
func (h *Handler) PutItem(w http.ResponseWriter, r *http.Request) {
	var req PutItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	item, err := req.toItem()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	project := req.ProjectName
	if project == "" {
		project = h.projectName(r)
	}
	table := chi.URLParam(r, "table")
	if err := h.inventory.PutItem(r.Context(), project, table, item); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// ==================== Secrets Manager ====================

// ListSecrets 列出项目的密钥摘要。
// HTTP端点: GET /api/v1/secrets
func (h *Handler) ListSecrets(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.inventory.ListSecrets(r.Context(), h.projectName(r)))
}

// GetSecret 返回密钥详情；includeValue=true 时包含密钥值。
// HTTP端点: GET /api/v1/secrets/{name}?includeValue=true
func (h *Handler) GetSecret(w http.ResponseWriter, r *http.Request) {
	includeValue, _ := strconv.ParseBool(r.URL.Query().Get("includeValue"))
	name := chi.URLParam(r, "name")

	secret, err := h.inventory.GetSecret(r.Context(), h.projectName(r), name, includeValue)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if includeValue {
		h.logInfo(r, "GetSecret", "Secret value read", logrus.Fields{"secret": name})
	}
	writeData(w, secret)
}
