// Package cmd 提供 lcctl 命令行工具的所有子命令实现。
// 本文件实现 API 客户端，用于与控制台 API 服务通信。
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/oriys/localcloud/internal/domain"
)

// Client 控制台 API 客户端
type Client struct {
	baseURL    string
	project    string
	token      string
	httpClient *http.Client
}

// NewClient 从 viper 配置创建客户端。
// 资源创建可能耗时数分钟，因此超时时间较长。
func NewClient() *Client {
	baseURL := viper.GetString("api_url")
	if baseURL == "" {
		baseURL = "http://localhost:3031"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		project: viper.GetString("project"),
		token:   viper.GetString("token"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// APIError 表示 API 返回的错误
type APIError struct {
	Code      int    `json:"-"`
	Message   string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("API error %d: %s", e.Code, e.Message))
	if e.RequestID != "" {
		sb.WriteString(fmt.Sprintf("\n  Request ID: %s", e.RequestID))
	}
	if e.TraceID != "" {
		sb.WriteString(fmt.Sprintf("\n  Trace ID: %s", e.TraceID))
	}
	return sb.String()
}

// envelope 统一响应结构
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// withProject 为路径附加项目查询参数
func (c *Client) withProject(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if c.project != "" {
		query.Set("projectName", c.project)
	}
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

// do 发送请求并把原始响应体解析到 result
func (c *Client) do(method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Code: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// doData 发送请求并把响应中的 data 字段解析到result
func (c *Client) doData(method, path string, body, result any) error {
	var env envelope
	if err := c.do(method, path, body, &env); err != nil {
		return err
	}
	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

// ====== 状态与日志 ======

func (c *Client) Status() (*domain.EmulatorStatus, error) {
	var status domain.EmulatorStatus
	if err := c.doData(http.MethodGet, "/api/v1/emulator/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Logs(level string, limit int) ([]domain.LogEntry, error) {
	q := url.Values{}
	if level != "" {
		q.Set("level", level)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/api/v1/emulator/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var entries []domain.LogEntry
	if err := c.doData(http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Templates() ([]domain.ResourceTemplate, error) {
	var templates []domain.ResourceTemplate
	if err := c.doData(http.MethodGet, "/api/v1/config/templates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// ====== 资源编排 ======

func (c *Client) ListResources() ([]domain.ResourceDescriptor, error) {
	var resources []domain.ResourceDescriptor
	if err := c.doData(http.MethodGet, c.withProject("/api/v1/resources", nil), nil, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

func (c *Client) CreateResources(req *domain.CreateResourcesRequest) (*domain.ResourceCreationResult, error) {
	var result domain.ResourceCreationResult
	if err := c.do(http.MethodPost, "/api/v1/resources", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DestroyResources(req *domain.DestroyResourcesRequest) (*domain.OperationOutcome, error) {
	var outcome domain.OperationOutcome
	if err := c.do(http.MethodPost, "/api/v1/resources/destroy", req, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *Client) DestroySingle(req *domain.DestroySingleResourceRequest) (*domain.OperationOutcome, error) {
	var outcome domain.OperationOutcome
	if err := c.do(http.MethodPost, "/api/v1/resources/destroy-single", req, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// ====== 表 ======

func (c *Client) ListTables() ([]string, error) {
	var tables []string
	if err := c.doData(http.MethodGet, c.withProject("/api/v1/dynamodb/tables", nil), nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func (c *Client) Scan(table string, limit int) (*domain.ScanResult, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var result domain.ScanResult
	path := c.withProject("/api/v1/dynamodb/tables/"+url.PathEscape(table)+"/scan", q)
	if err := c.doData(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Query(spec domain.QuerySpec) (*domain.ScanResult, error) {
	q := url.Values{}
	q.Set("partitionKey", spec.PartitionKey)
	q.Set("partitionValue", spec.PartitionValue)
	if spec.SortKey != "" {
		q.Set("sortKey", spec.SortKey)
		q.Set("sortValue", spec.SortValue)
	}
	if spec.Limit > 0 {
		q.Set("limit", fmt.Sprint(spec.Limit))
	}
	var result domain.ScanResult
	path := c.withProject("/api/v1/dynamodb/tables/"+url.PathEscape(spec.Table)+"/query", q)
	if err := c.doData(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DescribeTable(table string) (json.RawMessage, error) {
	var schema json.RawMessage
	path := c.withProject("/api/v1/dynamodb/tables/"+url.PathEscape(table)+"/schema", nil)
	if err := c.doData(http.MethodGet, path, nil, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (c *Client) PutItem(table string, item json.RawMessage) error {
	body := map[string]any{"item": item}
	if c.project != "" {
		body["projectName"] = c.project
	}
	return c.do(http.MethodPost, "/api/v1/dynamodb/tables/"+url.PathEscape(table)+"/items", body, nil)
}
