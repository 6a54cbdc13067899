package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/oriys/localcloud/internal/auth"
	"github.com/oriys/localcloud/internal/domain"
)

// runCLI 指向测试服务器执行一次命令，返回标准输出
func runCLI(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	// cobra 在多次 Execute 之间保留标志值，这里逐一复位
	createTemplate, createConfigs = "", nil
	tableLimit, queryPK, queryPV, querySK, querySV = 0, "", "", "", ""
	logsLevel, logsLimit, logsFollow = "", 0, false

	viper.Set("api_url", serverURL)
	viper.Set("output", "table")
	viper.Set("project", "demo")
	viper.Set("token", "")
	defer func() {
		viper.Set("api_url", "")
		viper.Set("output", "")
		viper.Set("project", "")
	}()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/emulator/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeData(w, map[string]any{
			"running":  true,
			"endpoint": "http://localhost:4566",
			"health":   "healthy",
			"uptime":   "running",
		})
	}))
	defer server.Close()

	output, err := runCLI(t, server.URL, "status")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, want := range []string{"yes", "healthy", "http://localhost:4566", "running"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}

func TestStatus_JSONOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"running": false, "endpoint": "http://localhost:4566", "health": "unhealthy", "uptime": nil})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("output", "json")
	defer viper.Set("api_url", "")
	defer viper.Set("output", "")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"status"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var status domain.EmulatorStatus
	if err := json.Unmarshal(buf.Bytes(), &status); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if status.Running || status.Health != domain.HealthUnhealthy || status.Uptime != nil {
		t.Errorf("status = %+v", status)
	}
}

func TestLogs_QueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("level"); got != "error" {
			t.Errorf("level = %q, want error", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q, want 5", got)
		}
		writeData(w, []map[string]any{{
			"timestamp": "2026-01-02T03:04:05Z",
			"level":     "error",
			"message":   "bucket failed",
			"source":    "automation",
		}})
	}))
	defer server.Close()

	output, err := runCLI(t, server.URL, "logs", "--level", "error", "--limit", "5")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(output, "bucket failed") || !strings.Contains(output, "automation") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestResourcesList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("projectName"); got != "demo" {
			t.Errorf("projectName = %q, want demo", got)
		}
		writeData(w, []map[string]any{{
			"id":        "s3-demo-bucket",
			"name":      "demo-bucket",
			"type":      "s3",
			"status":    "active",
			"project":   "demo",
			"createdAt": "2026-01-02T03:04:05Z",
		}})
	}))
	defer server.Close()

	output, err := runCLI(t, server.URL, "resources", "list")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(output, "s3-demo-bucket") || !strings.Contains(output, "active") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestResourcesCreate(t *testing.T) {
	var got domain.CreateResourcesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/resources" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(domain.ResourceCreationResult{
			Success: true,
			Message: "Created 1 resources with 1 errors",
			CreatedResources: []domain.ResourceDescriptor{
				{ID: "s3-demo-s3", Name: "demo-s3", Type: "s3", Status: domain.ResourceStatusActive},
			},
			Errors: []domain.KindError{{Kind: domain.KindKVTable, Message: "table exists"}},
		})
	}))
	defer server.Close()

	configFile := filepath.Join(t.TempDir(), "table.json")
	if err := os.WriteFile(configFile, []byte(`{"tableName":"orders","partitionKey":"id"}`), 0644); err != nil {
		t.Fatal(err)
	}

	output, err := runCLI(t, server.URL, "resources", "create", "s3", "dynamodb", "--config", "dynamodb="+configFile)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got.ProjectName != "demo" || !got.Resources[domain.KindObjectStore] || !got.Resources[domain.KindKVTable] {
		t.Errorf("request = %+v", got)
	}
	if !strings.Contains(string(got.Config[domain.KindKVTable]), "orders") {
		t.Errorf("dynamodb config = %s", got.Config[domain.KindKVTable])
	}
	for _, want := range []string{"Created 1 resources", "s3-demo-s3", "table exists"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}

func TestResourcesCreate_UnknownKind(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	if _, err := runCLI(t, server.URL, "resources", "create", "kinesis"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if called {
		t.Error("request sent for invalid kind")
	}
}

func TestParseKindConfigs(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "bucket.json")
	invalid := filepath.Join(dir, "bad.json")
	os.WriteFile(valid, []byte(`{"bucketName":"assets"}`), 0644)
	os.WriteFile(invalid, []byte(`{`), 0644)

	tests := []struct {
		name    string
		specs   []string
		wantErr bool
	}{
		{"空参数", nil, false},
		{"合法配置", []string{"s3=" + valid}, false},
		{"缺少等号", []string{"s3"}, true},
		{"未知类型", []string{"kinesis=" + valid}, true},
		{"文件不存在", []string{"s3=" + filepath.Join(dir, "missing.json")}, true},
		{"非法 JSON", []string{"s3=" + invalid}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs, err := parseKindConfigs(tt.specs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseKindConfigs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(tt.specs) > 0 && len(configs[domain.KindObjectStore]) == 0 {
				t.Errorf("configs = %v", configs)
			}
		})
	}
}

func TestResourcesDelete(t *testing.T) {
	var got domain.DestroySingleResourceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/resources/destroy-single" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(domain.OperationOutcome{Success: true, Message: "Bucket demo-s3 deleted"})
	}))
	defer server.Close()

	output, err := runCLI(t, server.URL, "resources", "delete", "s3", "demo-s3")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got.ResourceType != domain.KindObjectStore || got.ResourceName != "demo-s3" || got.ProjectName != "demo" {
		t.Errorf("request = %+v", got)
	}
	if !strings.Contains(output, "Bucket demo-s3 deleted") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"success":    false,
			"error":      "Project name is required",
			"request_id": "req-1",
		})
	}))
	defer server.Close()

	_, err := runCLI(t, server.URL, "resources", "destroy")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != http.StatusBadRequest || apiErr.Message != "Project name is required" || apiErr.RequestID != "req-1" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "Request ID: req-1") {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}

func TestTablesScan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/dynamodb/tables/orders/scan" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"data":{"items":[{"id":{"S":"1"},"total":{"N":"9.5"}}],"count":1,"scannedCount":1}}`)
	}))
	defer server.Close()

	output, err := runCLI(t, server.URL, "tables", "scan", "orders")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// 表格输出解码为普通 JSON，属性顺序保持不变
	if !strings.Contains(output, `{"id":"1","total":9.5}`) {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestTablesQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("partitionKey") != "customerId" || q.Get("partitionValue") != "c-42" || q.Get("sortKey") != "" {
			t.Errorf("query = %v", q)
		}
		io.WriteString(w, `{"success":true,"data":{"items":[],"count":0,"scannedCount":0}}`)
	}))
	defer server.Close()

	output, err := runCLI(t, server.URL, "tables", "query", "orders", "--pk", "customerId", "--pv", "c-42")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(output, "Count: 0") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestTablesPut(t *testing.T) {
	var body map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"success":true}`)
	}))
	defer server.Close()

	output, err := runCLI(t, server.URL, "tables", "put", "orders", `{"id":{"S":"1"}}`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(body["item"]) != `{"id":{"S":"1"}}` {
		t.Errorf("item = %s", body["item"])
	}
	if !strings.Contains(output, "Item added to table orders") {
		t.Errorf("unexpected output: %s", output)
	}

	// 空记录在本地被拒绝
	if _, err := runCLI(t, server.URL, "tables", "put", "orders", `{}`); err == nil {
		t.Error("expected error for empty item")
	}
}

func TestToken(t *testing.T) {
	output, err := runCLI(t, "", "token", "--secret", "s3cret", "--subject", "alice", "--role", "viewer")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	claims, err := auth.NewJWTManager("s3cret", 0).Validate(strings.TrimSpace(output))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "alice" || claims.Role != auth.RoleViewer {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := runCLI(t, "", "token", "--secret", "s3cret", "--role", "admin"); err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestBuildWebSocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:3031", "ws://localhost:3031/api/console/logs/stream"},
		{"https://console.example.com/", "wss://console.example.com/api/console/logs/stream"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := buildWebSocketURL(tt.base, "/api/console/logs/stream")
			if err != nil {
				t.Fatalf("buildWebSocketURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("buildWebSocketURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
