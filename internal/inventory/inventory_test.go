package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/attribute"
	"github.com/oriys/localcloud/internal/backend"
	"github.com/oriys/localcloud/internal/backend/backendtest"
	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/eventlog"
)

func newTestService(respond func(call backendtest.Call) (*backend.Output, error)) (*Service, *backendtest.Fake, *eventlog.EventLog) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	fake := &backendtest.Fake{Respond: respond}
	events := eventlog.New(eventlog.Options{})
	return New(fake, events, logger), fake, events
}

// countLevel 统计指定级别的日志条数
func countLevel(events *eventlog.EventLog, level domain.LogLevel) int {
	n := 0
	for _, e := range events.Snapshot() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func lastMessage(events *eventlog.EventLog) string {
	entries := events.Snapshot()
	if len(entries) == 0 {
		return ""
	}
	return entries[len(entries)-1].Message
}

func TestScan_NonJSONOutput(t *testing.T) {
	svc, _, events := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		return backendtest.Stdout("An error occurred (ResourceNotFoundException)"), nil
	})

	result := svc.Scan(context.Background(), "demo", "orders", 0)

	if result.Items == nil || len(result.Items) != 0 || result.Count != 0 || result.ScannedCount != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
	if got := countLevel(events, domain.LevelError); got != 1 {
		t.Errorf("error entries = %d, want 1", got)
	}
	if !strings.HasPrefix(lastMessage(events), "Failed to parse DynamoDB scan JSON") {
		t.Errorf("message = %q", lastMessage(events))
	}

	b, _ := json.Marshal(result)
	if string(b) != `{"items":[],"count":0,"scannedCount":0}` {
		t.Errorf("JSON = %s", b)
	}
}

func TestScan_Output(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
	}{
		{"lower case keys", `{"items":[{"id":{"S":"1"},"age":{"N":"42"}}],"count":1,"scannedCount":7}`},
		{"aws style keys", `{"Items":[{"id":{"S":"1"},"age":{"N":"42"}}],"Count":1,"ScannedCount":7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, fake, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
				return backendtest.Stdout(tt.stdout), nil
			})
			result := svc.Scan(context.Background(), "demo", "orders", 0)

			// count 与 scannedCount 由后端给出，不要求与 items 数量一致
			if len(result.Items) != 1 || result.Count != 1 || result.ScannedCount != 7 {
				t.Fatalf("result = %+v", result)
			}
			v, ok := result.Items[0].Get("age")
			if !ok || v != attribute.Number("42") {
				t.Errorf("age = %#v", v)
			}
			if fake.Calls()[0].Args[1] != "100" {
				t.Errorf("default limit not applied: %v", fake.Calls()[0].Args)
			}
		})
	}
}

func TestScan_InvocationFailure(t *testing.T) {
	svc, _, events := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		return nil, backendtest.Fail(call, "exit status 255")
	})
	result := svc.Scan(context.Background(), "demo", "orders", 10)
	if len(result.Items) != 0 {
		t.Errorf("result = %+v", result)
	}
	if lastMessage(events) != "Failed to scan DynamoDB table: exit status 255" {
		t.Errorf("message = %q", lastMessage(events))
	}
}

func TestQuery(t *testing.T) {
	svc, fake, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		return backendtest.Stdout(`{"items":[],"count":0,"scannedCount":0}`), nil
	})

	_, err := svc.Query(context.Background(), "demo", domain.QuerySpec{Table: "orders"})
	if !errors.Is(err, domain.ErrMissingField) {
		t.Errorf("error = %v, want ErrMissingField", err)
	}
	if len(fake.Calls()) != 0 {
		t.Error("backend should not be invoked for invalid query")
	}

	_, err = svc.Query(context.Background(), "demo", domain.QuerySpec{
		Table: "orders", PartitionKey: "id", PartitionValue: "1", SortKey: "ts",
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := []string{"orders", "id", "1", "ts", "", "100"}
	got := fake.Calls()[0].Args
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestListResources(t *testing.T) {
	tests := []struct {
		name      string
		respond   func(call backendtest.Call) (*backend.Output, error)
		wantLen   int
		wantError string
	}{
		{
			name: "array",
			respond: func(call backendtest.Call) (*backend.Output, error) {
				return backendtest.Stdout(`[{"id":"a","name":"demo-s3","type":"s3","createdAt":"2024-01-01T00:00:00Z"},{"id":"b","name":"t","type":"dynamodb","createdAt":"not a time"}]`), nil
			},
			wantLen: 2,
		},
		{
			name: "not an array",
			respond: func(call backendtest.Call) (*backend.Output, error) {
				return backendtest.Stdout(`{"id":"a"}`), nil
			},
			wantError: "Resource listing output is not a JSON array",
		},
		{
			name: "garbage",
			respond: func(call backendtest.Call) (*backend.Output, error) {
				return backendtest.Stdout("no resources found"), nil
			},
			wantError: "Failed to parse resource listing JSON",
		},
		{
			name: "invocation failure",
			respond: func(call backendtest.Call) (*backend.Output, error) {
				return nil, backendtest.Fail(call, "timeout")
			},
			wantError: "Failed to list resources: timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, events := newTestService(tt.respond)
			got := svc.ListResources(context.Background(), "demo")
			if got == nil || len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantError != "" && !strings.HasPrefix(lastMessage(events), tt.wantError) {
				t.Errorf("message = %q, want prefix %q", lastMessage(events), tt.wantError)
			}
			if tt.wantError == "" && countLevel(events, domain.LevelError) != 0 {
				t.Errorf("unexpected error entries: %v", events.Snapshot())
			}
		})
	}
}

func TestListBuckets(t *testing.T) {
	svc, _, events := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		return &backend.Output{
			Stdout: []byte(`[{"name":"demo-s3","type":"s3","createdAt":"2024-01-01T00:00:00Z"},{"name":"demo-dynamodb","type":"dynamodb"}]`),
			Stderr: "slow listing",
		}, nil
	})
	buckets := svc.ListBuckets(context.Background(), "demo")
	if len(buckets) != 1 || buckets[0].Name != "demo-s3" || buckets[0].CreationDate != "2024-01-01T00:00:00Z" {
		t.Errorf("buckets = %+v", buckets)
	}
	if lastMessage(events) != "Bucket listing warning: slow listing" {
		t.Errorf("message = %q", lastMessage(events))
	}
}

func TestListBucketContents(t *testing.T) {
	svc, fake, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		return backendtest.Stdout(`[{"Key":"a.txt","Size":12,"LastModified":"2024-01-01T00:00:00Z"}]`), nil
	})
	objects := svc.ListBucketContents(context.Background(), "demo", "demo-s3")
	if len(objects) != 1 || objects[0].Key != "a.txt" || objects[0].Size != 12 {
		t.Errorf("objects = %+v", objects)
	}
	if fake.Calls()[0].Args[0] != "demo-s3" {
		t.Errorf("call = %+v", fake.Calls()[0])
	}
}

func TestListTables(t *testing.T) {
	svc, _, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		return backendtest.Stdout(`["orders", {"TableName":"users"}, {"name":"events"}, 42]`), nil
	})
	got := svc.ListTables(context.Background(), "demo")
	if strings.Join(got, ",") != "orders,users,events" {
		t.Errorf("tables = %v", got)
	}
}

func TestGetObject(t *testing.T) {
	t.Run("with metadata", func(t *testing.T) {
		svc, _, events := newTestService(func(call backendtest.Call) (*backend.Output, error) {
			return &backend.Output{
				Stdout: []byte("hello world"),
				Stderr: `<!--METADATA:{"ContentType":"text/plain","ContentLength":11}-->`,
			}, nil
		})
		obj, err := svc.GetObject(context.Background(), "demo", "demo-s3", "hello.txt")
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		if obj.Content != "hello world" || obj.Metadata["ContentType"] != "text/plain" {
			t.Errorf("object = %+v", obj)
		}
		if lastMessage(events) != "Object downloaded: hello.txt from bucket demo-s3" {
			t.Errorf("message = %q", lastMessage(events))
		}
	})

	t.Run("bad metadata", func(t *testing.T) {
		svc, _, events := newTestService(func(call backendtest.Call) (*backend.Output, error) {
			return &backend.Output{Stdout: []byte("x"), Stderr: "<!--METADATA:{broken-->"}, nil
		})
		obj, err := svc.GetObject(context.Background(), "demo", "b", "k")
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		if len(obj.Metadata) != 0 {
			t.Errorf("metadata = %v", obj.Metadata)
		}
		if countLevel(events, domain.LevelWarning) != 1 {
			t.Errorf("entries = %v", events.Snapshot())
		}
	})

	t.Run("not found", func(t *testing.T) {
		svc, _, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
			return nil, &backend.InvocationError{Action: call.Action, Err: errors.New("exit status 1"), Stderr: "An error occurred (NoSuchKey)"}
		})
		_, err := svc.GetObject(context.Background(), "demo", "b", "missing")
		if !errors.Is(err, domain.ErrObjectNotFound) {
			t.Errorf("error = %v, want ErrObjectNotFound", err)
		}
	})

	t.Run("failure", func(t *testing.T) {
		svc, _, events := newTestService(func(call backendtest.Call) (*backend.Output, error) {
			return nil, backendtest.Fail(call, "permission denied")
		})
		_, err := svc.GetObject(context.Background(), "demo", "b", "k")
		if err == nil || errors.Is(err, domain.ErrObjectNotFound) {
			t.Errorf("error = %v", err)
		}
		if lastMessage(events) != "Failed to download object: permission denied" {
			t.Errorf("message = %q", lastMessage(events))
		}
	})
}

func TestDeleteObject(t *testing.T) {
	svc, _, events := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		return &backend.Output{Stdout: []byte("delete: s3://b/k\n"), Stderr: "retrying"}, nil
	})
	msg, err := svc.DeleteObject(context.Background(), "demo", "b", "k")
	if err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
	if msg != "delete: s3://b/k" {
		t.Errorf("message = %q", msg)
	}
	entries := events.Snapshot()
	if len(entries) != 2 || entries[0].Message != "S3 delete-object warning: retrying" || entries[1].Message != "Object deleted: k from bucket b" {
		t.Errorf("entries = %v", entries)
	}
}

func TestDescribeTable(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, _, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
			return backendtest.Stdout(`{"Table":{"TableName":"orders"}}`), nil
		})
		raw, err := svc.DescribeTable(context.Background(), "demo", "orders")
		if err != nil {
			t.Fatalf("DescribeTable() error = %v", err)
		}
		if !strings.Contains(string(raw), `"orders"`) {
			t.Errorf("schema = %s", raw)
		}
	})

	for _, name := range []string{"failure", "unparseable"} {
		t.Run(name, func(t *testing.T) {
			svc, _, events := newTestService(func(call backendtest.Call) (*backend.Output, error) {
				if name == "failure" {
					return nil, backendtest.Fail(call, "ResourceNotFoundException")
				}
				return backendtest.Stdout("<html>"), nil
			})
			_, err := svc.DescribeTable(context.Background(), "demo", "missing")
			if !errors.Is(err, domain.ErrTableNotFound) {
				t.Errorf("error = %v, want ErrTableNotFound", err)
			}
			if countLevel(events, domain.LevelError) != 1 {
				t.Errorf("entries = %v", events.Snapshot())
			}
		})
	}
}

func TestPutItem(t *testing.T) {
	svc, fake, events := newTestService(nil)

	item := attribute.EncodeItem([]attribute.Node{
		{Name: "id", Kind: "string", Value: "1"},
		{Name: "age", Kind: "number", Value: "42"},
	})
	if err := svc.PutItem(context.Background(), "demo", "orders", item); err != nil {
		t.Fatalf("PutItem() error = %v", err)
	}
	call := fake.Calls()[0]
	if string(call.Config) != `{"id":{"S":"1"},"age":{"N":"42"}}` {
		t.Errorf("item payload = %s", call.Config)
	}
	if lastMessage(events) != "Item added to DynamoDB table orders" {
		t.Errorf("message = %q", lastMessage(events))
	}

	if err := svc.PutItem(context.Background(), "demo", "orders", nil); !errors.Is(err, domain.ErrMissingField) {
		t.Errorf("empty item error = %v", err)
	}
}

func TestListSecrets(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
	}{
		{"envelope", `{"SecretList":[{"Name":"db","Description":"db creds","LastChangedDate":1714564800,"Tags":[{"Key":"env","Value":"dev"}]}]}`},
		{"array", `[{"Name":"db","Description":"db creds","LastChangedDate":"2024-05-01T12:00:00Z","Tags":[{"Key":"env","Value":"dev"}],"SecretString":"leak"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
				return backendtest.Stdout(tt.stdout), nil
			})
			secrets := svc.ListSecrets(context.Background(), "demo")
			if len(secrets) != 1 {
				t.Fatalf("secrets = %+v", secrets)
			}
			s := secrets[0]
			if s.Name != "db" || s.LastChangedDate != "2024-05-01T12:00:00Z" || len(s.Tags) != 1 || s.Tags[0].Key != "env" {
				t.Errorf("secret = %+v", s)
			}
			if s.SecretString != nil {
				t.Error("listing must not include secret values")
			}
		})
	}
}

func TestGetSecret(t *testing.T) {
	svc, fake, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		if call.Args[1] == "true" {
			return backendtest.Stdout(`{"Name":"db","SecretString":"s3cr3t","VersionId":"v2"}`), nil
		}
		return backendtest.Stdout(`{"Name":"db","Description":"db creds"}`), nil
	})

	secret, err := svc.GetSecret(context.Background(), "demo", "db", false)
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if secret.SecretString != nil || secret.Description != "db creds" {
		t.Errorf("secret = %+v", secret)
	}

	secret, err = svc.GetSecret(context.Background(), "demo", "db", true)
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if secret.SecretString == nil || *secret.SecretString != "s3cr3t" || secret.VersionID != "v2" || secret.Description != "db creds" {
		t.Errorf("secret = %+v", secret)
	}
	if len(fake.Calls()) != 3 {
		t.Errorf("calls = %d, want 3", len(fake.Calls()))
	}

	failing, _, _ := newTestService(func(call backendtest.Call) (*backend.Output, error) {
		return nil, backendtest.Fail(call, "ResourceNotFoundException")
	})
	if _, err := failing.GetSecret(context.Background(), "demo", "nope", false); !errors.Is(err, domain.ErrSecretNotFound) {
		t.Errorf("error = %v, want ErrSecretNotFound", err)
	}
}
