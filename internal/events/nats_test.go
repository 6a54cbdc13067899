package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/domain"
)

// fakeJetStream 只实现测试用到的发布方法，其余方法调用会 panic。
type fakeJetStream struct {
	nats.JetStreamContext

	mu        sync.Mutex
	published map[string][][]byte
	err       error

	// block 非 nil 时 PublishAsync 阻塞直到其被关闭
	block chan struct{}
}

func (f *fakeJetStream) record(subj string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[subj] = append(f.published[subj], data)
}

func (f *fakeJetStream) messages(subj string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.published[subj]...)
}

// waitMessages 等待 subj 上出现 n 条消息
func waitMessages(t *testing.T, f *fakeJetStream, subj string, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs := f.messages(subj)
		if len(msgs) >= n || time.Now().After(deadline) {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.record(subj, data)
	return &nats.PubAck{Stream: "TEST"}, nil
}

func (f *fakeJetStream) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	f.record(subj, data)
	return nil, nil
}

func testBus(js nats.JetStreamContext) *EventBus {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return newEventBus(nil, js, logger)
}

func TestEventBus_WriteLogEntry(t *testing.T) {
	js := &fakeJetStream{}
	bus := testBus(js)
	defer bus.Close()

	entry := domain.LogEntry{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Level:     domain.LevelWarning,
		Message:   "Resource destruction warning: bucket busy",
		Source:    domain.SourceAutomation,
	}
	bus.Write(entry)

	msgs := waitMessages(t, js, "console.log.warning", 1)
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want one on console.log.warning", len(msgs))
	}

	var event Event
	if err := json.Unmarshal(msgs[0], &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != "console.log" || event.ID == "" || !event.Timestamp.Equal(entry.Timestamp) {
		t.Errorf("unexpected event: %+v", event)
	}

	var got domain.LogEntry
	if err := json.Unmarshal(event.Data, &got); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if got.Message != entry.Message || got.Level != entry.Level || got.Source != entry.Source {
		t.Errorf("entry = %+v, want %+v", got, entry)
	}
}

func TestEventBus_WriteFailureIsSilent(t *testing.T) {
	bus := testBus(&fakeJetStream{err: errors.New("no responders")})
	// 发布失败不应 panic
	bus.Write(domain.LogEntry{Level: domain.LevelInfo, Message: "x"})
	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

// TestEventBus_WriteDoesNotBlock 测试发布端阻塞时 Write 立即返回，超出缓冲的条目被丢弃。
func TestEventBus_WriteDoesNotBlock(t *testing.T) {
	js := &fakeJetStream{block: make(chan struct{})}
	bus := testBus(js)

	start := time.Now()
	for i := 0; i < logForwardBuffer+50; i++ {
		bus.Write(domain.LogEntry{Level: domain.LevelInfo, Message: "tick"})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Write blocked for %s", elapsed)
	}

	close(js.block)
	msgs := waitMessages(t, js, "console.log.info", 1)
	if len(msgs) == 0 {
		t.Fatal("no entries forwarded after publisher recovered")
	}
	if len(msgs) > logForwardBuffer+1 {
		t.Errorf("forwarded %d entries, want at most %d", len(msgs), logForwardBuffer+1)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// 重复关闭
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestEventBus_PublishResourcesCreated(t *testing.T) {
	js := &fakeJetStream{}
	bus := testBus(js)
	defer bus.Close()

	result := &domain.ResourceCreationResult{Success: true, Message: "All 1 resources created successfully"}
	if err := bus.PublishResourcesCreated(context.Background(), "my.app", result); err != nil {
		t.Fatalf("PublishResourcesCreated() error = %v", err)
	}
	if msgs := js.messages("resource.my_app.created"); len(msgs) != 1 {
		t.Errorf("published %d messages on resource.my_app.created, want 1", len(msgs))
	}
}

func TestEventBus_PublishError(t *testing.T) {
	bus := testBus(&fakeJetStream{err: errors.New("stream offline")})
	err := bus.PublishResourcesDestroyed(context.Background(), "demo", nil, &domain.OperationOutcome{Success: true})
	if err == nil {
		t.Fatal("expected publish error")
	}
}

func TestResourceSubject(t *testing.T) {
	tests := []struct {
		project string
		want    string
	}{
		{"demo", "resource.demo.created"},
		{"a.b", "resource.a_b.created"},
		{"x*>", "resource.x__.created"},
		{"", "resource._.created"},
	}
	for _, tt := range tests {
		if got := resourceSubject(tt.project, "created"); got != tt.want {
			t.Errorf("resourceSubject(%q) = %q, want %q", tt.project, got, tt.want)
		}
	}
}

func TestStreams(t *testing.T) {
	names := map[string]bool{}
	for _, s := range Streams() {
		names[s.Name] = true
	}
	if !names["CONSOLE_LOGS"] || !names["RESOURCES"] {
		t.Errorf("Streams() = %v", names)
	}
}
