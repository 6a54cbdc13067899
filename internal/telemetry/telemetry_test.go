package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/oriys/localcloud/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tel.IsEnabled() {
		t.Error("telemetry should be disabled")
	}
	if tel.Tracer() == nil {
		t.Error("tracer should not be nil")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	if id := TraceIDFromContext(context.Background()); id != "" {
		t.Errorf("TraceIDFromContext() = %q, want empty", id)
	}
}

func TestLogrusHook(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.AddHook(NewLogrusHook())

	logger.WithContext(ctx).Info("with trace")

	var fields map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if fields["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v", fields["trace_id"])
	}
	if fields["trace_sampled"] != true {
		t.Errorf("trace_sampled = %v", fields["trace_sampled"])
	}

	// 没有上下文时不添加字段
	buf.Reset()
	logger.Info("without trace")
	fields = nil
	_ = json.Unmarshal(buf.Bytes(), &fields)
	if _, ok := fields["trace_id"]; ok {
		t.Error("trace_id should be absent")
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "backend.scan")
	EndSpan(span, errors.New("exit status 1"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d", len(spans))
	}
	if spans[0].Status().Description != "exit status 1" {
		t.Errorf("status = %+v", spans[0].Status())
	}
	if len(spans[0].Events()) != 1 {
		t.Errorf("events = %d, want 1 error event", len(spans[0].Events()))
	}
}

func TestHTTPMiddleware(t *testing.T) {
	called := false
	h := HTTPMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !called || rec.Code != http.StatusNoContent {
		t.Errorf("called = %v, code = %d", called, rec.Code)
	}
}
