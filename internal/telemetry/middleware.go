package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// HTTPMiddleware 为传入请求创建服务端 Span，并从请求头提取上游追踪上下文。
// Span 名称为 "方法 路径"，如 "GET /api/v1/resources"。
//
//	r.Use(telemetry.HTTPMiddleware("localcloud-api"))
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			// 日志流是长连接，不追踪
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/api/console/logs/stream"
			}),
		)
	}
}

// HTTPClientTransport 返回带追踪的 RoundTripper，base 为 nil 时使用 http.DefaultTransport。
// 出站请求会注入 traceparent 头。
func HTTPClientTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base,
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
	)
}
