package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/keystore/internal/infrastructure/monitoring"
	"github.com/turtacn/keystore/pkg/constants"
)

// Observability returns a Gin middleware that integrates Prometheus metrics and OpenTelemetry tracing.
// Metrics are labeled with the route template, never the raw path, to keep cardinality bounded.
// Observability 返回一个集成了 Prometheus 指标和 OpenTelemetry 跟踪的 Gin 中间件。
func Observability(tracer trace.Tracer, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "not_found"
		}

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if sc := span.SpanContext(); sc.IsValid() {
			ctx = context.WithValue(ctx, constants.ContextKeyTraceID, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		if metrics != nil {
			metrics.ActiveRequestsInc(route, c.Request.Method)
			defer metrics.ActiveRequestsDec(route, c.Request.Method)
		}

		c.Next()

		status := c.Writer.Status()
		if metrics != nil {
			metrics.ObserveRequest(route, c.Request.Method, status, time.Since(start))
		}

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}
