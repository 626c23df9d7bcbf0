package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextExtraction extracts W3C trace context from the traceparent and
// tracestate headers into the request context, so handler logs carry
// trace_id and span_id without this server creating spans.
//
// A nil propagator uses the global one.
func TraceContextExtraction(propagator propagation.TextMapPropagator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := propagator
			if p == nil {
				p = otel.GetTextMapPropagator()
			}
			ctx := p.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
				// No-op if Logging middleware does not exist.
				SetLogAttrs(ctx,
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
