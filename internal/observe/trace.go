package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for every span the interview
// server emits.
const tracerName = "github.com/MrWong99/kolloq"

// Tracer returns the server's [trace.Tracer] from the globally registered
// provider (set up by [InitProvider]).
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span under the interview server's tracer. The caller
// must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace id of the active span, or empty when ctx holds
// none. It doubles as the value of the X-Correlation-ID header, tying a
// candidate-visible request to its telemetry.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
