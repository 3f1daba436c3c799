package observability

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"health-companion/services/chat-gateway/internal/config"
)

const tracerName = "health-companion/chat-gateway"

// Setup configures the OTLP trace exporter when tracing is enabled.
// The returned shutdown function flushes pending spans.
func Setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (func(context.Context) error, error) {
	if !cfg.EnableTracing {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{}
	if cfg.OTLPEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("tracing enabled")
	return provider.Shutdown, nil
}

// GetTracer returns the tracer for the chat gateway.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// RelayAttributes returns common attributes for relay spans.
func RelayAttributes(userID, conversationID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("relay.user_id", userID),
		attribute.String("relay.conversation_id", conversationID),
	}
}

// StartRelaySpan starts a new span for one relayed chat turn.
func StartRelaySpan(ctx context.Context, userID, conversationID string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "chat.relay",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(RelayAttributes(userID, conversationID)...),
	)
}

// StartPersistenceSpan starts a new span for a side-channel operation.
func StartPersistenceSpan(ctx context.Context, conversationID, operation string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "thread."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("thread.conversation_id", conversationID),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
