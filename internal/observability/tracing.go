package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/model"
)

const tracerName = "github.com/pitabwire/coreitems"

// Span names of the interaction service.
const (
	SpanInteract = "interaction.interact"
	SpanGrant    = "interaction.grant"
	SpanReload   = "interaction.reload"
	SpanScanAll  = "interaction.scan_all"
	SpanSave     = "interaction.save"
)

// Attribute keys. Every key carries the coreitems. prefix.
var (
	AttrNamespace      = attribute.Key("coreitems.namespace")
	AttrItemID         = attribute.Key("coreitems.item_id")
	AttrUserID         = attribute.Key("coreitems.user_id")
	AttrAction         = attribute.Key("coreitems.action")
	AttrOutcome        = attribute.Key("coreitems.outcome")
	AttrSubjectID      = attribute.Key("coreitems.subject_id")
	AttrCatalogs       = attribute.Key("coreitems.catalogs")
	AttrItems          = attribute.Key("coreitems.items")
	AttrCatalogVersion = attribute.Key("coreitems.catalog_version")
	AttrUsers          = attribute.Key("coreitems.users")
)

// ItemAttrs describes one resolved definition.
func ItemAttrs(def *model.ItemDefinition) []attribute.KeyValue {
	if def == nil {
		return nil
	}
	return []attribute.KeyValue{
		AttrNamespace.String(def.Namespace),
		AttrItemID.String(def.ID),
	}
}

// InitTracing installs the global TracerProvider and W3C propagator. The
// returned function flushes pending spans.
func InitTracing(ctx context.Context, cfg config.TracingConfig, serviceName, serviceVersion string) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp", "":
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		err = fmt.Errorf("unsupported exporter %q (supported: otlp, stdout)", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// newSampler samples root spans at rate, clamped to (0, 1], and follows the
// parent decision otherwise. A zero rate means 10%.
func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		rate = 0.1
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Tracer returns the package tracer, resolved from the global provider on
// every call so tests can swap providers.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts an internal span with attrs.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpanWithError records err, when set, and ends the span.
func EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceIDFromContext returns the active trace id or "".
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// TracingMiddleware starts a server span per request, continuing an inbound
// traceparent. Once chi has routed the request the span is renamed after the
// route pattern and tagged with the caller and the target user.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		}
		if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.SubjectID != "" {
			attrs = append(attrs, AttrSubjectID.String(rctx.SubjectID))
		}
		ctx, span := Tracer().Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))
		rw := newResponseRecorder(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(rw, r)

		if pattern := routePattern(r); pattern != r.URL.Path {
			span.SetName(r.Method + " " + pattern)
			span.SetAttributes(semconv.HTTPRoute(pattern))
		}
		if user := chi.URLParam(r, "userId"); user != "" {
			span.SetAttributes(AttrUserID.String(user))
		}
		span.SetAttributes(semconv.HTTPResponseStatusCode(rw.status))
		if rw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.status))
		}
	})
}
