// Package tracing wraps each backend call in an OpenTracing client span.
// With no tracer configured, opentracing-go's NoopTracer makes this a
// no-op.
package tracing

import (
	"context"

	ot "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

const (
	componentTag      = "component"
	httpMethodTag     = "http.method"
	httpURLTag        = "http.url"
	httpStatusCodeTag = "http.status_code"
	routeAuthorityTag = "router.authority"
)

// StartBackendSpan starts a client span for one outbound backend exchange
// and returns the span plus a context carrying it.
func StartBackendSpan(ctx context.Context, tracer ot.Tracer, authority, method string, url string) (ot.Span, context.Context) {
	if tracer == nil {
		tracer = ot.NoopTracer{}
	}

	span := tracer.StartSpan("backend_request")
	ext.SpanKindRPCClient.Set(span)
	span.SetTag(componentTag, "openaperture-router")
	span.SetTag(httpMethodTag, method)
	span.SetTag(httpURLTag, url)
	span.SetTag(routeAuthorityTag, authority)

	return span, ot.ContextWithSpan(ctx, span)
}

// FinishBackendSpan tags the final status code (0 on error) and finishes
// the span.
func FinishBackendSpan(span ot.Span, statusCode int, err error) {
	if statusCode > 0 {
		span.SetTag(httpStatusCodeTag, statusCode)
	}
	if err != nil {
		ext.Error.Set(span, true)
	}
	span.Finish()
}
