package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderCarrier adapts message headers to a propagation.TextMapCarrier.
type HeaderCarrier map[string]interface{}

var _ propagation.TextMapCarrier = HeaderCarrier(nil)

func (c HeaderCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (c HeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectHeaders writes the trace context of ctx into headers, allocating the
// map when needed.
func InjectHeaders(ctx context.Context, headers map[string]interface{}) map[string]interface{} {
	if headers == nil {
		headers = make(map[string]interface{})
	}
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(headers))
	return headers
}

// ExtractHeaders returns ctx enriched with the trace context found in headers.
func ExtractHeaders(ctx context.Context, headers map[string]interface{}) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, HeaderCarrier(headers))
}
