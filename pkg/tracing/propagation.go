package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const TraceparentHeader = "traceparent"

// InjectHeaders writes the W3C trace context of ctx into headers. Keys the
// caller already set win, so a relayed message keeps its original parent.
func InjectHeaders(ctx context.Context, headers map[string]string) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	if headers == nil {
		headers = make(map[string]string, len(carrier))
	}
	for k, v := range carrier {
		if _, ok := headers[k]; !ok {
			headers[k] = v
		}
	}
	return headers
}

func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
