package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Morket semantic convention attributes.
var (
	// HTTP surface
	AttrRoute  = attribute.Key("morket.http.route")
	AttrMethod = attribute.Key("morket.http.method")
	AttrStatus = attribute.Key("morket.http.status")

	// Enrichment pipeline
	AttrProvider     = attribute.Key("morket.provider")
	AttrOutcome      = attribute.Key("morket.outcome")
	AttrBreakerState = attribute.Key("morket.breaker.state")

	// Billing
	AttrTransactionKind = attribute.Key("morket.transaction.kind")

	// Webhooks
	AttrEvent = attribute.Key("morket.event")
)

// RequestAttrs creates attributes for an HTTP request.
func RequestAttrs(method, route string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrMethod.String(method),
		AttrRoute.String(route),
	}
}
