package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("channel", "retail"),
		attribute.String("customer_email", "a@b.md"),
		attribute.String("order_number", "BO-1"),
		attribute.String("reason", "expired"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "channel" || attrs[1].Key != "reason" {
		t.Fatalf("unexpected attributes retained: %v", attrs)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordOrderCreated(context.Background(), "retail")
	m.RecordTicketsIssued(context.Background(), "retail", 3)

	NewNoop().RecordPromoRejection(context.Background(), "expired")
}
