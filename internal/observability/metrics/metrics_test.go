package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsUnknownKeys(t *testing.T) {
	filtered := FilterAttributes(
		attribute.String("event_type", "checkout.session.completed"),
		attribute.String("account_id", "1234567890"),
		attribute.String("reason", "missing_user_id"),
	)

	if len(filtered) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(filtered))
	}
	for _, attr := range filtered {
		if attr.Key == "account_id" {
			t.Fatalf("high-cardinality key %q must be filtered", attr.Key)
		}
	}
}
