package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsIdentifiers(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "CASH"),
		attribute.String("user_id", "456"),
		attribute.String("invoice_id", "789"),
		attribute.String("entry_type", "SETTLEMENT"),
	)

	keys := make([]attribute.Key, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	assert.ElementsMatch(t, []attribute.Key{"source", "entry_type"}, keys)
}

func TestNewOnNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "duesledger"}, noop.NewMeterProvider())
	assert.NoError(t, err)
	assert.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.RecordPayment(context.Background(), "CASH")
		m.RecordLedgerEntry(context.Background(), "EXPENSE")
		m.RecordSettlement(context.Background())
	})
}
