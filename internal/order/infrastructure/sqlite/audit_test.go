package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/sqlite"
)

func TestAuditLogRecordsAndReadsHistory(t *testing.T) {
	// Arrange
	log, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	id, other := domain.NewOrderID(), domain.NewOrderID()
	at := time.Date(2025, 3, 1, 10, 0, 0, 123, time.UTC)
	changes := []domain.StatusChange{
		{OrderID: id, To: domain.StatusCreated, At: at},
		{OrderID: id, From: domain.StatusCreated, To: domain.StatusConfirmed, At: at.Add(time.Second)},
		{OrderID: other, To: domain.StatusCreated, At: at},
	}

	// Act
	if err := log.Record(ctx, changes); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries, err := log.History(context.Background(), id)

	// Assert
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want 2", entries)
	}
	if entries[0].From.IsValid() || entries[0].To != domain.StatusCreated {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].From != domain.StatusCreated || entries[1].To != domain.StatusConfirmed {
		t.Errorf("second entry = %+v", entries[1])
	}
	if !entries[1].At.Equal(at.Add(time.Second)) {
		t.Errorf("at = %s", entries[1].At)
	}
	if entries[0].TraceID != span.SpanContext().TraceID().String() {
		t.Errorf("trace id = %q", entries[0].TraceID)
	}
}
