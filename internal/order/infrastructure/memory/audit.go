package memory

import (
	"context"
	"sync"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

type AuditLog struct {
	mu      sync.Mutex
	entries []application.AuditEntry
}

func NewAuditLog() *AuditLog { return &AuditLog{} }

func (a *AuditLog) Record(_ context.Context, changes []domain.StatusChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range changes {
		a.entries = append(a.entries, application.AuditEntry{OrderID: c.OrderID, From: c.From, To: c.To, At: c.At})
	}
	return nil
}

func (a *AuditLog) History(_ context.Context, id domain.OrderID) ([]application.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []application.AuditEntry
	for _, e := range a.entries {
		if e.OrderID == id {
			out = append(out, e)
		}
	}
	return out, nil
}
