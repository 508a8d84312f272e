// Package sqlite stores the order status history in an append-only SQLite
// table, next to but independent of the order database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"

	// pure-Go driver, registered as "sqlite"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_status_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id    TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status   TEXT NOT NULL,
	changed_at  TEXT NOT NULL,
	trace_id    TEXT NOT NULL DEFAULT '',
	span_id     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_order_status_log_order ON order_status_log(order_id, id);
`

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

type AuditLog struct {
	db *sql.DB
}

// Open creates the database file if needed. Use ":memory:" in tests.
func Open(path string) (*AuditLog, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &AuditLog{db: db}, nil
}

func (a *AuditLog) Close() error {
	return a.db.Close()
}

// Record stamps every change with the trace of ctx.
func (a *AuditLog) Record(ctx context.Context, changes []domain.StatusChange) error {
	var traceID, spanID string
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID, spanID = sc.TraceID().String(), sc.SpanID().String()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range changes {
		from := ""
		if c.From.IsValid() {
			from = c.From.String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_status_log (order_id, from_status, to_status, changed_at, trace_id, span_id) VALUES (?, ?, ?, ?, ?, ?)`,
			c.OrderID.String(), from, c.To.String(), c.At.UTC().Format(timeLayout), traceID, spanID)
		if err != nil {
			return fmt.Errorf("sqlite: record %s: %w", c.OrderID, err)
		}
	}
	return tx.Commit()
}

func (a *AuditLog) History(ctx context.Context, id domain.OrderID) ([]application.AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT from_status, to_status, changed_at, trace_id, span_id FROM order_status_log WHERE order_id = ? ORDER BY id`,
		id.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: history %s: %w", id, err)
	}
	defer rows.Close()

	var out []application.AuditEntry
	for rows.Next() {
		var from, to, at string
		e := application.AuditEntry{OrderID: id}
		if err := rows.Scan(&from, &to, &at, &e.TraceID, &e.SpanID); err != nil {
			return nil, err
		}
		if from != "" {
			if e.From, err = domain.ParseStatus(from); err != nil {
				return nil, err
			}
		}
		if e.To, err = domain.ParseStatus(to); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("sqlite: changed_at %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ application.AuditLog = (*AuditLog)(nil)
