package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/messaging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

const schema = `
CREATE TABLE IF NOT EXISTS outbox (
	id          BIGSERIAL PRIMARY KEY,
	queue       TEXT        NOT NULL,
	message_key TEXT        NOT NULL,
	payload     BYTEA       NOT NULL,
	headers     JSONB       NOT NULL DEFAULT '{}',
	status      TEXT        NOT NULL DEFAULT 'pending',
	relay_id    TEXT,
	lease_until TIMESTAMPTZ,
	retry_count INT         NOT NULL DEFAULT 0,
	last_error  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_status_id_idx ON outbox (status, id);
`

type PGStore struct {
	pool       *pgxpool.Pool
	maxRetries int
}

func NewPGStore(pool *pgxpool.Pool, maxRetries int) *PGStore {
	return &PGStore{pool: pool, maxRetries: maxRetries}
}

func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate outbox: %w", err)
	}
	return nil
}

// Enqueue joins the caller's transaction when there is one.
func (s *PGStore) Enqueue(ctx context.Context, msgs ...messaging.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range msgs {
		headers := m.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		batch.Queue(`INSERT INTO outbox (queue, message_key, payload, headers, status) VALUES ($1,$2,$3,$4,'pending')`,
			m.Queue, m.Key, m.Payload, headers)
	}

	if err := transaction.Conn(ctx, s.pool).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

func (s *PGStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, queue, message_key, payload, headers, status, retry_count, last_error, created_at
		FROM outbox
		WHERE status = 'pending'
		   OR (status = 'failed' AND retry_count < $2)
		   OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, batchSize, s.maxRetries)
	if err != nil {
		return nil, err
	}

	var events []Event
	for rows.Next() {
		var e Event
		var status string
		if err := rows.Scan(&e.ID, &e.Queue, &e.Key, &e.Payload, &e.Headers, &status, &e.RetryCount, &e.LastError, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.Status = Status(status)
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + make_interval(secs => $2) WHERE id = ANY($3)`,
		relayID, lease.Seconds(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *PGStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent', lease_until=NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("mark sent: no rows updated for %v", ids)
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='failed', last_error=$2, retry_count=retry_count+1, lease_until=NULL WHERE id=$1`, id, errMsg)
	return err
}

func (s *PGStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET lease_until=now() + make_interval(secs => $1) WHERE id = ANY($2) AND relay_id=$3`,
		lease.Seconds(), ids, relayID)
	return err
}

var (
	_ Store    = (*PGStore)(nil)
	_ Enqueuer = (*PGStore)(nil)
)
