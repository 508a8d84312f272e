package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id         UUID PRIMARY KEY,
	user_id    UUID        NOT NULL,
	status     TEXT        NOT NULL,
	total      NUMERIC     NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items (
	id         UUID PRIMARY KEY,
	order_id   UUID    NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
	position   INT     NOT NULL,
	product_id BIGINT  NOT NULL,
	quantity   INT     NOT NULL CHECK (quantity > 0),
	price      NUMERIC NOT NULL CHECK (price > 0),
	UNIQUE (order_id, product_id)
);
CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id);
`

type Repository struct {
	pool  *pgxpool.Pool
	scope *transaction.PgxScope
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, scope: transaction.NewPgxScope(pool)}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate orders: %w", err)
	}
	return nil
}

// Get locks the order row when called inside a transaction.
func (r *Repository) Get(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	q := transaction.Conn(ctx, r.pool)
	query := `SELECT user_id, status, created_at, updated_at FROM orders WHERE id=$1`
	if _, inTx := transaction.TxFromContext(ctx); inTx {
		query += ` FOR UPDATE`
	}

	var (
		userID               uuid.UUID
		statusName           string
		createdAt, updatedAt time.Time
	)
	err := q.QueryRow(ctx, query, id).Scan(&userID, &statusName, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	status, err := domain.ParseStatus(statusName)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}

	rows, err := q.Query(ctx, `SELECT id, product_id, quantity, price::text FROM order_items WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s items: %w", id, err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var (
			itemID    uuid.UUID
			productID int64
			qty       int
			priceText string
		)
		if err := rows.Scan(&itemID, &productID, &qty, &priceText); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceText)
		if err != nil {
			return nil, fmt.Errorf("order %s item price %q: %w", id, priceText, err)
		}
		items = append(items, domain.ReconstituteItem(itemID, productID, qty, price))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.Reconstitute(id, userID, status, items, createdAt, updatedAt), nil
}

// Save writes the order and replaces its lines.
func (r *Repository) Save(ctx context.Context, o *domain.Order) error {
	return r.scope.Execute(ctx, func(ctx context.Context) error {
		q := transaction.Conn(ctx, r.pool)
		_, err := q.Exec(ctx, `INSERT INTO orders (id, user_id, status, total, created_at, updated_at)
				VALUES ($1,$2,$3,$4::numeric,$5,$6)
				ON CONFLICT (id) DO UPDATE SET status=$3, total=$4::numeric, updated_at=$6`,
			o.ID(), o.UserID(), o.Status().String(), o.Total().String(), o.CreatedAt(), o.UpdatedAt())
		if err != nil {
			return fmt.Errorf("upsert order %s: %w", o.ID(), err)
		}

		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM order_items WHERE order_id=$1`, o.ID())
		for i, item := range o.Items() {
			batch.Queue(`INSERT INTO order_items (id, order_id, position, product_id, quantity, price)
				VALUES ($1,$2,$3,$4,$5,$6::numeric)`,
				item.ID(), o.ID(), i, item.ProductID(), item.Quantity(), item.Price().String())
		}
		if err := q.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write order %s items: %w", o.ID(), err)
		}
		return nil
	})
}

var _ application.OrderRepository = (*Repository)(nil)
