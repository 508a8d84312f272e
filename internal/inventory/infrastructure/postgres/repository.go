package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/transaction"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	price       NUMERIC NOT NULL CHECK (price > 0),
	stock       INT     NOT NULL CHECK (stock >= 0)
);
CREATE UNIQUE INDEX IF NOT EXISTS products_name_key ON products (lower(name));
CREATE TABLE IF NOT EXISTS processed_messages (
	queue        TEXT        NOT NULL,
	message_id   TEXT        NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (queue, message_id)
);
`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate products: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT name, description, price::text, stock FROM products WHERE id=$1`
	if _, inTx := transaction.TxFromContext(ctx); inTx {
		query += ` FOR UPDATE`
	}
	var (
		name, description, priceText string
		stock                        int
	)
	err := transaction.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(&name, &description, &priceText, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load product %d: %w", id, err)
	}
	price, err := decimal.NewFromString(priceText)
	if err != nil {
		return nil, fmt.Errorf("product %d price %q: %w", id, priceText, err)
	}
	return domain.Reconstitute(id, name, description, price, stock), nil
}

func (r *Repository) Create(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	var id int64
	err := transaction.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO products (name, description, price, stock) VALUES ($1,$2,$3::numeric,$4) RETURNING id`,
		p.Name(), p.Description(), p.Price().String(), p.Stock()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateName
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return domain.Reconstitute(id, p.Name(), p.Description(), p.Price(), p.Stock()), nil
}

func (r *Repository) Save(ctx context.Context, p *domain.Product) error {
	tag, err := transaction.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE products SET name=$2, description=$3, price=$4::numeric, stock=$5 WHERE id=$1`,
		p.ID(), p.Name(), p.Description(), p.Price().String(), p.Stock())
	if err != nil {
		return fmt.Errorf("update product %d: %w", p.ID(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", p.ID(), domain.ErrProductNotFound)
	}
	return nil
}

// MarkProcessed inserts the mark in the caller's transaction, so it is only
// kept when the stock changes commit.
func (r *Repository) MarkProcessed(ctx context.Context, queue, messageID string) (bool, error) {
	tag, err := transaction.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO processed_messages (queue, message_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		queue, messageID)
	if err != nil {
		return false, fmt.Errorf("mark %s/%s processed: %w", queue, messageID, err)
	}
	return tag.RowsAffected() == 1, nil
}

var (
	_ application.ProductRepository = (*Repository)(nil)
	_ application.ProcessedMessages = (*Repository)(nil)
)
