package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/shop-bot/internal/domain/order"
	_ "github.com/lib/pq"
)

var _ order.Store = (*PostgresOrderStore)(nil)

const orderColumns = `id, requester_id, item_id, status, tracking_ref, payment_ref, invoice_url, created_at, updated_at, version`

// PostgresOrderStore stores orders in PostgreSQL. Update locks the row for the
// duration of the mutator.
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(ctx context.Context, db *sql.DB) (*PostgresOrderStore, error) {
	s := &PostgresOrderStore{db: db}
	if err := s.init(ctx); err != nil {
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}
	return s, nil
}

func (s *PostgresOrderStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		requester_id BIGINT NOT NULL,
		item_id INT NOT NULL,
		status TEXT NOT NULL,
		tracking_ref TEXT NOT NULL DEFAULT '',
		payment_ref TEXT NOT NULL DEFAULT '',
		invoice_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		version INT NOT NULL
	)`)
	return err
}

// Put inserts an order; existing IDs are rejected
func (s *PostgresOrderStore) Put(ctx context.Context, o *order.Order) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		o.ID, o.RequesterID, o.ItemID, string(o.Status), o.TrackingRef, o.PaymentRef, o.InvoiceURL, o.CreatedAt, o.UpdatedAt, o.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return order.ErrOrderExists
	}
	return nil
}

func (s *PostgresOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// Update runs fn inside a transaction holding a row lock
func (s *PostgresOrderStore) Update(ctx context.Context, id string, fn func(*order.Order) error) (*order.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, tracking_ref = $3, payment_ref = $4, invoice_url = $5, updated_at = $6, version = $7
		 WHERE id = $1`,
		o.ID, string(o.Status), o.TrackingRef, o.PaymentRef, o.InvoiceURL, o.UpdatedAt, o.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresOrderStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders`).Scan(&n)
	return n, err
}

func scanOrder(row *sql.Row) (*order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.RequesterID, &o.ItemID, (*string)(&o.Status), &o.TrackingRef, &o.PaymentRef, &o.InvoiceURL, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ConnectPostgres opens a PostgreSQL connection pool
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
