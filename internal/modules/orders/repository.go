// Package orders persists orders and their fills and implements the
// placement workflow: reservation, broker call, audit, publish.
package orders

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
)

// Repository provides access to the orders table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new orders repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "orders").Logger(),
	}
}

// Create inserts an order and returns its id.
func (r *Repository) Create(q database.Executor, o *domain.Order) (int64, error) {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	var limitPrice interface{}
	if o.LimitPrice != nil {
		limitPrice = domain.PriceString(*o.LimitPrice)
	}
	var brokerOrderID interface{}
	if o.BrokerOrderID != "" {
		brokerOrderID = o.BrokerOrderID
	}

	res, err := q.Exec(`
		INSERT INTO orders (user_id, placed_by, symbol, side, product, order_type, quantity,
			limit_price, filled_qty, avg_fill_price, status, broker_order_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, o.PlacedBy, o.Symbol, string(o.Side), string(o.Product), string(o.OrderType),
		o.Quantity, limitPrice, o.FilledQty, domain.PriceString(o.AvgFillPrice),
		string(o.Status), brokerOrderID, domain.FormatTime(o.CreatedAt), domain.FormatTime(o.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get order id: %w", err)
	}
	o.ID = id
	return id, nil
}

// Get loads an order by id.
func (r *Repository) Get(q database.Executor, id int64) (*domain.Order, error) {
	row := q.QueryRow(`
		SELECT id, user_id, placed_by, symbol, side, product, order_type, quantity,
			limit_price, filled_qty, avg_fill_price, status, broker_order_id, created_at, updated_at
		FROM orders WHERE id = ?`, id)
	return scanOrder(row)
}

// Update writes the mutable lifecycle fields.
func (r *Repository) Update(q database.Executor, o *domain.Order) error {
	o.UpdatedAt = time.Now().UTC()
	var brokerOrderID interface{}
	if o.BrokerOrderID != "" {
		brokerOrderID = o.BrokerOrderID
	}
	_, err := q.Exec(`
		UPDATE orders SET filled_qty = ?, avg_fill_price = ?, status = ?, broker_order_id = ?, updated_at = ?
		WHERE id = ?`,
		o.FilledQty, domain.PriceString(o.AvgFillPrice), string(o.Status),
		brokerOrderID, domain.FormatTime(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	return nil
}

// ListByUser returns a user's orders, newest first.
func (r *Repository) ListByUser(q database.Executor, userID int64) ([]*domain.Order, error) {
	rows, err := q.Query(`
		SELECT id, user_id, placed_by, symbol, side, product, order_type, quantity,
			limit_price, filled_qty, avg_fill_price, status, broker_order_id, created_at, updated_at
		FROM orders WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                     domain.Order
		side, product, oType  string
		status                string
		limitPrice, brokerOID sql.NullString
		avgFillPrice          string
		createdAt, updatedAt  string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.PlacedBy, &o.Symbol, &side, &product, &oType,
		&o.Quantity, &limitPrice, &o.FilledQty, &avgFillPrice, &status, &brokerOID,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	o.Side = domain.Side(side)
	o.Product = domain.Product(product)
	o.OrderType = domain.OrderType(oType)
	o.Status = domain.OrderStatus(status)
	if limitPrice.Valid {
		lp, err := decimal.NewFromString(limitPrice.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse limit_price %q: %w", limitPrice.String, err)
		}
		o.LimitPrice = &lp
	}
	o.AvgFillPrice, err = decimal.NewFromString(avgFillPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to parse avg_fill_price %q: %w", avgFillPrice, err)
	}
	if brokerOID.Valid {
		o.BrokerOrderID = brokerOID.String
	}
	o.CreatedAt = domain.ParseTime(createdAt)
	o.UpdatedAt = domain.ParseTime(updatedAt)
	return &o, nil
}
