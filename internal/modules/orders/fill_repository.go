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

// FillRepository provides access to the order_fills table. The partial
// unique index on (order_id, broker_fill_id) is the webhook idempotency
// guarantee.
type FillRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewFillRepository creates a new fill repository
func NewFillRepository(db *sql.DB, log zerolog.Logger) *FillRepository {
	return &FillRepository{
		db:  db,
		log: log.With().Str("repo", "order_fills").Logger(),
	}
}

// Create inserts a fill row.
func (r *FillRepository) Create(q database.Executor, f *domain.OrderFill) (int64, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	var brokerFillID interface{}
	if f.BrokerFillID != "" {
		brokerFillID = f.BrokerFillID
	}
	res, err := q.Exec(`
		INSERT INTO order_fills (order_id, broker_fill_id, quantity, price, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.OrderID, brokerFillID, f.Quantity, domain.PriceString(f.Price), domain.FormatTime(f.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fill for order %d: %w", f.OrderID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get fill id: %w", err)
	}
	f.ID = id
	return id, nil
}

// Exists reports whether a fill with this (order_id, broker_fill_id) was
// already applied.
func (r *FillRepository) Exists(q database.Executor, orderID int64, brokerFillID string) (bool, error) {
	var one int
	err := q.QueryRow(`SELECT 1 FROM order_fills WHERE order_id = ? AND broker_fill_id = ?`,
		orderID, brokerFillID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check fill existence: %w", err)
	}
	return true, nil
}

// ListByOrder returns an order's fills in application order.
func (r *FillRepository) ListByOrder(q database.Executor, orderID int64) ([]*domain.OrderFill, error) {
	rows, err := q.Query(`
		SELECT id, order_id, broker_fill_id, quantity, price, created_at
		FROM order_fills WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fills for order %d: %w", orderID, err)
	}
	defer rows.Close()
	return collectFills(rows)
}

// UserFill is a fill joined with its order, used by the realized-PnL walk.
type UserFill struct {
	Fill   domain.OrderFill
	Symbol string
	Side   domain.Side
}

// ListByUser streams every fill of a user's orders ordered by
// (created_at, id), the order the PnL walk requires.
func (r *FillRepository) ListByUser(q database.Executor, userID int64) ([]UserFill, error) {
	rows, err := q.Query(`
		SELECT f.id, f.order_id, f.broker_fill_id, f.quantity, f.price, f.created_at,
			o.symbol, o.side
		FROM order_fills f
		JOIN orders o ON o.id = f.order_id
		WHERE o.user_id = ?
		ORDER BY f.created_at, f.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fills for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []UserFill
	for rows.Next() {
		var (
			uf           UserFill
			brokerFillID sql.NullString
			price        string
			createdAt    string
			side         string
		)
		if err := rows.Scan(&uf.Fill.ID, &uf.Fill.OrderID, &brokerFillID, &uf.Fill.Quantity,
			&price, &createdAt, &uf.Symbol, &side); err != nil {
			return nil, fmt.Errorf("failed to scan user fill: %w", err)
		}
		if brokerFillID.Valid {
			uf.Fill.BrokerFillID = brokerFillID.String
		}
		uf.Fill.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fill price %q: %w", price, err)
		}
		uf.Fill.CreatedAt = domain.ParseTime(createdAt)
		uf.Side = domain.Side(side)
		out = append(out, uf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user fills: %w", err)
	}
	return out, nil
}

func collectFills(rows *sql.Rows) ([]*domain.OrderFill, error) {
	var fills []*domain.OrderFill
	for rows.Next() {
		var (
			f            domain.OrderFill
			brokerFillID sql.NullString
			price        string
			createdAt    string
		)
		if err := rows.Scan(&f.ID, &f.OrderID, &brokerFillID, &f.Quantity, &price, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		if brokerFillID.Valid {
			f.BrokerFillID = brokerFillID.String
		}
		var err error
		f.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fill price %q: %w", price, err)
		}
		f.CreatedAt = domain.ParseTime(createdAt)
		fills = append(fills, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fills: %w", err)
	}
	return fills, nil
}
