// Package holdings owns positions and the pure ledger operations over
// positions and cash: buy, sell, validate, reserve, release.
package holdings

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

// Repository provides access to the holdings table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new holdings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

// Get loads the (user, symbol) position.
func (r *Repository) Get(q database.Executor, userID int64, symbol string) (*domain.Holding, error) {
	row := q.QueryRow(`
		SELECT id, user_id, symbol, quantity, reserved_qty, avg_price, updated_at
		FROM holdings WHERE user_id = ? AND symbol = ?`, userID, symbol)
	return scanHolding(row)
}

// ListByUser returns all positions of a user ordered by symbol.
func (r *Repository) ListByUser(q database.Executor, userID int64) ([]*domain.Holding, error) {
	rows, err := q.Query(`
		SELECT id, user_id, symbol, quantity, reserved_qty, avg_price, updated_at
		FROM holdings WHERE user_id = ? ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings for user %d: %w", userID, err)
	}
	defer rows.Close()

	var holdings []*domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}
	return holdings, nil
}

// Create inserts a new position.
func (r *Repository) Create(q database.Executor, h *domain.Holding) (int64, error) {
	h.UpdatedAt = time.Now().UTC()
	res, err := q.Exec(`
		INSERT INTO holdings (user_id, symbol, quantity, reserved_qty, avg_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.UserID, h.Symbol, h.Quantity, h.ReservedQty,
		domain.PriceString(h.AvgPrice), domain.FormatTime(h.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert holding %s for user %d: %w", h.Symbol, h.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get holding id: %w", err)
	}
	h.ID = id
	return id, nil
}

// Update writes quantity, reserved_qty and avg_price for an existing row.
func (r *Repository) Update(q database.Executor, h *domain.Holding) error {
	h.UpdatedAt = time.Now().UTC()
	_, err := q.Exec(`
		UPDATE holdings SET quantity = ?, reserved_qty = ?, avg_price = ?, updated_at = ?
		WHERE id = ?`,
		h.Quantity, h.ReservedQty, domain.PriceString(h.AvgPrice),
		domain.FormatTime(h.UpdatedAt), h.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding %d: %w", h.ID, err)
	}
	return nil
}

// Delete removes a position. Called when quantity reaches zero.
func (r *Repository) Delete(q database.Executor, id int64) error {
	if _, err := q.Exec(`DELETE FROM holdings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete holding %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var (
		h         domain.Holding
		avgPrice  string
		updatedAt string
	)
	err := row.Scan(&h.ID, &h.UserID, &h.Symbol, &h.Quantity, &h.ReservedQty, &avgPrice, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrHoldingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan holding: %w", err)
	}
	h.AvgPrice, err = decimal.NewFromString(avgPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to parse avg_price %q: %w", avgPrice, err)
	}
	h.UpdatedAt = domain.ParseTime(updatedAt)
	return &h, nil
}
