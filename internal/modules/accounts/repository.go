// Package accounts persists users, their cash ledger fields, and the
// trader-client authorization mappings.
package accounts

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

// Repository provides access to users and trader-client mappings.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new accounts repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// DB returns the underlying handle for read paths that run outside a
// transaction.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// CreateUser inserts a user and returns its id.
func (r *Repository) CreateUser(q database.Executor, u *domain.User) (int64, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := q.Exec(`
		INSERT INTO users (email, name, role, broker, cash_available, cash_blocked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.Name, string(u.Role), u.Broker,
		domain.CashString(u.CashAvailable), domain.CashString(u.CashBlocked),
		domain.FormatTime(u.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get user id: %w", err)
	}
	u.ID = id
	return id, nil
}

// GetUser loads a user by id.
func (r *Repository) GetUser(q database.Executor, id int64) (*domain.User, error) {
	row := q.QueryRow(`
		SELECT id, email, name, role, broker, cash_available, cash_blocked, created_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail loads a user by email.
func (r *Repository) GetUserByEmail(q database.Executor, email string) (*domain.User, error) {
	row := q.QueryRow(`
		SELECT id, email, name, role, broker, cash_available, cash_blocked, created_at
		FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// UpdateCash writes both cash columns for a user. Callers run this inside
// the same transaction as the audit append.
func (r *Repository) UpdateCash(q database.Executor, userID int64, available, blocked decimal.Decimal) error {
	res, err := q.Exec(`UPDATE users SET cash_available = ?, cash_blocked = ? WHERE id = ?`,
		domain.CashString(available), domain.CashString(blocked), userID)
	if err != nil {
		return fmt.Errorf("failed to update cash for user %d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cash update for user %d: %w", userID, err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// MapClient records that a trader may act on a client's account.
func (r *Repository) MapClient(q database.Executor, traderID, clientID int64) error {
	_, err := q.Exec(`INSERT OR IGNORE INTO trader_clients (trader_id, client_id) VALUES (?, ?)`,
		traderID, clientID)
	if err != nil {
		return fmt.Errorf("failed to map trader %d to client %d: %w", traderID, clientID, err)
	}
	return nil
}

// IsMapped reports whether the trader-client mapping exists.
func (r *Repository) IsMapped(q database.Executor, traderID, clientID int64) (bool, error) {
	var one int
	err := q.QueryRow(`SELECT 1 FROM trader_clients WHERE trader_id = ? AND client_id = ?`,
		traderID, clientID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trader-client mapping: %w", err)
	}
	return true, nil
}

// ListClients returns the clients mapped to a trader.
func (r *Repository) ListClients(q database.Executor, traderID int64) ([]*domain.User, error) {
	rows, err := q.Query(`
		SELECT u.id, u.email, u.name, u.role, u.broker, u.cash_available, u.cash_blocked, u.created_at
		FROM users u
		JOIN trader_clients tc ON tc.client_id = u.id
		WHERE tc.trader_id = ?
		ORDER BY u.id`, traderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients for trader %d: %w", traderID, err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListAllClients returns every client account. Used in debug mode where
// trader-client authorization is relaxed.
func (r *Repository) ListAllClients(q database.Executor) ([]*domain.User, error) {
	rows, err := q.Query(`
		SELECT id, email, name, role, broker, cash_available, cash_blocked, created_at
		FROM users WHERE role = ? ORDER BY id`, string(domain.RoleClient))
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                  domain.User
		role               string
		available, blocked string
		createdAt          string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.Broker, &available, &blocked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Role = domain.Role(role)
	u.CashAvailable, err = decimal.NewFromString(available)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cash_available %q: %w", available, err)
	}
	u.CashBlocked, err = decimal.NewFromString(blocked)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cash_blocked %q: %w", blocked, err)
	}
	u.CreatedAt = domain.ParseTime(createdAt)
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]*domain.User, error) {
	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}
