package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
)

// ErrSnapshotNotFound is returned when no rollup exists for (user, date).
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Repository provides access to the portfolio_snapshots table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Insert writes a rollup unless one already exists for (user, date).
// Returns true when a new row was written.
func (r *Repository) Insert(q database.Executor, s *domain.PortfolioSnapshot) (bool, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	holdingsJSON, err := json.Marshal(s.Holdings)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot holdings: %w", err)
	}

	res, err := q.Exec(`
		INSERT OR IGNORE INTO portfolio_snapshots
			(user_id, snapshot_date, cash_available, cash_blocked, realized_pnl, unrealized_pnl, holdings_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UserID, s.SnapshotDate,
		domain.CashString(s.CashAvailable), domain.CashString(s.CashBlocked),
		domain.CashString(s.RealizedPnL), domain.CashString(s.UnrealizedPnL),
		string(holdingsJSON), domain.FormatTime(s.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert snapshot for user %d: %w", s.UserID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot insert: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	s.ID, _ = res.LastInsertId()
	return true, nil
}

// Get loads the rollup for (user, date).
func (r *Repository) Get(q database.Executor, userID int64, date string) (*domain.PortfolioSnapshot, error) {
	row := q.QueryRow(`
		SELECT id, user_id, snapshot_date, cash_available, cash_blocked, realized_pnl, unrealized_pnl, holdings_json, created_at
		FROM portfolio_snapshots WHERE user_id = ? AND snapshot_date = ?`, userID, date)

	var (
		s                              domain.PortfolioSnapshot
		available, blocked             string
		realized, unrealized, holdings string
		createdAt                      string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.SnapshotDate, &available, &blocked, &realized, &unrealized, &holdings, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&s.CashAvailable, available},
		{&s.CashBlocked, blocked},
		{&s.RealizedPnL, realized},
		{&s.UnrealizedPnL, unrealized},
	} {
		d, err := decimal.NewFromString(pair.src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse snapshot amount %q: %w", pair.src, err)
		}
		*pair.dst = d
	}
	if err := json.Unmarshal([]byte(holdings), &s.Holdings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot holdings: %w", err)
	}
	s.CreatedAt = domain.ParseTime(createdAt)
	return &s, nil
}
