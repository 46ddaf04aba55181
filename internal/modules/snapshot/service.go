package snapshot

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/modules/accounts"
	"github.com/teamscryps/backend/internal/modules/holdings"
	"github.com/teamscryps/backend/internal/modules/orders"
)

// Service builds portfolio rollups. There is no market-data feed in this
// service: the mark price of a position is the user's most recent fill
// price for the symbol, falling back to the average cost. That keeps
// snapshots deterministic and self-contained.
type Service struct {
	db       *sql.DB
	repo     *Repository
	holdings *holdings.Repository
	accounts *accounts.Repository
	fills    *orders.FillRepository
	log      zerolog.Logger
}

// NewService creates the snapshot service
func NewService(
	db *sql.DB,
	repo *Repository,
	holdingsRepo *holdings.Repository,
	accountsRepo *accounts.Repository,
	fillsRepo *orders.FillRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		holdings: holdingsRepo,
		accounts: accountsRepo,
		fills:    fillsRepo,
		log:      log.With().Str("service", "snapshots").Logger(),
	}
}

// Portfolio is the live view served to clients and stored daily.
type Portfolio struct {
	UserID        int64                    `json:"user_id"`
	CashAvailable decimal.Decimal          `json:"cash_available"`
	CashBlocked   decimal.Decimal          `json:"cash_blocked"`
	HoldingsValue decimal.Decimal          `json:"holdings_value"`
	TotalValue    decimal.Decimal          `json:"total_value"`
	RealizedPnL   decimal.Decimal          `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal          `json:"unrealized_pnl"`
	Holdings      []domain.SnapshotHolding `json:"holdings"`
}

// Portfolio computes the live portfolio of a user.
func (s *Service) Portfolio(userID int64) (*Portfolio, error) {
	user, err := s.accounts.GetUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	positions, err := s.holdings.ListByUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	fills, err := s.fills.ListByUser(s.db, userID)
	if err != nil {
		return nil, err
	}

	lastPrice := make(map[string]decimal.Decimal)
	for _, uf := range fills {
		lastPrice[uf.Symbol] = uf.Fill.Price
	}

	p := &Portfolio{
		UserID:        userID,
		CashAvailable: user.CashAvailable,
		CashBlocked:   user.CashBlocked,
		RealizedPnL:   RealizedPnL(fills),
		HoldingsValue: decimal.Zero,
		UnrealizedPnL: decimal.Zero,
	}
	for _, h := range positions {
		mkt, ok := lastPrice[h.Symbol]
		if !ok {
			mkt = h.AvgPrice
		}
		qty := decimal.NewFromInt(h.Quantity)
		unrealized := domain.RoundCash(mkt.Sub(h.AvgPrice).Mul(qty))
		p.Holdings = append(p.Holdings, domain.SnapshotHolding{
			Symbol:     h.Symbol,
			Quantity:   h.Quantity,
			AvgPrice:   h.AvgPrice,
			MktPrice:   domain.RoundPrice(mkt),
			Unrealized: unrealized,
		})
		p.HoldingsValue = p.HoldingsValue.Add(domain.RoundCash(mkt.Mul(qty)))
		p.UnrealizedPnL = p.UnrealizedPnL.Add(unrealized)
	}
	p.TotalValue = p.CashAvailable.Add(p.CashBlocked).Add(p.HoldingsValue)
	return p, nil
}

// CreateDaily writes the rollup for one user and date. A second call for
// the same (user, date) is a no-op and returns created=false.
func (s *Service) CreateDaily(userID int64, date string) (*domain.PortfolioSnapshot, bool, error) {
	p, err := s.Portfolio(userID)
	if err != nil {
		return nil, false, err
	}

	snap := &domain.PortfolioSnapshot{
		UserID:        userID,
		SnapshotDate:  date,
		CashAvailable: p.CashAvailable,
		CashBlocked:   p.CashBlocked,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.UnrealizedPnL,
		Holdings:      p.Holdings,
	}
	created, err := s.repo.Insert(s.db, snap)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := s.repo.Get(s.db, userID, date)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return snap, true, nil
}

// RunDaily writes today's rollup for every client. Failures on one user
// do not stop the run.
func (s *Service) RunDaily() error {
	date := time.Now().UTC().Format("2006-01-02")
	clients, err := s.accounts.ListAllClients(s.db)
	if err != nil {
		return err
	}

	var wrote int
	for _, c := range clients {
		if _, created, err := s.CreateDaily(c.ID, date); err != nil {
			s.log.Error().Err(err).Int64("user_id", c.ID).Msg("Daily snapshot failed for user")
		} else if created {
			wrote++
		}
	}
	s.log.Info().Str("date", date).Int("clients", len(clients)).Int("written", wrote).Msg("Daily snapshot run complete")
	return nil
}
