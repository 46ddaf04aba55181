package holdings

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/modules/accounts"
)

// Service implements the ledger operations over holdings and cash.
// Every method expects to run inside a transaction opened by the caller;
// none of them commit, publish events, or write audit rows themselves.
type Service struct {
	repo     *Repository
	accounts *accounts.Repository
	log      zerolog.Logger
}

// NewService creates a new holdings service
func NewService(repo *Repository, accountsRepo *accounts.Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accountsRepo,
		log:      log.With().Str("service", "holdings").Logger(),
	}
}

// Repo exposes the underlying repository for callers that need direct
// position reads inside their own transaction.
func (s *Service) Repo() *Repository {
	return s.repo
}

// ApplyBuy adds qty to the (user, symbol) position at price, recomputing
// the weighted-average cost at 4 dp. Creates the position if absent.
// Never touches cash.
func (s *Service) ApplyBuy(tx database.Executor, userID int64, symbol string, qty int64, price decimal.Decimal) (*domain.Holding, error) {
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	h, err := s.repo.Get(tx, userID, symbol)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		h = &domain.Holding{
			UserID:   userID,
			Symbol:   symbol,
			Quantity: qty,
			AvgPrice: domain.RoundPrice(price),
		}
		if _, err := s.repo.Create(tx, h); err != nil {
			return nil, err
		}
		return h, nil
	}
	if err != nil {
		return nil, err
	}

	h.AvgPrice = domain.WeightedAvg(h.Quantity, h.AvgPrice, qty, price)
	h.Quantity += qty
	if err := s.repo.Update(tx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// ValidateSell checks that the user holds at least qty of symbol.
func (s *Service) ValidateSell(q database.Executor, userID int64, symbol string, qty int64) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	h, err := s.repo.Get(q, userID, symbol)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		return &domain.InsufficientHoldingsError{Have: 0, Want: qty}
	}
	if err != nil {
		return err
	}
	if h.Quantity < qty {
		return &domain.InsufficientHoldingsError{Have: h.Quantity, Want: qty}
	}
	return nil
}

// ApplySell removes qty from the position, deleting the row when it hits
// zero. avg_price is preserved on partial sells: it remains the realized
// PnL basis. Never touches cash.
func (s *Service) ApplySell(tx database.Executor, userID int64, symbol string, qty int64) (*domain.Holding, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	h, err := s.repo.Get(tx, userID, symbol)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		return nil, &domain.InvariantViolationError{
			Detail: fmt.Sprintf("sell of %d %s for user %d with no position", qty, symbol, userID),
		}
	}
	if err != nil {
		return nil, err
	}
	if h.Quantity < qty {
		return nil, &domain.InvariantViolationError{
			Detail: fmt.Sprintf("sell of %d %s for user %d exceeds position %d", qty, symbol, userID, h.Quantity),
		}
	}

	h.Quantity -= qty
	if h.ReservedQty > h.Quantity {
		h.ReservedQty = h.Quantity
	}
	if h.Quantity == 0 {
		if err := s.repo.Delete(tx, h.ID); err != nil {
			return nil, err
		}
		return h, nil
	}
	if err := s.repo.Update(tx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// ReserveFunds moves amount from cash_available to cash_blocked.
func (s *Service) ReserveFunds(tx database.Executor, userID int64, amount decimal.Decimal) (*domain.User, error) {
	u, err := s.accounts.GetUser(tx, userID)
	if err != nil {
		return nil, err
	}
	amount = domain.RoundCash(amount)
	if u.CashAvailable.LessThan(amount) {
		return nil, &domain.InsufficientFundsError{Have: u.CashAvailable, Want: amount}
	}
	u.CashAvailable = u.CashAvailable.Sub(amount)
	u.CashBlocked = u.CashBlocked.Add(amount)
	if err := s.accounts.UpdateCash(tx, userID, u.CashAvailable, u.CashBlocked); err != nil {
		return nil, err
	}
	return u, nil
}

// ReleaseFunds moves amount back from cash_blocked to cash_available.
// The release is clamped at the blocked balance so a sub-cent rounding
// remainder can never push cash_blocked negative. Returns the updated
// user and the amount actually released.
func (s *Service) ReleaseFunds(tx database.Executor, userID int64, amount decimal.Decimal) (*domain.User, decimal.Decimal, error) {
	u, err := s.accounts.GetUser(tx, userID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	released := domain.RoundCash(amount)
	if released.GreaterThan(u.CashBlocked) {
		released = u.CashBlocked
	}
	if released.IsNegative() {
		released = decimal.Zero
	}
	u.CashBlocked = u.CashBlocked.Sub(released)
	u.CashAvailable = u.CashAvailable.Add(released)
	if err := s.accounts.UpdateCash(tx, userID, u.CashAvailable, u.CashBlocked); err != nil {
		return nil, decimal.Zero, err
	}
	return u, released, nil
}

// ReserveHoldings earmarks qty of the position against an open sell.
func (s *Service) ReserveHoldings(tx database.Executor, h *domain.Holding, qty int64) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if h.FreeQty() < qty {
		return &domain.InsufficientHoldingsError{Have: h.FreeQty(), Want: qty}
	}
	h.ReservedQty += qty
	return s.repo.Update(tx, h)
}

// ReleaseHoldings returns qty to the free part of the position, clamped
// at zero.
func (s *Service) ReleaseHoldings(tx database.Executor, h *domain.Holding, qty int64) error {
	h.ReservedQty -= qty
	if h.ReservedQty < 0 {
		h.ReservedQty = 0
	}
	return s.repo.Update(tx, h)
}
