// Package fills applies broker fill and cancel events to the ledger:
// holdings, cash, order state, audit, and event publication.
package fills

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/brokers"
	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/events"
	"github.com/teamscryps/backend/internal/modules/accounts"
	"github.com/teamscryps/backend/internal/modules/audit"
	"github.com/teamscryps/backend/internal/modules/holdings"
	"github.com/teamscryps/backend/internal/modules/orders"
)

// Service mutates the ledger in response to fills and cancellations.
// Every mutation runs in one write transaction covering the order, the
// holding, the user's cash, and the audit append.
type Service struct {
	db       *sql.DB
	orders   *orders.Repository
	fills    *orders.FillRepository
	holdings *holdings.Service
	accounts *accounts.Repository
	audit    *audit.Service
	bus      *events.Bus
	factory  *brokers.Factory
	log      zerolog.Logger
}

// NewService creates the fill service
func NewService(
	db *sql.DB,
	ordersRepo *orders.Repository,
	fillsRepo *orders.FillRepository,
	holdingsSvc *holdings.Service,
	accountsRepo *accounts.Repository,
	auditSvc *audit.Service,
	bus *events.Bus,
	factory *brokers.Factory,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:       db,
		orders:   ordersRepo,
		fills:    fillsRepo,
		holdings: holdingsSvc,
		accounts: accountsRepo,
		audit:    auditSvc,
		bus:      bus,
		factory:  factory,
		log:      log.With().Str("service", "fills").Logger(),
	}
}

// ApplyFill applies one execution slice reported by the broker. The pair
// (order_id, broker_fill_id) is idempotent: a duplicate raises
// ErrFillAlreadyApplied, which callers report as success. Quantities
// beyond the order's remainder are clipped.
func (s *Service) ApplyFill(orderID, qty int64, price decimal.Decimal, brokerFillID string) (*domain.Order, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}

	var (
		order    *domain.Order
		balances *domain.User
		applyQty int64
	)
	err := database.WithWriteTransaction(s.db, func(tx *sql.Tx) error {
		var err error
		order, err = s.orders.Get(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return domain.ErrFillOnTerminal
		}
		if brokerFillID != "" {
			exists, err := s.fills.Exists(tx, orderID, brokerFillID)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrFillAlreadyApplied
			}
		}

		applyQty = qty
		if remaining := order.RemainingQty(); applyQty > remaining {
			applyQty = remaining
		}
		if applyQty == 0 {
			return nil
		}

		fill := &domain.OrderFill{
			OrderID:      orderID,
			BrokerFillID: brokerFillID,
			Quantity:     applyQty,
			Price:        domain.RoundPrice(price),
		}
		if _, err := s.fills.Create(tx, fill); err != nil {
			return err
		}

		order.AvgFillPrice = domain.WeightedAvg(order.FilledQty, order.AvgFillPrice, applyQty, price)
		order.FilledQty += applyQty

		amount := domain.RoundCash(price.Mul(decimal.NewFromInt(applyQty)))

		switch order.Side {
		case domain.SideBuy:
			if balances, err = s.debitBlocked(tx, order, amount); err != nil {
				return err
			}
			if _, err := s.holdings.ApplyBuy(tx, order.UserID, order.Symbol, applyQty, price); err != nil {
				return err
			}

		case domain.SideSell:
			if err := s.applySellSlice(tx, order, applyQty); err != nil {
				return err
			}
			if balances, err = s.creditAvailable(tx, order, amount); err != nil {
				return err
			}
		}

		if order.FilledQty == order.Quantity {
			order.Status = domain.StatusFilled
			if order.Side == domain.SideBuy && balances.CashBlocked.IsPositive() {
				// Limit price above the average fill leaves part of the
				// reservation unspent; hand it back.
				u, released, err := s.holdings.ReleaseFunds(tx, order.UserID, balances.CashBlocked)
				if err != nil {
					return err
				}
				balances = u
				if released.IsPositive() {
					if _, err := s.audit.Append(tx, nil, &order.UserID, domain.AuditFundsCredit,
						fmt.Sprintf("leftover reservation released for order %d", order.ID),
						map[string]interface{}{
							"order_id": order.ID,
							"amount":   domain.CashString(released),
							"reason":   "leftover",
						}); err != nil {
						return err
					}
				}
			}
		} else {
			order.Status = domain.StatusPartiallyFilled
		}

		if err := s.orders.Update(tx, order); err != nil {
			return err
		}

		_, err = s.audit.Append(tx, nil, &order.UserID, domain.AuditFillApplied,
			fmt.Sprintf("fill of %d @ %s applied to order %d", applyQty, price.StringFixed(4), order.ID),
			map[string]interface{}{
				"order_id":       order.ID,
				"broker_fill_id": brokerFillID,
				"qty":            applyQty,
				"price":          domain.PriceString(price),
				"status":         string(order.Status),
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	if applyQty == 0 {
		// Clipped to nothing: the order was already fully applied.
		return order, nil
	}

	s.log.Info().
		Int64("order_id", order.ID).
		Int64("qty", applyQty).
		Str("price", price.StringFixed(4)).
		Str("status", string(order.Status)).
		Msg("Fill applied")

	s.bus.Publish(&events.OrderFillData{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Symbol:        order.Symbol,
		Qty:           applyQty,
		Price:         domain.RoundPrice(price),
		FilledQty:     order.FilledQty,
		Status:        string(order.Status),
		CashAvailable: balances.CashAvailable,
		CashBlocked:   balances.CashBlocked,
	})

	return order, nil
}

// debitBlocked consumes amount of the buy reservation, clamped at zero
// for market orders that reserved nothing.
func (s *Service) debitBlocked(tx database.Executor, order *domain.Order, amount decimal.Decimal) (*domain.User, error) {
	u, err := s.accounts.GetUser(tx, order.UserID)
	if err != nil {
		return nil, err
	}
	debit := amount
	if debit.GreaterThan(u.CashBlocked) {
		debit = u.CashBlocked
	}
	u.CashBlocked = u.CashBlocked.Sub(debit)
	if err := s.accounts.UpdateCash(tx, u.ID, u.CashAvailable, u.CashBlocked); err != nil {
		return nil, err
	}
	if _, err := s.audit.Append(tx, nil, &order.UserID, domain.AuditFundsDebit,
		fmt.Sprintf("executed buy cost for order %d", order.ID),
		map[string]interface{}{
			"order_id": order.ID,
			"amount":   domain.CashString(debit),
		}); err != nil {
		return nil, err
	}
	return u, nil
}

// creditAvailable pays sale proceeds into cash_available.
func (s *Service) creditAvailable(tx database.Executor, order *domain.Order, amount decimal.Decimal) (*domain.User, error) {
	u, err := s.accounts.GetUser(tx, order.UserID)
	if err != nil {
		return nil, err
	}
	u.CashAvailable = u.CashAvailable.Add(amount)
	if err := s.accounts.UpdateCash(tx, u.ID, u.CashAvailable, u.CashBlocked); err != nil {
		return nil, err
	}
	if _, err := s.audit.Append(tx, nil, &order.UserID, domain.AuditFundsCredit,
		fmt.Sprintf("sale proceeds for order %d", order.ID),
		map[string]interface{}{
			"order_id": order.ID,
			"amount":   domain.CashString(amount),
		}); err != nil {
		return nil, err
	}
	return u, nil
}

// applySellSlice releases the reservation for the executed slice and
// removes it from the position.
func (s *Service) applySellSlice(tx database.Executor, order *domain.Order, applyQty int64) error {
	h, err := s.holdings.Repo().Get(tx, order.UserID, order.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrHoldingNotFound) {
			return &domain.InvariantViolationError{
				Detail: fmt.Sprintf("sell fill for order %d with no %s position", order.ID, order.Symbol),
			}
		}
		return err
	}
	if err := s.holdings.ReleaseHoldings(tx, h, applyQty); err != nil {
		return err
	}
	if _, err := s.holdings.ApplySell(tx, order.UserID, order.Symbol, applyQty); err != nil {
		return err
	}
	return nil
}

// ApplyCancel moves an order to CANCELLED or REJECTED and releases its
// reservations. Cancelling a terminal order is a no-op: the current
// order is returned with idempotent=true and nothing is written.
func (s *Service) ApplyCancel(orderID int64, status domain.OrderStatus, actorID *int64, byTrader bool) (*domain.Order, bool, error) {
	if status != domain.StatusCancelled && status != domain.StatusRejected {
		return nil, false, domain.ErrInvalidCancelStatus
	}

	var (
		order      *domain.Order
		balances   *domain.User
		idempotent bool
	)
	err := database.WithWriteTransaction(s.db, func(tx *sql.Tx) error {
		var err error
		order, err = s.orders.Get(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			idempotent = true
			return nil
		}

		remaining := order.RemainingQty()

		switch order.Side {
		case domain.SideBuy:
			// The order owns its reservation exclusively: release every
			// blocked cent back to available.
			u, err := s.accounts.GetUser(tx, order.UserID)
			if err != nil {
				return err
			}
			u, released, err := s.holdings.ReleaseFunds(tx, order.UserID, u.CashBlocked)
			if err != nil {
				return err
			}
			balances = u
			if released.IsPositive() {
				if _, err := s.audit.Append(tx, actorID, &order.UserID, domain.AuditFundsCredit,
					fmt.Sprintf("reservation released on cancel of order %d", order.ID),
					map[string]interface{}{
						"order_id": order.ID,
						"amount":   domain.CashString(released),
					}); err != nil {
					return err
				}
			}

		case domain.SideSell:
			h, err := s.holdings.Repo().Get(tx, order.UserID, order.Symbol)
			if err != nil && !errors.Is(err, domain.ErrHoldingNotFound) {
				return err
			}
			if h != nil {
				release := remaining
				if release > h.ReservedQty {
					release = h.ReservedQty
				}
				if release > 0 {
					if err := s.holdings.ReleaseHoldings(tx, h, release); err != nil {
						return err
					}
				}
			}
			u, err := s.accounts.GetUser(tx, order.UserID)
			if err != nil {
				return err
			}
			balances = u
		}

		order.Status = status
		if err := s.orders.Update(tx, order); err != nil {
			return err
		}

		action := domain.AuditOrderCancelled
		if status == domain.StatusRejected {
			action = domain.AuditOrderRejected
		}
		_, err = s.audit.Append(tx, actorID, &order.UserID, action,
			fmt.Sprintf("order %d moved to %s", order.ID, status),
			map[string]interface{}{
				"order_id":      order.ID,
				"remaining_qty": remaining,
			})
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if idempotent {
		return order, true, nil
	}

	s.log.Info().
		Int64("order_id", order.ID).
		Str("status", string(order.Status)).
		Bool("by_trader", byTrader).
		Msg("Order cancelled")

	s.bus.Publish(&events.OrderCancelData{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		CashAvailable: balances.CashAvailable,
		CashBlocked:   balances.CashBlocked,
		ByTrader:      byTrader,
	})

	return order, false, nil
}

// TraderCancel is the trader-initiated path: it asks the vendor to
// cancel first, then applies the cancellation to the ledger. Terminal
// orders short-circuit before the vendor call.
func (s *Service) TraderCancel(ctx context.Context, traderID, orderID int64) (*domain.Order, bool, error) {
	order, err := s.orders.Get(s.db, orderID)
	if err != nil {
		return nil, false, err
	}
	if order.Status.IsTerminal() {
		return order, true, nil
	}

	user, err := s.accounts.GetUser(s.db, order.UserID)
	if err != nil {
		return nil, false, err
	}
	adapter, err := s.factory.ForUser(user)
	if err != nil {
		return nil, false, err
	}
	if order.BrokerOrderID != "" {
		if _, err := adapter.CancelOrder(ctx, user, order.BrokerOrderID); err != nil {
			return nil, false, err
		}
	}

	return s.ApplyCancel(orderID, domain.StatusCancelled, &traderID, true)
}
