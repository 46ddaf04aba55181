package orders

import (
	"context"
	"database/sql"
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
)

// PlaceRequest is the validated input of the placement workflow.
type PlaceRequest struct {
	Symbol     string
	Side       domain.Side
	Product    domain.Product
	Quantity   int64
	LimitPrice *decimal.Decimal // nil means a market order
}

// Service runs the order placement workflow: authorization, pre-trade
// validation, broker call, then one transaction that persists the order,
// reserves cash or holdings, and appends the audit entries. The broker
// call happens outside the transaction: ledger state is only touched
// after a successful acknowledgement.
type Service struct {
	db       *sql.DB
	repo     *Repository
	holdings *holdings.Service
	accounts *accounts.Repository
	audit    *audit.Service
	bus      *events.Bus
	factory  *brokers.Factory
	debug    bool
	log      zerolog.Logger
}

// NewService creates the placement service
func NewService(
	db *sql.DB,
	repo *Repository,
	holdingsSvc *holdings.Service,
	accountsRepo *accounts.Repository,
	auditSvc *audit.Service,
	bus *events.Bus,
	factory *brokers.Factory,
	debug bool,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		holdings: holdingsSvc,
		accounts: accountsRepo,
		audit:    auditSvc,
		bus:      bus,
		factory:  factory,
		debug:    debug,
		log:      log.With().Str("service", "orders").Logger(),
	}
}

// Authorize checks the trader-client mapping. Debug deployments and
// self-trading (trader == client) skip the check.
func (s *Service) Authorize(traderID, clientID int64) error {
	if s.debug || traderID == clientID {
		return nil
	}
	mapped, err := s.accounts.IsMapped(s.db, traderID, clientID)
	if err != nil {
		return err
	}
	if !mapped {
		return &domain.NotAuthorizedError{TraderID: traderID, ClientID: clientID}
	}
	return nil
}

// PlaceOrder places an order for clientID on behalf of traderID.
func (s *Service) PlaceOrder(ctx context.Context, traderID, clientID int64, req PlaceRequest) (*domain.Order, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.Authorize(traderID, clientID); err != nil {
		return nil, err
	}

	client, err := s.accounts.GetUser(s.db, clientID)
	if err != nil {
		return nil, err
	}

	// Pre-trade checks before spending a broker round-trip. The
	// authoritative check repeats inside the placement transaction.
	estCost := decimal.Zero
	if req.Side == domain.SideBuy && req.LimitPrice != nil {
		estCost = domain.RoundCash(req.LimitPrice.Mul(decimal.NewFromInt(req.Quantity)))
		if client.CashAvailable.LessThan(estCost) {
			return nil, &domain.InsufficientFundsError{Have: client.CashAvailable, Want: estCost}
		}
	}
	if req.Side == domain.SideSell {
		if err := s.holdings.ValidateSell(s.db, clientID, req.Symbol, req.Quantity); err != nil {
			return nil, err
		}
	}

	adapter, err := s.factory.ForUser(client)
	if err != nil {
		return nil, err
	}

	session, err := adapter.EnsureSession(ctx, client)
	if err != nil {
		return nil, err
	}
	if !session.OK {
		return nil, &brokers.Error{
			Kind:    brokers.KindSession,
			Vendor:  adapter.Vendor(),
			Message: session.Reason,
		}
	}

	orderType := domain.OrderTypeLimit
	if req.LimitPrice == nil {
		orderType = domain.OrderTypeMarket
	}
	ack, err := adapter.PlaceOrder(ctx, client, brokers.PlaceRequest{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Product:    req.Product,
		OrderType:  orderType,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		UserID:        clientID,
		PlacedBy:      traderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Product:       req.Product,
		OrderType:     orderType,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		Status:        domain.StatusAccepted,
		BrokerOrderID: ack.BrokerOrderID,
	}

	var balances *domain.User
	err = database.WithWriteTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := s.repo.Create(tx, order); err != nil {
			return err
		}

		switch {
		case req.Side == domain.SideBuy && req.LimitPrice != nil:
			u, err := s.holdings.ReserveFunds(tx, clientID, estCost)
			if err != nil {
				return err
			}
			balances = u
			if _, err := s.audit.Append(tx, &traderID, &clientID, domain.AuditFundsDebit,
				fmt.Sprintf("reserved %s for order %d", estCost.StringFixed(2), order.ID),
				map[string]interface{}{
					"order_id": order.ID,
					"amount":   domain.CashString(estCost),
				}); err != nil {
				return err
			}

		case req.Side == domain.SideBuy:
			// Market buy with no reference price: nothing is reserved.
			// The fill path debits blocked cash clamped at zero.
			u, err := s.accounts.GetUser(tx, clientID)
			if err != nil {
				return err
			}
			balances = u

		case req.Side == domain.SideSell:
			h, err := s.holdings.Repo().Get(tx, clientID, req.Symbol)
			if err != nil {
				return err
			}
			if err := s.holdings.ReserveHoldings(tx, h, req.Quantity); err != nil {
				return err
			}
			u, err := s.accounts.GetUser(tx, clientID)
			if err != nil {
				return err
			}
			balances = u
			if _, err := s.audit.Append(tx, &traderID, &clientID, domain.AuditHoldingsReserved,
				fmt.Sprintf("reserved %d %s for order %d", req.Quantity, req.Symbol, order.ID),
				map[string]interface{}{
					"order_id": order.ID,
					"symbol":   req.Symbol,
					"qty":      req.Quantity,
				}); err != nil {
				return err
			}
		}

		_, err := s.audit.Append(tx, &traderID, &clientID, domain.AuditOrderAccepted,
			fmt.Sprintf("order %d accepted by %s", order.ID, adapter.Vendor()),
			map[string]interface{}{
				"order_id":        order.ID,
				"broker_order_id": order.BrokerOrderID,
				"symbol":          order.Symbol,
				"side":            string(order.Side),
				"qty":             order.Quantity,
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("order_id", order.ID).
		Int64("client_id", clientID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int64("qty", order.Quantity).
		Str("broker_order_id", order.BrokerOrderID).
		Msg("Order placed")

	s.bus.Publish(&events.OrderNewData{
		OrderID:       order.ID,
		UserID:        clientID,
		Symbol:        order.Symbol,
		Qty:           order.Quantity,
		Status:        string(order.Status),
		CashAvailable: balances.CashAvailable,
		CashBlocked:   balances.CashBlocked,
	})

	return order, nil
}

func (s *Service) validate(req PlaceRequest) error {
	if req.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if req.LimitPrice != nil && !req.LimitPrice.IsPositive() {
		return domain.ErrInvalidPrice
	}
	if !req.Side.Valid() {
		return fmt.Errorf("unknown side %q", req.Side)
	}
	if !req.Product.Valid() {
		return fmt.Errorf("unknown product %q", req.Product)
	}
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	return nil
}

// Get loads an order.
func (s *Service) Get(id int64) (*domain.Order, error) {
	return s.repo.Get(s.db, id)
}

// ListForUser returns a user's orders, newest first.
func (s *Service) ListForUser(userID int64) ([]*domain.Order, error) {
	return s.repo.ListByUser(s.db, userID)
}
