// Package domain holds the core entities of the order router and ledger.
// Everything here is storage- and transport-agnostic: repositories persist
// these types, services mutate them, handlers serialize them.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role of a user account.
type Role string

const (
	RoleTrader Role = "trader"
	RoleClient Role = "client"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is a known value.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Product distinguishes delivery equity from margin trade funding.
type Product string

const (
	ProductEquity Product = "equity"
	ProductMTF    Product = "mtf"
)

// Valid reports whether the product is a known value.
func (p Product) Valid() bool {
	return p == ProductEquity || p == ProductMTF
}

// OrderType is the execution style requested from the broker.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusAccepted        OrderStatus = "ACCEPTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status is absorbing: no transition may
// leave FILLED, CANCELLED or REJECTED.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// User is an account: a trader or one of the clients a trader manages.
// cash_available and cash_blocked together form the cash ledger; both are
// fixed-point with 2 decimal places and never go negative.
type User struct {
	ID            int64
	Email         string
	Name          string
	Role          Role
	Broker        string // vendor key, e.g. "zerodha"
	CashAvailable decimal.Decimal
	CashBlocked   decimal.Decimal
	CreatedAt     time.Time
}

// Holding is one position, unique per (user, symbol). reserved_qty is the
// part earmarked against open sell orders; 0 <= reserved_qty <= quantity.
type Holding struct {
	ID          int64
	UserID      int64
	Symbol      string
	Quantity    int64
	ReservedQty int64
	AvgPrice    decimal.Decimal // 4 dp, weighted average cost
	UpdatedAt   time.Time
}

// FreeQty is the sellable part of the position.
func (h *Holding) FreeQty() int64 {
	return h.Quantity - h.ReservedQty
}

// Order is a routed broker order.
type Order struct {
	ID            int64
	UserID        int64 // the client whose ledger the order mutates
	PlacedBy      int64 // the trader (or the client themselves) who placed it
	Symbol        string
	Side          Side
	Product       Product
	OrderType     OrderType
	Quantity      int64
	LimitPrice    *decimal.Decimal // nil for market orders
	FilledQty     int64
	AvgFillPrice  decimal.Decimal // 4 dp, weighted mean of applied fills
	Status        OrderStatus
	BrokerOrderID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RemainingQty is the unfilled part of the order.
func (o *Order) RemainingQty() int64 {
	return o.Quantity - o.FilledQty
}

// OrderFill is one execution slice reported by the broker. The pair
// (order_id, broker_fill_id) is the webhook idempotency key when the
// vendor supplies a fill id.
type OrderFill struct {
	ID           int64
	OrderID      int64
	BrokerFillID string // empty when the vendor sent none
	Quantity     int64
	Price        decimal.Decimal
	CreatedAt    time.Time
}

// AuditEntry is one row of the hash-chained audit log.
type AuditEntry struct {
	ID          int64
	ActorID     *int64
	TargetID    *int64
	Action      string
	Description string
	Details     map[string]any
	PrevHash    string // empty for the first row
	Hash        string
	CreatedAt   time.Time
}

// Audit actions written by the core flows.
const (
	AuditOrderAccepted    = "ORDER_ACCEPTED"
	AuditOrderCancelled   = "ORDER_CANCELLED"
	AuditOrderRejected    = "ORDER_REJECTED"
	AuditFillApplied      = "FILL_APPLIED"
	AuditFundsDebit       = "FUNDS_DEBIT"
	AuditFundsCredit      = "FUNDS_CREDIT"
	AuditHoldingsReserved = "HOLDINGS_RESERVED"
)

// SnapshotHolding is one position inside a portfolio snapshot.
type SnapshotHolding struct {
	Symbol     string          `json:"symbol"`
	Quantity   int64           `json:"qty"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	MktPrice   decimal.Decimal `json:"mkt_price"`
	Unrealized decimal.Decimal `json:"unrealized"`
}

// PortfolioSnapshot is the daily rollup per client, written at most once
// per (user, date).
type PortfolioSnapshot struct {
	ID            int64
	UserID        int64
	SnapshotDate  string // YYYY-MM-DD
	CashAvailable decimal.Decimal
	CashBlocked   decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Holdings      []SnapshotHolding
	CreatedAt     time.Time
}
