package brokers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/domain"
)

// PlaceRequest is the vendor-independent order request.
type PlaceRequest struct {
	Symbol     string
	Side       domain.Side
	Product    domain.Product
	OrderType  domain.OrderType
	Quantity   int64
	LimitPrice *decimal.Decimal // nil for market orders
}

// PlaceResult is the vendor acknowledgement, normalized.
type PlaceResult struct {
	Status        string // vendor status string, informational only
	BrokerOrderID string
	PlacedQty     int64
	FilledQty     int64 // always 0 at acknowledgement; fills arrive via webhook
	AvgFillPrice  *decimal.Decimal
	Raw           map[string]interface{}
}

// SessionStatus is the result of a non-blocking session probe.
type SessionStatus struct {
	OK        bool
	Refreshed bool
	Reason    string
}

// Adapter is implemented once per vendor. Adapters never write to the
// ledger: persistence happens only after a successful acknowledgement,
// in the caller's transaction.
type Adapter interface {
	// Vendor returns the vendor key, e.g. "zerodha"
	Vendor() string
	// EnsureSession probes (and possibly refreshes) the user's vendor session
	EnsureSession(ctx context.Context, user *domain.User) (SessionStatus, error)
	// PlaceOrder submits an order and returns the vendor acknowledgement
	PlaceOrder(ctx context.Context, user *domain.User, req PlaceRequest) (*PlaceResult, error)
	// CancelOrder asks the vendor to cancel an open order
	CancelOrder(ctx context.Context, user *domain.User, brokerOrderID string) (map[string]interface{}, error)
	// GetOrderStatus fetches the vendor's view of an order
	GetOrderStatus(ctx context.Context, user *domain.User, brokerOrderID string) (map[string]interface{}, error)
}
