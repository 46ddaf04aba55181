package brokers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/teamscryps/backend/internal/domain"
)

const zerodhaDefaultBaseURL = "https://api.kite.trade"

// Zerodha adapts the Kite Connect REST API.
type Zerodha struct {
	restCore
}

// NewZerodha creates a Zerodha adapter. baseURL overrides the vendor
// endpoint (used by tests); empty means the production URL.
func NewZerodha(baseURL string, log zerolog.Logger) *Zerodha {
	if baseURL == "" {
		baseURL = zerodhaDefaultBaseURL
	}
	return &Zerodha{restCore: newRestCore("zerodha", baseURL, log)}
}

// Vendor returns the vendor key
func (z *Zerodha) Vendor() string { return "zerodha" }

// EnsureSession probes the user's Kite session.
func (z *Zerodha) EnsureSession(ctx context.Context, user *domain.User) (SessionStatus, error) {
	raw, err := z.doJSON(ctx, http.MethodGet, "/session/valid", nil, z.authHeaders(user))
	if err != nil {
		if KindOf(err) == KindSession {
			return SessionStatus{OK: false, Reason: "session expired"}, nil
		}
		return SessionStatus{}, err
	}
	if !boolField(raw, "valid") && nestedString(raw, "status") != "success" {
		return SessionStatus{OK: false, Reason: nestedString(raw, "reason")}, nil
	}
	return SessionStatus{OK: true, Refreshed: boolField(raw, "refreshed")}, nil
}

// PlaceOrder submits a regular order. Temporary vendor failures are
// retried per the bounded backoff policy.
func (z *Zerodha) PlaceOrder(ctx context.Context, user *domain.User, req PlaceRequest) (*PlaceResult, error) {
	body := map[string]interface{}{
		"tradingsymbol":    req.Symbol,
		"transaction_type": strings.ToUpper(string(req.Side)),
		"quantity":         req.Quantity,
		"product":          z.product(req.Product),
		"order_type":       strings.ToUpper(string(req.OrderType)),
	}
	if req.LimitPrice != nil {
		body["price"] = req.LimitPrice.StringFixed(4)
	}

	return withRetry(ctx, z.log, "place_order", func(ctx context.Context) (*PlaceResult, error) {
		raw, err := z.doJSON(ctx, http.MethodPost, "/orders/regular", body, z.authHeaders(user))
		if err != nil {
			return nil, err
		}
		orderID := nestedString(raw, "data", "order_id")
		if orderID == "" {
			return nil, &Error{
				Kind:    KindPermanent,
				Vendor:  z.vendor,
				Message: "acknowledgement missing order_id",
			}
		}
		return &PlaceResult{
			Status:        nestedString(raw, "status"),
			BrokerOrderID: orderID,
			PlacedQty:     req.Quantity,
			Raw:           raw,
		}, nil
	})
}

// CancelOrder cancels an open order.
func (z *Zerodha) CancelOrder(ctx context.Context, user *domain.User, brokerOrderID string) (map[string]interface{}, error) {
	path := fmt.Sprintf("/orders/regular/%s", brokerOrderID)
	return withRetry(ctx, z.log, "cancel_order", func(ctx context.Context) (map[string]interface{}, error) {
		return z.doJSON(ctx, http.MethodDelete, path, nil, z.authHeaders(user))
	})
}

// GetOrderStatus fetches the vendor's view of an order.
func (z *Zerodha) GetOrderStatus(ctx context.Context, user *domain.User, brokerOrderID string) (map[string]interface{}, error) {
	path := fmt.Sprintf("/orders/%s", brokerOrderID)
	return withRetry(ctx, z.log, "get_order_status", func(ctx context.Context) (map[string]interface{}, error) {
		return z.doJSON(ctx, http.MethodGet, path, nil, z.authHeaders(user))
	})
}

func (z *Zerodha) authHeaders(user *domain.User) map[string]string {
	return map[string]string{"X-Kite-Account": user.Email}
}

func (z *Zerodha) product(p domain.Product) string {
	if p == domain.ProductMTF {
		return "MTF"
	}
	return "CNC"
}
