package brokers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/teamscryps/backend/internal/domain"
)

const growwDefaultBaseURL = "https://api.groww.in"

// Groww adapts the Groww trade API.
type Groww struct {
	restCore
}

// NewGroww creates a Groww adapter. baseURL overrides the vendor
// endpoint (used by tests); empty means the production URL.
func NewGroww(baseURL string, log zerolog.Logger) *Groww {
	if baseURL == "" {
		baseURL = growwDefaultBaseURL
	}
	return &Groww{restCore: newRestCore("groww", baseURL, log)}
}

// Vendor returns the vendor key
func (g *Groww) Vendor() string { return "groww" }

// EnsureSession probes the user's Groww session.
func (g *Groww) EnsureSession(ctx context.Context, user *domain.User) (SessionStatus, error) {
	raw, err := g.doJSON(ctx, http.MethodGet, "/v1/session", nil, g.authHeaders(user))
	if err != nil {
		if KindOf(err) == KindSession {
			return SessionStatus{OK: false, Reason: "session expired"}, nil
		}
		return SessionStatus{}, err
	}
	if nestedString(raw, "sessionState") == "EXPIRED" {
		return SessionStatus{OK: false, Reason: "session expired"}, nil
	}
	return SessionStatus{OK: true, Refreshed: boolField(raw, "refreshed")}, nil
}

// PlaceOrder submits an order. Temporary vendor failures are retried per
// the bounded backoff policy.
func (g *Groww) PlaceOrder(ctx context.Context, user *domain.User, req PlaceRequest) (*PlaceResult, error) {
	body := map[string]interface{}{
		"symbol":      req.Symbol,
		"side":        strings.ToUpper(string(req.Side)),
		"qty":         req.Quantity,
		"productType": g.product(req.Product),
		"orderType":   strings.ToUpper(string(req.OrderType)),
	}
	if req.LimitPrice != nil {
		body["price"] = req.LimitPrice.StringFixed(4)
	}

	return withRetry(ctx, g.log, "place_order", func(ctx context.Context) (*PlaceResult, error) {
		raw, err := g.doJSON(ctx, http.MethodPost, "/v1/order/create", body, g.authHeaders(user))
		if err != nil {
			return nil, err
		}
		orderID := nestedString(raw, "orderId")
		if orderID == "" {
			orderID = nestedString(raw, "data", "orderId")
		}
		if orderID == "" {
			return nil, &Error{
				Kind:    KindPermanent,
				Vendor:  g.vendor,
				Message: "acknowledgement missing orderId",
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
func (g *Groww) CancelOrder(ctx context.Context, user *domain.User, brokerOrderID string) (map[string]interface{}, error) {
	body := map[string]interface{}{"orderId": brokerOrderID}
	return withRetry(ctx, g.log, "cancel_order", func(ctx context.Context) (map[string]interface{}, error) {
		return g.doJSON(ctx, http.MethodPost, "/v1/order/cancel", body, g.authHeaders(user))
	})
}

// GetOrderStatus fetches the vendor's view of an order.
func (g *Groww) GetOrderStatus(ctx context.Context, user *domain.User, brokerOrderID string) (map[string]interface{}, error) {
	path := fmt.Sprintf("/v1/order/%s", brokerOrderID)
	return withRetry(ctx, g.log, "get_order_status", func(ctx context.Context) (map[string]interface{}, error) {
		return g.doJSON(ctx, http.MethodGet, path, nil, g.authHeaders(user))
	})
}

func (g *Groww) authHeaders(user *domain.User) map[string]string {
	return map[string]string{"X-Groww-Account": user.Email}
}

func (g *Groww) product(p domain.Product) string {
	if p == domain.ProductMTF {
		return "MTF"
	}
	return "DELIVERY"
}
