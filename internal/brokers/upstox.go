package brokers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/teamscryps/backend/internal/domain"
)

const upstoxDefaultBaseURL = "https://api.upstox.com"

// Upstox adapts the Upstox v2 REST API.
type Upstox struct {
	restCore
}

// NewUpstox creates an Upstox adapter. baseURL overrides the vendor
// endpoint (used by tests); empty means the production URL.
func NewUpstox(baseURL string, log zerolog.Logger) *Upstox {
	if baseURL == "" {
		baseURL = upstoxDefaultBaseURL
	}
	return &Upstox{restCore: newRestCore("upstox", baseURL, log)}
}

// Vendor returns the vendor key
func (u *Upstox) Vendor() string { return "upstox" }

// EnsureSession probes the user's Upstox session.
func (u *Upstox) EnsureSession(ctx context.Context, user *domain.User) (SessionStatus, error) {
	raw, err := u.doJSON(ctx, http.MethodGet, "/v2/user/profile", nil, u.authHeaders(user))
	if err != nil {
		if KindOf(err) == KindSession {
			return SessionStatus{OK: false, Reason: "session expired"}, nil
		}
		return SessionStatus{}, err
	}
	if nestedString(raw, "status") == "error" {
		return SessionStatus{OK: false, Reason: nestedString(raw, "message")}, nil
	}
	return SessionStatus{OK: true}, nil
}

// PlaceOrder submits an order. Temporary vendor failures are retried per
// the bounded backoff policy.
func (u *Upstox) PlaceOrder(ctx context.Context, user *domain.User, req PlaceRequest) (*PlaceResult, error) {
	body := map[string]interface{}{
		"instrument_token": req.Symbol,
		"transaction_type": strings.ToUpper(string(req.Side)),
		"quantity":         req.Quantity,
		"product":          u.product(req.Product),
		"order_type":       strings.ToUpper(string(req.OrderType)),
	}
	if req.LimitPrice != nil {
		body["price"] = req.LimitPrice.StringFixed(4)
	}

	return withRetry(ctx, u.log, "place_order", func(ctx context.Context) (*PlaceResult, error) {
		raw, err := u.doJSON(ctx, http.MethodPost, "/v2/order/place", body, u.authHeaders(user))
		if err != nil {
			return nil, err
		}
		orderID := nestedString(raw, "data", "order_id")
		if orderID == "" {
			return nil, &Error{
				Kind:    KindPermanent,
				Vendor:  u.vendor,
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
func (u *Upstox) CancelOrder(ctx context.Context, user *domain.User, brokerOrderID string) (map[string]interface{}, error) {
	path := fmt.Sprintf("/v2/order/cancel/%s", brokerOrderID)
	return withRetry(ctx, u.log, "cancel_order", func(ctx context.Context) (map[string]interface{}, error) {
		return u.doJSON(ctx, http.MethodDelete, path, nil, u.authHeaders(user))
	})
}

// GetOrderStatus fetches the vendor's view of an order.
func (u *Upstox) GetOrderStatus(ctx context.Context, user *domain.User, brokerOrderID string) (map[string]interface{}, error) {
	path := fmt.Sprintf("/v2/order/details/%s", brokerOrderID)
	return withRetry(ctx, u.log, "get_order_status", func(ctx context.Context) (map[string]interface{}, error) {
		return u.doJSON(ctx, http.MethodGet, path, nil, u.authHeaders(user))
	})
}

func (u *Upstox) authHeaders(user *domain.User) map[string]string {
	return map[string]string{"X-Upstox-Account": user.Email}
}

func (u *Upstox) product(p domain.Product) string {
	if p == domain.ProductMTF {
		return "MTF"
	}
	return "D"
}
