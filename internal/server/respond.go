package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/brokers"
	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/modules/snapshot"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a service error onto an HTTP status and a JSON body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor translates the domain and broker error taxonomy.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrHoldingNotFound),
		errors.Is(err, snapshot.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidCancelStatus),
		errors.Is(err, domain.ErrFillOnTerminal):
		return http.StatusBadRequest
	}

	var notAuthorized *domain.NotAuthorizedError
	if errors.As(err, &notAuthorized) {
		return http.StatusForbidden
	}
	var insufficientFunds *domain.InsufficientFundsError
	if errors.As(err, &insufficientFunds) {
		return http.StatusBadRequest
	}
	var insufficientHoldings *domain.InsufficientHoldingsError
	if errors.As(err, &insufficientHoldings) {
		return http.StatusBadRequest
	}
	var invariant *domain.InvariantViolationError
	if errors.As(err, &invariant) {
		return http.StatusInternalServerError
	}

	var brokerErr *brokers.Error
	if errors.As(err, &brokerErr) {
		switch brokerErr.Kind {
		case brokers.KindSession:
			return http.StatusUnauthorized
		case brokers.KindRateLimit:
			return http.StatusTooManyRequests
		case brokers.KindTemporary:
			return http.StatusBadGateway
		case brokers.KindPermanent:
			return http.StatusBadRequest
		}
	}

	return http.StatusInternalServerError
}

// orderResponse is the wire shape of an order.
type orderResponse struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"user_id"`
	PlacedBy      int64            `json:"placed_by"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Product       string           `json:"product"`
	OrderType     string           `json:"order_type"`
	Quantity      int64            `json:"qty"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	FilledQty     int64            `json:"filled_qty"`
	AvgFillPrice  decimal.Decimal  `json:"avg_fill_price"`
	Status        string           `json:"status"`
	BrokerOrderID string           `json:"broker_order_id,omitempty"`
	CreatedAt     string           `json:"created_at"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		PlacedBy:      o.PlacedBy,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Product:       string(o.Product),
		OrderType:     string(o.OrderType),
		Quantity:      o.Quantity,
		LimitPrice:    o.LimitPrice,
		FilledQty:     o.FilledQty,
		AvgFillPrice:  o.AvgFillPrice,
		Status:        string(o.Status),
		BrokerOrderID: o.BrokerOrderID,
		CreatedAt:     domain.FormatTime(o.CreatedAt),
	}
}

func toOrderResponses(orders []*domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

// userResponse is the wire shape of a client account.
type userResponse struct {
	ID            int64           `json:"id"`
	Email         string          `json:"email"`
	Name          string          `json:"name"`
	Broker        string          `json:"broker"`
	CashAvailable decimal.Decimal `json:"cash_available"`
	CashBlocked   decimal.Decimal `json:"cash_blocked"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Broker:        u.Broker,
		CashAvailable: u.CashAvailable,
		CashBlocked:   u.CashBlocked,
	}
}

// holdingResponse is the wire shape of a position.
type holdingResponse struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"qty"`
	ReservedQty int64           `json:"reserved_qty"`
	FreeQty     int64           `json:"free_qty"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
}

func toHoldingResponses(hs []*domain.Holding) []holdingResponse {
	out := make([]holdingResponse, 0, len(hs))
	for _, h := range hs {
		out = append(out, holdingResponse{
			Symbol:      h.Symbol,
			Quantity:    h.Quantity,
			ReservedQty: h.ReservedQty,
			FreeQty:     h.FreeQty(),
			AvgPrice:    h.AvgPrice,
		})
	}
	return out
}

// auditResponse is the wire shape of one audit row.
type auditResponse struct {
	ID          int64          `json:"id"`
	ActorID     *int64         `json:"actor_id"`
	TargetID    *int64         `json:"target_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	PrevHash    string         `json:"prev_hash,omitempty"`
	Hash        string         `json:"hash"`
	CreatedAt   string         `json:"created_at"`
}

func toAuditResponses(entries []*domain.AuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			ID:          e.ID,
			ActorID:     e.ActorID,
			TargetID:    e.TargetID,
			Action:      e.Action,
			Description: e.Description,
			Details:     e.Details,
			PrevHash:    e.PrevHash,
			Hash:        e.Hash,
			CreatedAt:   domain.FormatTime(e.CreatedAt),
		})
	}
	return out
}
