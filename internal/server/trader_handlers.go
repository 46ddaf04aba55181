package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/modules/accounts"
	"github.com/teamscryps/backend/internal/modules/fills"
	"github.com/teamscryps/backend/internal/modules/holdings"
	"github.com/teamscryps/backend/internal/modules/orders"
)

// ActorHeader carries the authenticated trader id. Authentication itself
// sits in front of this service; the header is trusted input here.
const ActorHeader = "X-Actor-ID"

// TraderHandlers serves the trader-facing order and client endpoints.
type TraderHandlers struct {
	orders   *orders.Service
	fills    *fills.Service
	accounts *accounts.Repository
	holdings *holdings.Repository
	debug    bool
	log      zerolog.Logger
}

// NewTraderHandlers creates the trader handlers
func NewTraderHandlers(
	ordersSvc *orders.Service,
	fillsSvc *fills.Service,
	accountsRepo *accounts.Repository,
	holdingsRepo *holdings.Repository,
	debug bool,
	log zerolog.Logger,
) *TraderHandlers {
	return &TraderHandlers{
		orders:   ordersSvc,
		fills:    fillsSvc,
		accounts: accountsRepo,
		holdings: holdingsRepo,
		debug:    debug,
		log:      log.With().Str("handler", "trader").Logger(),
	}
}

// actorID extracts the trader identity from the request.
func actorID(r *http.Request) (int64, error) {
	raw := r.Header.Get(ActorHeader)
	if raw == "" {
		return 0, fmt.Errorf("missing %s header", ActorHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s header", ActorHeader)
	}
	return id, nil
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// placeOrderRequest is the body of the order placement endpoints.
type placeOrderRequest struct {
	ClientID   int64            `json:"client_id"`
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Product    string           `json:"product"`
	Quantity   int64            `json:"qty"`
	LimitPrice *decimal.Decimal `json:"limit_price"`
}

func (req *placeOrderRequest) toPlaceRequest() orders.PlaceRequest {
	return orders.PlaceRequest{
		Symbol:     req.Symbol,
		Side:       domain.Side(req.Side),
		Product:    domain.Product(req.Product),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	}
}

// HandlePlaceOrder handles POST /api/trader/orders - place for a client
func (h *TraderHandlers) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	traderID, err := actorID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.ClientID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "client_id is required"})
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), traderID, req.ClientID, req.toPlaceRequest())
	if err != nil {
		h.log.Warn().Err(err).Int64("trader_id", traderID).Int64("client_id", req.ClientID).Msg("Order placement failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// HandlePlaceMyOrder handles POST /api/trader/my-orders - self trading,
// the actor is both trader and client.
func (h *TraderHandlers) HandlePlaceMyOrder(w http.ResponseWriter, r *http.Request) {
	traderID, err := actorID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), traderID, traderID, req.toPlaceRequest())
	if err != nil {
		h.log.Warn().Err(err).Int64("trader_id", traderID).Msg("Self order placement failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// HandleGetOrder handles GET /api/trader/orders/{id}
func (h *TraderHandlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	traderID, err := actorID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	order, err := h.orders.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.orders.Authorize(traderID, order.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// HandleCancelOrder handles POST /api/trader/orders/{id}/cancel
func (h *TraderHandlers) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	traderID, err := actorID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	id, err := urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	order, err := h.orders.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.orders.Authorize(traderID, order.UserID); err != nil {
		writeError(w, err)
		return
	}

	order, idempotent, err := h.fills.TraderCancel(r.Context(), traderID, id)
	if err != nil {
		h.log.Warn().Err(err).Int64("order_id", id).Msg("Trader cancel failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order":      toOrderResponse(order),
		"idempotent": idempotent,
	})
}

// HandleListClients handles GET /api/trader/clients
func (h *TraderHandlers) HandleListClients(w http.ResponseWriter, r *http.Request) {
	traderID, err := actorID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	var clients []*domain.User
	if h.debug {
		clients, err = h.accounts.ListAllClients(h.accounts.DB())
	} else {
		clients, err = h.accounts.ListClients(h.accounts.DB(), traderID)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list clients")
		writeError(w, err)
		return
	}

	out := make([]userResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, toUserResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleClientHoldings handles GET /api/trader/clients/{id}/holdings
func (h *TraderHandlers) HandleClientHoldings(w http.ResponseWriter, r *http.Request) {
	_, clientID, ok := h.authorizedClient(w, r)
	if !ok {
		return
	}

	positions, err := h.holdings.ListByUser(h.accounts.DB(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldingResponses(positions))
}

// HandleClientOrders handles GET /api/trader/clients/{id}/orders
func (h *TraderHandlers) HandleClientOrders(w http.ResponseWriter, r *http.Request) {
	_, clientID, ok := h.authorizedClient(w, r)
	if !ok {
		return
	}

	list, err := h.orders.ListForUser(clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(list))
}

// authorizedClient resolves the actor and the {id} client and checks the
// trader-client mapping. On failure it has already written the response.
func (h *TraderHandlers) authorizedClient(w http.ResponseWriter, r *http.Request) (traderID, clientID int64, ok bool) {
	traderID, err := actorID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return 0, 0, false
	}
	clientID, err = urlID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return 0, 0, false
	}
	if err := h.orders.Authorize(traderID, clientID); err != nil {
		writeError(w, err)
		return 0, 0, false
	}
	return traderID, clientID, true
}
