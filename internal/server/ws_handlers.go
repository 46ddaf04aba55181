package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/teamscryps/backend/internal/modules/orders"
	"github.com/teamscryps/backend/internal/realtime"
)

// WSHandlers upgrades /ws/client/{client_id} connections and hands them
// to the realtime manager. A connection may be opened by the client
// itself or by a trader mapped to it.
type WSHandlers struct {
	manager *realtime.Manager
	orders  *orders.Service
	log     zerolog.Logger
}

// NewWSHandlers creates the WebSocket handlers
func NewWSHandlers(manager *realtime.Manager, ordersSvc *orders.Service, log zerolog.Logger) *WSHandlers {
	return &WSHandlers{
		manager: manager,
		orders:  ordersSvc,
		log:     log.With().Str("handler", "ws").Logger(),
	}
}

// HandleClientStream handles GET /ws/client/{client_id}
func (h *WSHandlers) HandleClientStream(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	clientID, err := urlID(r, "client_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.orders.Authorize(actor, clientID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Int64("client_id", clientID).Msg("WebSocket accept failed")
		return
	}

	h.log.Info().Int64("client_id", clientID).Int64("actor_id", actor).Msg("WebSocket connected")

	err = h.manager.Serve(r.Context(), clientID, conn)
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		h.log.Info().Int64("client_id", clientID).Msg("WebSocket disconnected")
	default:
		h.log.Warn().Err(err).Int64("client_id", clientID).Msg("WebSocket closed with error")
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
