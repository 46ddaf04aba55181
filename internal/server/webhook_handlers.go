package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/modules/fills"
	"github.com/teamscryps/backend/internal/webhook"
)

// maxWebhookBody caps the signed payload size.
const maxWebhookBody = 1 << 20

// WebhookHandlers serves the signed broker callbacks. Signature
// verification runs over the raw request bytes before any parsing, and
// failures are answered with an opaque 401.
type WebhookHandlers struct {
	fills    *fills.Service
	verifier *webhook.Verifier
	log      zerolog.Logger
}

// NewWebhookHandlers creates the webhook handlers
func NewWebhookHandlers(fillsSvc *fills.Service, verifier *webhook.Verifier, log zerolog.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		fills:    fillsSvc,
		verifier: verifier,
		log:      log.With().Str("handler", "webhook").Logger(),
	}
}

// readSigned reads the body and checks its signature. A nil return means
// the 401 has already been written.
func (h *WebhookHandlers) readSigned(w http.ResponseWriter, r *http.Request, deliveryID string) []byte {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return nil
	}

	sig := r.Header.Get(webhook.SignatureHeader)
	alg := r.Header.Get(webhook.AlgorithmHeader)
	if !h.verifier.Verify(body, sig, alg) {
		h.log.Warn().Str("delivery_id", deliveryID).Str("path", r.URL.Path).Msg("Webhook signature rejected")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return nil
	}
	return body
}

// fillRequest is the body of POST /broker/fill.
type fillRequest struct {
	OrderID      int64           `json:"order_id"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	BrokerFillID string          `json:"broker_fill_id"`
}

// HandleFill handles POST /broker/fill
func (h *WebhookHandlers) HandleFill(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()

	body := h.readSigned(w, r, deliveryID)
	if body == nil {
		return
	}

	var req fillRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	order, err := h.fills.ApplyFill(req.OrderID, req.Quantity, req.Price, req.BrokerFillID)
	if errors.Is(err, domain.ErrFillAlreadyApplied) {
		// Replayed delivery: acknowledge so the vendor stops retrying.
		h.log.Info().
			Str("delivery_id", deliveryID).
			Int64("order_id", req.OrderID).
			Str("broker_fill_id", req.BrokerFillID).
			Msg("Duplicate fill ignored")
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "IGNORED",
			"reason":      "duplicate",
			"delivery_id": deliveryID,
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("delivery_id", deliveryID).Int64("order_id", req.OrderID).Msg("Fill rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":    order.ID,
		"status":      string(order.Status),
		"filled_qty":  order.FilledQty,
		"delivery_id": deliveryID,
	})
}

// cancelRequest is the body of POST /broker/cancel.
type cancelRequest struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// HandleCancel handles POST /broker/cancel - broker-side cancellations
// and rejections.
func (h *WebhookHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()

	body := h.readSigned(w, r, deliveryID)
	if body == nil {
		return
	}

	var req cancelRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	order, idempotent, err := h.fills.ApplyCancel(req.OrderID, domain.OrderStatus(req.Status), nil, false)
	if err != nil {
		h.log.Error().Err(err).Str("delivery_id", deliveryID).Int64("order_id", req.OrderID).Msg("Cancel rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":    order.ID,
		"status":      string(order.Status),
		"idempotent":  idempotent,
		"delivery_id": deliveryID,
	})
}
