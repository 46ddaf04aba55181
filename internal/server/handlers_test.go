package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamscryps/backend/internal/brokers"
	"github.com/teamscryps/backend/internal/config"
	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/events"
	"github.com/teamscryps/backend/internal/modules/accounts"
	"github.com/teamscryps/backend/internal/modules/audit"
	"github.com/teamscryps/backend/internal/modules/fills"
	"github.com/teamscryps/backend/internal/modules/holdings"
	"github.com/teamscryps/backend/internal/modules/orders"
	"github.com/teamscryps/backend/internal/modules/snapshot"
	"github.com/teamscryps/backend/internal/realtime"
	"github.com/teamscryps/backend/internal/webhook"
)

// brokerStub answers the Zerodha-shaped vendor API for tests.
func brokerStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/session/valid":
			fmt.Fprint(w, `{"status":"success","valid":true}`)
		case r.Method == http.MethodPost && r.URL.Path == "/orders/regular":
			fmt.Fprint(w, `{"status":"success","data":{"order_id":"Z-1001"}}`)
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/orders/regular/"):
			fmt.Fprint(w, `{"status":"success"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	srv      *Server
	db       *sql.DB
	accounts *accounts.Repository
	trader   *domain.User
	client   *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	require.NoError(t, database.InitSchema(db.Conn()))
	t.Cleanup(func() { _ = db.Close() })

	stub := brokerStub(t)
	cfg := &config.Config{
		Port:                     8080,
		WebhookSecret:            "S1",
		WebhookAdditionalSecrets: []string{"S2"},
		ZerodhaBaseURL:           stub.URL,
		GrowwBaseURL:             stub.URL,
		UpstoxBaseURL:            stub.URL,
	}

	log := zerolog.Nop()
	conn := db.Conn()
	accountsRepo := accounts.NewRepository(conn, log)
	holdingsRepo := holdings.NewRepository(conn, log)
	holdingsSvc := holdings.NewService(holdingsRepo, accountsRepo, log)
	auditRepo := audit.NewRepository(conn, log)
	auditSvc := audit.NewService(auditRepo, log)
	ordersRepo := orders.NewRepository(conn, log)
	fillsRepo := orders.NewFillRepository(conn, log)
	bus := events.NewBus(log)
	factory := brokers.NewFactory(cfg, log)
	ordersSvc := orders.NewService(conn, ordersRepo, holdingsSvc, accountsRepo, auditSvc, bus, factory, cfg.Debug, log)
	fillsSvc := fills.NewService(conn, ordersRepo, fillsRepo, holdingsSvc, accountsRepo, auditSvc, bus, factory, log)
	snapshotRepo := snapshot.NewRepository(conn, log)
	snapshotSvc := snapshot.NewService(conn, snapshotRepo, holdingsRepo, accountsRepo, fillsRepo, log)
	manager := realtime.NewManager(bus, log)
	verifier := webhook.NewVerifier(cfg.WebhookSecrets())

	srv := New(Config{
		Port:     cfg.Port,
		Log:      log,
		DB:       db,
		Cfg:      cfg,
		Accounts: accountsRepo,
		Holdings: holdingsRepo,
		Orders:   ordersSvc,
		Fills:    fillsSvc,
		Audit:    auditSvc,
		AuditRep: auditRepo,
		Snapshot: snapshotSvc,
		Realtime: manager,
		Verifier: verifier,
	})

	f := &fixture{srv: srv, db: conn, accounts: accountsRepo}

	f.trader = &domain.User{Email: "trader@example.com", Role: domain.RoleTrader, Broker: "zerodha"}
	_, err = accountsRepo.CreateUser(conn, f.trader)
	require.NoError(t, err)

	f.client = &domain.User{
		Email:         "client@example.com",
		Role:          domain.RoleClient,
		Broker:        "zerodha",
		CashAvailable: decimal.RequireFromString("10000.00"),
	}
	_, err = accountsRepo.CreateUser(conn, f.client)
	require.NoError(t, err)
	require.NoError(t, accountsRepo.MapClient(conn, f.trader.ID, f.client.ID))

	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)
	return w
}

func (f *fixture) asTrader(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	return f.do(t, method, path, body, map[string]string{ActorHeader: fmt.Sprint(f.trader.ID)})
}

// signedWebhook posts a broker callback signed with the given secret.
func (f *fixture) signedWebhook(t *testing.T, path, secret string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set(webhook.SignatureHeader, webhook.ComputeSignature(raw, secret))
	req.Header.Set(webhook.AlgorithmHeader, webhook.Algorithm)
	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)
	return w
}

func (f *fixture) placeBuy(t *testing.T, qty int64, limit string) orderResponse {
	t.Helper()
	w := f.asTrader(t, http.MethodPost, "/api/trader/orders", map[string]interface{}{
		"client_id":   f.client.ID,
		"symbol":      "ABC",
		"side":        "buy",
		"product":     "equity",
		"qty":         qty,
		"limit_price": limit,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func (f *fixture) clientCash(t *testing.T) (available, blocked string) {
	t.Helper()
	u, err := f.accounts.GetUser(f.db, f.client.ID)
	require.NoError(t, err)
	return u.CashAvailable.StringFixed(2), u.CashBlocked.StringFixed(2)
}

func TestPlaceOrderReservesFunds(t *testing.T) {
	f := newFixture(t)

	resp := f.placeBuy(t, 100, "50")
	assert.Equal(t, "ACCEPTED", resp.Status)
	assert.Equal(t, "Z-1001", resp.BrokerOrderID)

	available, blocked := f.clientCash(t)
	assert.Equal(t, "5000.00", available)
	assert.Equal(t, "5000.00", blocked)
}

func TestPlaceOrderRequiresActorHeader(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/trader/orders", map[string]interface{}{
		"client_id": f.client.ID, "symbol": "ABC", "side": "buy", "product": "equity", "qty": 1,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlaceOrderForUnmappedClientIsForbidden(t *testing.T) {
	f := newFixture(t)

	stranger := &domain.User{Email: "other@example.com", Role: domain.RoleClient, Broker: "zerodha",
		CashAvailable: decimal.RequireFromString("1000.00")}
	_, err := f.accounts.CreateUser(f.db, stranger)
	require.NoError(t, err)

	w := f.asTrader(t, http.MethodPost, "/api/trader/orders", map[string]interface{}{
		"client_id": stranger.ID, "symbol": "ABC", "side": "buy", "product": "equity", "qty": 1, "limit_price": "10",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPlaceOrderInsufficientFunds(t *testing.T) {
	f := newFixture(t)

	w := f.asTrader(t, http.MethodPost, "/api/trader/orders", map[string]interface{}{
		"client_id": f.client.ID, "symbol": "ABC", "side": "buy", "product": "equity",
		"qty": 1000, "limit_price": "50",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFillWebhookLifecycle(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 100, "50")

	// First slice: 40 @ 49.
	w := f.signedWebhook(t, "/broker/fill", "S1", map[string]interface{}{
		"order_id": order.ID, "quantity": 40, "price": "49", "broker_fill_id": "F1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fillResp struct {
		Status    string `json:"status"`
		FilledQty int64  `json:"filled_qty"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&fillResp))
	assert.Equal(t, "PARTIALLY_FILLED", fillResp.Status)
	assert.Equal(t, int64(40), fillResp.FilledQty)

	// Replay of F1 is acknowledged and ignored.
	w = f.signedWebhook(t, "/broker/fill", "S1", map[string]interface{}{
		"order_id": order.ID, "quantity": 40, "price": "49", "broker_fill_id": "F1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var dup struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&dup))
	assert.Equal(t, "IGNORED", dup.Status)
	assert.Equal(t, "duplicate", dup.Reason)

	// Second slice completes the order: 60 @ 48.
	w = f.signedWebhook(t, "/broker/fill", "S1", map[string]interface{}{
		"order_id": order.ID, "quantity": 60, "price": "48", "broker_fill_id": "F2",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	getResp := f.asTrader(t, http.MethodGet, fmt.Sprintf("/api/trader/orders/%d", order.ID), nil)
	require.Equal(t, http.StatusOK, getResp.Code)
	var final orderResponse
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&final))
	assert.Equal(t, "FILLED", final.Status)
	assert.Equal(t, int64(100), final.FilledQty)
	assert.Equal(t, "48.4000", final.AvgFillPrice.StringFixed(4))

	// 10000 - 40*49 - 60*48 = 5160; the leftover reservation came back.
	available, blocked := f.clientCash(t)
	assert.Equal(t, "5160.00", available)
	assert.Equal(t, "0.00", blocked)
}

func TestFillWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 10, "50")

	w := f.signedWebhook(t, "/broker/fill", "wrong-secret", map[string]interface{}{
		"order_id": order.ID, "quantity": 10, "price": "50",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid signature")

	// Nothing was applied.
	available, blocked := f.clientCash(t)
	assert.Equal(t, "9500.00", available)
	assert.Equal(t, "500.00", blocked)
}

func TestFillWebhookAcceptsRotatedSecret(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 10, "50")

	w := f.signedWebhook(t, "/broker/fill", "S2", map[string]interface{}{
		"order_id": order.ID, "quantity": 10, "price": "50", "broker_fill_id": "F1",
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCancelWebhookReleasesReservation(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 20, "50")

	w := f.signedWebhook(t, "/broker/cancel", "S1", map[string]interface{}{
		"order_id": order.ID, "status": "CANCELLED",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Status     string `json:"status"`
		Idempotent bool   `json:"idempotent"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "CANCELLED", resp.Status)
	assert.False(t, resp.Idempotent)

	available, blocked := f.clientCash(t)
	assert.Equal(t, "10000.00", available)
	assert.Equal(t, "0.00", blocked)

	// Replaying the cancel is a no-op.
	w = f.signedWebhook(t, "/broker/cancel", "S1", map[string]interface{}{
		"order_id": order.ID, "status": "CANCELLED",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Idempotent)
}

func TestCancelWebhookRejectsBadStatus(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 10, "50")

	w := f.signedWebhook(t, "/broker/cancel", "S1", map[string]interface{}{
		"order_id": order.ID, "status": "FILLED",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTraderCancelEndpoint(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 20, "50")

	w := f.asTrader(t, http.MethodPost, fmt.Sprintf("/api/trader/orders/%d/cancel", order.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	available, blocked := f.clientCash(t)
	assert.Equal(t, "10000.00", available)
	assert.Equal(t, "0.00", blocked)
}

func TestTraderClientReads(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 100, "50")
	w := f.signedWebhook(t, "/broker/fill", "S1", map[string]interface{}{
		"order_id": order.ID, "quantity": 100, "price": "50", "broker_fill_id": "F1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.asTrader(t, http.MethodGet, "/api/trader/clients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var clients []userResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&clients))
	require.Len(t, clients, 1)
	assert.Equal(t, f.client.ID, clients[0].ID)

	w = f.asTrader(t, http.MethodGet, fmt.Sprintf("/api/trader/clients/%d/holdings", f.client.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var positions []holdingResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "ABC", positions[0].Symbol)
	assert.Equal(t, int64(100), positions[0].Quantity)

	w = f.asTrader(t, http.MethodGet, fmt.Sprintf("/api/trader/clients/%d/orders", f.client.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "FILLED", list[0].Status)
}

func TestAuditEndpoints(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 10, "50")
	w := f.signedWebhook(t, "/broker/fill", "S1", map[string]interface{}{
		"order_id": order.ID, "quantity": 10, "price": "50", "broker_fill_id": "F1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/audit?action=ORDER_ACCEPTED", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []auditResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "ORDER_ACCEPTED", entries[0].Action)

	w = f.do(t, http.MethodGet, "/api/audit/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var verify struct {
		OK      bool `json:"ok"`
		Checked int  `json:"checked"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&verify))
	assert.True(t, verify.OK)
	assert.Greater(t, verify.Checked, 0)
}

func TestClientPortfolioEndpoint(t *testing.T) {
	f := newFixture(t)
	order := f.placeBuy(t, 10, "50")
	w := f.signedWebhook(t, "/broker/fill", "S1", map[string]interface{}{
		"order_id": order.ID, "quantity": 10, "price": "50", "broker_fill_id": "F1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/clients/%d/portfolio", f.client.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p struct {
		CashAvailable decimal.Decimal `json:"cash_available"`
		HoldingsValue decimal.Decimal `json:"holdings_value"`
		TotalValue    decimal.Decimal `json:"total_value"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "9500.00", p.CashAvailable.StringFixed(2))
	assert.Equal(t, "500.00", p.HoldingsValue.StringFixed(2))
	assert.Equal(t, "10000.00", p.TotalValue.StringFixed(2))
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
