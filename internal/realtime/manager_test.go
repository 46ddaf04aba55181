package realtime

import (
	"context"
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
	"nhooyr.io/websocket"

	"github.com/teamscryps/backend/internal/events"
)

func fillEvent(userID int64, orderID int64) *events.OrderFillData {
	return &events.OrderFillData{
		OrderID:       orderID,
		UserID:        userID,
		Symbol:        "ABC",
		Qty:           10,
		Price:         decimal.RequireFromString("50"),
		FilledQty:     10,
		Status:        "FILLED",
		CashAvailable: decimal.RequireFromString("500.00"),
		CashBlocked:   decimal.Zero,
	}
}

func TestRouteDeliversOnlyToEventUser(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	m := NewManager(bus, zerolog.Nop())

	alice := m.Register(1)
	bob := m.Register(2)
	defer m.Unregister(alice)
	defer m.Unregister(bob)

	bus.Publish(fillEvent(1, 42))

	select {
	case msg := <-alice.send:
		var env struct {
			Type string               `json:"type"`
			Data events.OrderFillData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, "order.fill", env.Type)
		assert.Equal(t, int64(42), env.Data.OrderID)
	default:
		t.Fatal("expected a frame on alice's queue")
	}

	assert.Empty(t, bob.send, "bob must not see alice's events")
}

func TestRouteFansOutToAllConnectionsOfUser(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	m := NewManager(bus, zerolog.Nop())

	first := m.Register(7)
	second := m.Register(7)
	defer m.Unregister(first)
	defer m.Unregister(second)

	bus.Publish(fillEvent(7, 1))

	assert.Len(t, first.send, 1)
	assert.Len(t, second.send, 1)
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	c := &Client{userID: 1, send: make(chan []byte, queueSize)}
	for i := 0; i < queueSize+5; i++ {
		c.enqueue([]byte(fmt.Sprintf("m%d", i)))
	}

	assert.Len(t, c.send, queueSize)
	assert.Equal(t, "m5", string(<-c.send), "oldest frames are dropped first")
}

func TestUnregisterRemovesEmptyUserEntry(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	m := NewManager(bus, zerolog.Nop())

	a := m.Register(3)
	b := m.Register(3)
	assert.Equal(t, 2, m.ConnectionCount(3))

	m.Unregister(a)
	assert.Equal(t, 1, m.ConnectionCount(3))
	m.Unregister(b)
	assert.Equal(t, 0, m.ConnectionCount(3))

	m.mu.Lock()
	_, present := m.clients[3]
	m.mu.Unlock()
	assert.False(t, present)
}

func TestServeAcksPongsAndDeliversEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	m := NewManager(bus, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = m.Serve(r.Context(), 9, conn)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, ack, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection_ack"}`, string(ack))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))
	_, pong, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(pong))

	// Registration happens inside Serve; wait for it before publishing.
	require.Eventually(t, func() bool { return m.ConnectionCount(9) == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.Publish(fillEvent(9, 77))

	_, frame, err := conn.Read(ctx)
	require.NoError(t, err)
	var env struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "order.fill", env.Type)
}
