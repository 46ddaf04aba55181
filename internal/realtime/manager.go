// Package realtime fans ledger events out to connected WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/teamscryps/backend/internal/events"
)

// queueSize bounds each client's outbound queue. When a slow client
// falls this far behind, the oldest entries are dropped; the client can
// reconcile by refetching snapshot state.
const queueSize = 1024

// writeTimeout bounds a single WebSocket send.
const writeTimeout = 10 * time.Second

// Envelope is the wire frame delivered to clients.
type Envelope struct {
	Type string           `json:"type"`
	Data events.EventData `json:"data,omitempty"`
}

// Client is one connected WebSocket with its bounded outbound queue.
type Client struct {
	userID int64
	send   chan []byte
}

// Manager maintains user_id -> set<client> and bridges the event bus to
// the per-client queues via a single wildcard subscription.
type Manager struct {
	mu      sync.Mutex
	clients map[int64]map[*Client]struct{}
	log     zerolog.Logger
}

// NewManager creates a connection manager and attaches it to the bus.
func NewManager(bus *events.Bus, log zerolog.Logger) *Manager {
	m := &Manager{
		clients: make(map[int64]map[*Client]struct{}),
		log:     log.With().Str("component", "realtime").Logger(),
	}
	bus.Subscribe(events.Wildcard, m.route)
	return m
}

// route delivers one bus event to every connection of its user.
func (m *Manager) route(data events.EventData) {
	payload, err := json.Marshal(Envelope{Type: string(data.EventType()), Data: data})
	if err != nil {
		m.log.Error().Err(err).Str("event_type", string(data.EventType())).Msg("Failed to encode event")
		return
	}

	m.mu.Lock()
	conns := make([]*Client, 0, len(m.clients[data.User()]))
	for c := range m.clients[data.User()] {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.enqueue(payload)
	}
}

// Register adds a connection for a user and returns its client handle.
func (m *Manager) Register(userID int64) *Client {
	c := &Client{userID: userID, send: make(chan []byte, queueSize)}
	m.mu.Lock()
	if m.clients[userID] == nil {
		m.clients[userID] = make(map[*Client]struct{})
	}
	m.clients[userID][c] = struct{}{}
	m.mu.Unlock()
	return c
}

// Unregister removes a connection; the user's entry disappears with its
// last connection.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	if set, ok := m.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(m.clients, c.userID)
		}
	}
	m.mu.Unlock()
}

// ConnectionCount returns the number of open connections for a user.
func (m *Manager) ConnectionCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients[userID])
}

// enqueue appends a frame, dropping the oldest entries when the queue
// is full.
func (c *Client) enqueue(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
			select {
			case <-c.send:
			default:
			}
		}
	}
}

// Serve drives one accepted WebSocket until the client disconnects or
// ctx is cancelled. It acknowledges the connection, drains the outbound
// queue concurrently with reads, and answers text "ping" frames with
// "pong". All other inbound frames are ignored.
func (m *Manager) Serve(ctx context.Context, userID int64, conn *websocket.Conn) error {
	c := m.Register(userID)
	defer m.Unregister(c)

	ack, _ := json.Marshal(map[string]string{"type": "connection_ack"})
	if err := m.write(ctx, conn, ack); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case msg := <-c.send:
				if err := m.write(ctx, conn, msg); err != nil {
					writeErr <- err
					return
				}
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			}
		}
	}()

	for {
		select {
		case err := <-writeErr:
			return err
		default:
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if string(data) == "ping" {
			if err := m.write(ctx, conn, []byte("pong")); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, msg)
}
