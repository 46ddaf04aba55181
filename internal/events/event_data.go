// Package events provides the in-process typed publish/subscribe bus that
// connects the order flows to the realtime fan-out.
package events

import "github.com/shopspring/decimal"

// EventType identifies a bus topic.
type EventType string

const (
	// OrderNew is published after a successful placement.
	OrderNew EventType = "order.new"
	// OrderFill is published after a fill is applied.
	OrderFill EventType = "order.fill"
	// OrderCancel is published after a cancel or rejection lands.
	OrderCancel EventType = "order.cancel"
	// OrderCancelTrader is published for trader-initiated cancels.
	OrderCancelTrader EventType = "order.cancel.trader"

	// Wildcard subscribes a handler to every topic.
	Wildcard EventType = "*"
)

// EventData is the interface that all event payload types implement.
// Every payload carries UserID so the realtime layer can route per client.
type EventData interface {
	// EventType returns the topic this payload belongs to
	EventType() EventType
	// User returns the client whose ledger the event concerns
	User() int64
}

// OrderNewData is the payload for OrderNew events
type OrderNewData struct {
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Qty           int64           `json:"qty"`
	Status        string          `json:"status"`
	CashAvailable decimal.Decimal `json:"cash_available"`
	CashBlocked   decimal.Decimal `json:"cash_blocked"`
}

// EventType returns the topic for OrderNewData
func (d *OrderNewData) EventType() EventType { return OrderNew }

// User returns the client id for OrderNewData
func (d *OrderNewData) User() int64 { return d.UserID }

// OrderFillData is the payload for OrderFill events
type OrderFillData struct {
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Qty           int64           `json:"qty"`
	Price         decimal.Decimal `json:"price"`
	FilledQty     int64           `json:"filled_qty"`
	Status        string          `json:"status"`
	CashAvailable decimal.Decimal `json:"cash_available"`
	CashBlocked   decimal.Decimal `json:"cash_blocked"`
}

// EventType returns the topic for OrderFillData
func (d *OrderFillData) EventType() EventType { return OrderFill }

// User returns the client id for OrderFillData
func (d *OrderFillData) User() int64 { return d.UserID }

// OrderCancelData is the payload for OrderCancel and OrderCancelTrader events
type OrderCancelData struct {
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	CashAvailable decimal.Decimal `json:"cash_available"`
	CashBlocked   decimal.Decimal `json:"cash_blocked"`

	// ByTrader routes the event onto order.cancel.trader instead.
	ByTrader bool `json:"-"`
}

// EventType returns the topic for OrderCancelData
func (d *OrderCancelData) EventType() EventType {
	if d.ByTrader {
		return OrderCancelTrader
	}
	return OrderCancel
}

// User returns the client id for OrderCancelData
func (d *OrderCancelData) User() int64 { return d.UserID }
