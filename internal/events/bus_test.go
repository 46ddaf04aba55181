package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []int64
	bus.Subscribe(OrderNew, func(data EventData) {
		got = append(got, data.User())
	})

	bus.Publish(&OrderNewData{OrderID: 1, UserID: 42})
	bus.Publish(&OrderFillData{OrderID: 1, UserID: 99})

	assert.Equal(t, []int64{42}, got, "only order.new events should be delivered")
}

func TestWildcardReceivesAllTopics(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var topics []EventType
	bus.Subscribe(Wildcard, func(data EventData) {
		topics = append(topics, data.EventType())
	})

	bus.Publish(&OrderNewData{UserID: 1})
	bus.Publish(&OrderFillData{UserID: 1})
	bus.Publish(&OrderCancelData{UserID: 1})
	bus.Publish(&OrderCancelData{UserID: 1, ByTrader: true})

	assert.Equal(t, []EventType{OrderNew, OrderFill, OrderCancel, OrderCancelTrader}, topics)
}

func TestDeliveryFollowsRegistrationOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var order []string
	bus.Subscribe(OrderNew, func(EventData) { order = append(order, "first") })
	bus.Subscribe(OrderNew, func(EventData) { order = append(order, "second") })
	bus.Subscribe(Wildcard, func(EventData) { order = append(order, "wildcard") })

	bus.Publish(&OrderNewData{UserID: 1})

	assert.Equal(t, []string{"first", "second", "wildcard"}, order)
}

func TestSubscriberPanicDoesNotAffectOthers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(OrderCancel, func(EventData) { panic("boom") })
	bus.Subscribe(OrderCancel, func(EventData) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(&OrderCancelData{UserID: 7})
	})
	assert.True(t, delivered, "panicking subscriber must not block later subscribers")
}

func TestSubscriberCount(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	assert.Equal(t, 0, bus.SubscriberCount(OrderNew))
	bus.Subscribe(OrderNew, func(EventData) {})
	bus.Subscribe(OrderNew, func(EventData) {})
	assert.Equal(t, 2, bus.SubscriberCount(OrderNew))
}
