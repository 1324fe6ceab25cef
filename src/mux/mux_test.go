package mux

import (
	"testing"

	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
)

func newTestMux() *Mux {
	return New(zerolog.Nop())
}

func TestDeliveryInRegistrationOrder(t *testing.T) {
	m := newTestMux()

	var order []int
	m.Subscribe("earnings_updated", func(types.Event) { order = append(order, 1) })
	m.Subscribe("earnings_updated", func(types.Event) { order = append(order, 2) })
	m.Subscribe("earnings_updated", func(types.Event) { order = append(order, 3) })

	m.Publish(types.Event{Name: "earnings_updated"})

	if len(order) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(order))
	}
	for i, v := range order {
		if v != i+1 {
			t.Errorf("delivery %d out of order: got %d", i, v)
		}
	}
}

func TestPublishOnlyMatchingName(t *testing.T) {
	m := newTestMux()

	var got []string
	m.Subscribe("order_created", func(evt types.Event) { got = append(got, evt.Name) })
	m.Subscribe("payment_received", func(evt types.Event) { got = append(got, evt.Name) })

	m.Publish(types.Event{Name: "order_created"})

	if len(got) != 1 || got[0] != "order_created" {
		t.Fatalf("expected only order_created delivery, got %v", got)
	}
}

func TestUnsubscribeRemovesExactlyThatRegistration(t *testing.T) {
	m := newTestMux()

	var a, b int
	subA := m.Subscribe("notification", func(types.Event) { a++ })
	m.Subscribe("notification", func(types.Event) { b++ })

	m.Unsubscribe(subA)
	m.Publish(types.Event{Name: "notification"})

	if a != 0 {
		t.Errorf("unsubscribed handler was invoked %d times", a)
	}
	if b != 1 {
		t.Errorf("remaining handler should run once, ran %d times", b)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	m := newTestMux()

	sub := m.Subscribe("notification", func(types.Event) {})
	m.Unsubscribe(sub)
	m.Unsubscribe(sub) // second call is a no-op

	if n := m.SubscriberCount("notification"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestPanickingSubscriberDoesNotStopSiblings(t *testing.T) {
	m := newTestMux()

	var before, after int
	m.Subscribe("notification", func(types.Event) { before++ })
	m.Subscribe("notification", func(types.Event) { panic("subscriber bug") })
	m.Subscribe("notification", func(types.Event) { after++ })

	m.Publish(types.Event{Name: "notification"})
	m.Publish(types.Event{Name: "notification"})

	if before != 2 || after != 2 {
		t.Errorf("siblings should run despite panic: before=%d after=%d", before, after)
	}
}

func TestPanicDoesNotReachPublisher(t *testing.T) {
	m := newTestMux()
	m.Subscribe("notification", func(types.Event) { panic("boom") })

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic escaped the mux boundary: %v", r)
		}
	}()
	m.Publish(types.Event{Name: "notification"})
}

func TestSubscribeDuringPublish(t *testing.T) {
	m := newTestMux()

	m.Subscribe("notification", func(types.Event) {
		m.Subscribe("notification", func(types.Event) {})
	})
	m.Publish(types.Event{Name: "notification"})

	if n := m.SubscriberCount("notification"); n != 2 {
		t.Errorf("expected 2 subscribers after publish, got %d", n)
	}
}
