package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
)

// feed holds the in-memory notification list and the set of connected
// push clients. It is a development stand-in for the dashboard backend.
type feed struct {
	mu      sync.Mutex
	records []types.Notification // newest first
	conns   map[string]*websocket.Conn
	logger  zerolog.Logger
}

func newFeed(logger zerolog.Logger) *feed {
	return &feed{
		conns:  make(map[string]*websocket.Conn),
		logger: logger.With().Str("component", "feed").Logger(),
	}
}

func (f *feed) addConn(id string, c *websocket.Conn) {
	f.mu.Lock()
	f.conns[id] = c
	f.mu.Unlock()
	f.logger.Info().Str("client_id", id).Msg("push client connected")
}

func (f *feed) removeConn(id string) {
	f.mu.Lock()
	delete(f.conns, id)
	f.mu.Unlock()
	f.logger.Info().Str("client_id", id).Msg("push client disconnected")
}

// push sends an event to every connected client. Clients failing the
// write are dropped.
func (f *feed) push(evt types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, c := range f.conns {
		if err := c.WriteJSON(evt); err != nil {
			f.logger.Warn().Err(err).Str("client_id", id).Msg("push failed, dropping client")
			c.Close()
			delete(f.conns, id)
		}
	}
}

func (f *feed) page(limit int) types.Page {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := f.records
	complete := true
	if limit > 0 && limit < len(records) {
		records = records[:limit]
		complete = false
	}
	out := make([]types.Notification, len(records))
	copy(out, records)

	unread := 0
	for _, r := range f.records {
		if !r.Read {
			unread++
		}
	}
	return types.Page{Records: out, Complete: complete, Unread: unread}
}

func (f *feed) markRead(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			if !f.records[i].Read {
				now := time.Now()
				f.records[i].Read = true
				f.records[i].ReadAt = &now
			}
			return true
		}
	}
	return false
}

func (f *feed) markAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i := range f.records {
		if !f.records[i].Read {
			f.records[i].Read = true
			f.records[i].ReadAt = &now
		}
	}
}

func (f *feed) delete(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return true
		}
	}
	return false
}

// generate emits a synthetic dashboard event every interval. Notification
// events are also appended to the server list so reconciliation pulls see
// them.
func (f *feed) generate(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		evt := f.randomEvent()
		if evt.Name == types.EventNotification {
			n, err := types.NotificationFromEvent(evt)
			if err == nil {
				f.mu.Lock()
				f.records = append([]types.Notification{n}, f.records...)
				f.mu.Unlock()
			}
		}
		f.logger.Debug().Str("event", evt.Name).Msg("emitting")
		f.push(evt)
	}
}

var priorities = []types.Priority{
	types.PriorityLow,
	types.PriorityMedium,
	types.PriorityHigh,
	types.PriorityUrgent,
}

func (f *feed) randomEvent() types.Event {
	now := time.Now()
	switch rand.Intn(4) {
	case 0:
		return types.Event{
			Name: types.EventEarningsUpdated,
			Data: map[string]any{
				"total":    float64(rand.Intn(100000)) / 100,
				"currency": "USD",
			},
			Timestamp: now,
		}
	case 1:
		return types.Event{
			Name: types.EventOrderCreated,
			Data: map[string]any{
				"order_id": uuid.New().String(),
				"amount":   float64(rand.Intn(50000)) / 100,
			},
			Timestamp: now,
		}
	case 2:
		return types.Event{
			Name: types.EventPaymentReceived,
			Data: map[string]any{
				"payment_id": uuid.New().String(),
				"amount":     float64(rand.Intn(20000)) / 100,
			},
			Timestamp: now,
		}
	default:
		p := priorities[rand.Intn(len(priorities))]
		return types.Event{
			Name: types.EventNotification,
			Data: map[string]any{
				"id":         uuid.New().String(),
				"type":       "order",
				"title":      "New order",
				"message":    fmt.Sprintf("Order #%d placed", rand.Intn(10000)),
				"category":   "orders",
				"priority":   string(p),
				"created_at": now.Format(time.RFC3339Nano),
			},
			Timestamp: now,
		}
	}
}
