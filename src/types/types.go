package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority of a notification, used by the presentation policy.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Event names carried on the wire. Lifecycle events are synthesized by the
// connection manager and never arrive from the server.
const (
	EventNotification       = "notification"
	EventEarningsUpdated    = "earnings_updated"
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventPaymentReceived    = "payment_received"
	EventSystemAnnouncement = "system_announcement"

	EventConnected        = "connected"
	EventDisconnected     = "disconnected"
	EventConnectionFailed = "connection_failed"
)

// Event is a named message routed from the connection to subscribers.
// Events are transient: routed, never stored.
type Event struct {
	Name      string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notification is a client-held record backed by the server list.
type Notification struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Category  string     `json:"category,omitempty"`
	Priority  Priority   `json:"priority"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// NotificationFromEvent decodes the payload of a notification event.
func NotificationFromEvent(evt Event) (Notification, error) {
	var n Notification
	raw, err := json.Marshal(evt.Data)
	if err != nil {
		return n, fmt.Errorf("encode event data: %w", err)
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" {
		return n, fmt.Errorf("notification event without id")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = evt.Timestamp
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	return n, nil
}

// Page is one reconciliation pull against the authoritative server list.
// Complete marks a page holding the full list; only a complete page may
// shrink the client-held set.
type Page struct {
	Records  []Notification `json:"records"`
	Complete bool           `json:"complete"`
	Unread   int            `json:"unread_count"`
}

// ConnState is the connection manager's externally visible state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
)

// ConnStatus is a read-only snapshot of the connection manager.
type ConnStatus struct {
	State    ConnState `json:"state"`
	Attempts int       `json:"attempts"`
	ConnID   string    `json:"conn_id,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
}

// Credentials authenticate the connection and API calls. Issuance is the
// host's concern; this subsystem only carries the token.
type Credentials struct {
	Token string
}

// Conn abstracts an open bidirectional connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Transport opens connections to the event server.
type Transport interface {
	Open(url string, creds Credentials) (Conn, error)
}
