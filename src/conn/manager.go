package conn

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
)

// Events receives decoded and synthetic lifecycle events from the manager.
// Defined here to avoid a hard dependency on the mux package.
type Events interface {
	Publish(evt types.Event)
}

// Options tune the reconnect behaviour of a Manager.
type Options struct {
	URL         string
	BackoffBase time.Duration // first retry delay, default 1s
	BackoffCap  time.Duration // delay upper bound, default 30s
	MaxAttempts int           // consecutive failures before Failed, default 5
}

// Manager owns the lifecycle of the single persistent connection: dial,
// detect disconnection, retry with bounded exponential backoff, expose
// status. Transport failures surface as state transitions, never as errors
// to callers.
type Manager struct {
	transport types.Transport
	events    Events
	opts      Options
	logger    zerolog.Logger

	mu       sync.Mutex
	state    types.ConnState
	attempts int
	connID   string
	lastErr  error
	conn     types.Conn
	creds    types.Credentials
	retry    *time.Timer
	// gen fences stale dial results, timer fires, and read-pump closes
	// after an explicit Disconnect or a fresh Connect.
	gen uint64

	stateCbs []func(types.ConnStatus)
}

// New creates a connection manager. It stays Disconnected until Connect.
func New(transport types.Transport, events Events, opts Options, logger zerolog.Logger) *Manager {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Manager{
		transport: transport,
		events:    events,
		opts:      opts,
		logger:    logger.With().Str("component", "conn").Logger(),
		state:     types.StateDisconnected,
	}
}

// OnStateChange registers a callback invoked after every state transition
// with a status snapshot. Callbacks run on the manager's goroutines and
// must not block.
func (m *Manager) OnStateChange(cb func(types.ConnStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCbs = append(m.stateCbs, cb)
}

// Connect starts the state machine with the given credentials. Idempotent
// while Connected or Connecting. From Failed or Disconnected it resets the
// attempt counter and dials again.
func (m *Manager) Connect(creds types.Credentials) {
	m.mu.Lock()
	if m.state == types.StateConnected || m.state == types.StateConnecting {
		m.mu.Unlock()
		return
	}
	m.creds = creds
	m.attempts = 0
	m.lastErr = nil
	m.cancelRetryLocked()
	m.gen++
	gen := m.gen
	m.setStateLocked(types.StateConnecting)
	m.mu.Unlock()

	m.fireState()
	go m.dial(gen)
}

// Disconnect forces Disconnected, cancels any pending reconnect timer and
// releases the connection. No automatic reconnection happens afterwards.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == types.StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.cancelRetryLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connID = ""
	m.attempts = 0
	m.setStateLocked(types.StateDisconnected)
	m.mu.Unlock()

	m.fireState()
	m.events.Publish(types.Event{Name: types.EventDisconnected, Timestamp: time.Now()})
}

// Status returns a read-only snapshot.
func (m *Manager) Status() types.ConnStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Send writes an event to the server. While not Connected it drops the
// message with a warning; there is no outbound queue or replay.
func (m *Manager) Send(name string, data map[string]any) {
	m.mu.Lock()
	c := m.conn
	connected := m.state == types.StateConnected
	m.mu.Unlock()

	if !connected || c == nil {
		m.logger.Warn().Str("event", name).Msg("send dropped, not connected")
		return
	}
	evt := types.Event{Name: name, Data: data, Timestamp: time.Now()}
	if err := c.WriteJSON(evt); err != nil {
		m.logger.Warn().Err(err).Str("event", name).Msg("send failed")
	}
}

func (m *Manager) dial(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	creds := m.creds
	m.mu.Unlock()

	c, err := m.transport.Open(m.opts.URL, creds)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if err == nil {
			c.Close()
		}
		return
	}
	if err != nil {
		m.lastErr = err
		m.logger.Warn().Err(err).Int("attempt", m.attempts+1).Msg("connect failed")
		failed := m.scheduleRetryLocked(gen)
		m.mu.Unlock()
		m.fireState()
		if failed {
			m.publishFailure()
		}
		return
	}

	m.conn = c
	m.connID = uuid.New().String()
	m.attempts = 0
	m.lastErr = nil
	m.setStateLocked(types.StateConnected)
	connID := m.connID
	m.mu.Unlock()

	m.fireState()
	m.logger.Info().Str("conn_id", connID).Msg("connected")
	m.events.Publish(types.Event{
		Name:      types.EventConnected,
		Data:      map[string]any{"conn_id": connID},
		Timestamp: time.Now(),
	})
	go m.readPump(c, gen)
}

// readPump reads inbound messages and publishes them one at a time, so
// subscribers for one message always finish before the next is processed.
func (m *Manager) readPump(c types.Conn, gen uint64) {
	for {
		var evt types.Event
		if err := c.ReadJSON(&evt); err != nil {
			m.handleClose(gen, err)
			return
		}
		if evt.Name == "" {
			m.logger.Debug().Msg("dropping unnamed message")
			continue
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now()
		}
		m.events.Publish(evt)
	}
}

func (m *Manager) handleClose(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != types.StateConnected {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connID = ""
	m.lastErr = err
	m.logger.Warn().Err(err).Msg("connection lost")
	failed := m.scheduleRetryLocked(gen)
	m.mu.Unlock()

	m.fireState()
	if failed {
		m.publishFailure()
	}
}

// scheduleRetryLocked increments the attempt counter and either arms the
// reconnect timer or enters Failed when the budget is spent. Reports
// whether Failed was entered.
func (m *Manager) scheduleRetryLocked(gen uint64) bool {
	m.attempts++
	if m.attempts >= m.opts.MaxAttempts {
		m.setStateLocked(types.StateFailed)
		return true
	}
	m.setStateLocked(types.StateReconnecting)
	delay := backoffDelay(m.opts.BackoffBase, m.opts.BackoffCap, m.attempts)
	m.retry = time.AfterFunc(delay, func() { m.retryFire(gen) })
	return false
}

func (m *Manager) retryFire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != types.StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(types.StateConnecting)
	m.mu.Unlock()

	m.fireState()
	m.dial(gen)
}

func (m *Manager) publishFailure() {
	m.logger.Error().Msg("reconnect budget exhausted")
	m.events.Publish(types.Event{
		Name:      types.EventConnectionFailed,
		Data:      map[string]any{"attempts": m.opts.MaxAttempts},
		Timestamp: time.Now(),
	})
}

func (m *Manager) cancelRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) setStateLocked(s types.ConnState) {
	if m.state == s {
		return
	}
	m.logger.Debug().Str("from", string(m.state)).Str("to", string(s)).Msg("state change")
	m.state = s
}

func (m *Manager) statusLocked() types.ConnStatus {
	st := types.ConnStatus{
		State:    m.state,
		Attempts: m.attempts,
		ConnID:   m.connID,
	}
	if m.lastErr != nil {
		st.LastErr = m.lastErr.Error()
	}
	return st
}

func (m *Manager) fireState() {
	m.mu.Lock()
	st := m.statusLocked()
	cbs := make([]func(types.ConnStatus), len(m.stateCbs))
	copy(cbs, m.stateCbs)
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(st)
	}
}

// backoffDelay computes the reconnect delay for the given attempt number:
// base doubled per attempt, capped. The attempt counter is incremented
// before the delay is computed, so attempt is always >= 1 here.
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
