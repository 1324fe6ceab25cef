package service

import (
	"context"
	"sync"
	"time"

	"github.com/monetiq/realtime/config"
	"github.com/monetiq/realtime/src/api"
	"github.com/monetiq/realtime/src/conn"
	"github.com/monetiq/realtime/src/mux"
	"github.com/monetiq/realtime/src/presenter"
	"github.com/monetiq/realtime/src/relay"
	"github.com/monetiq/realtime/src/store"
	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
)

// Service is the composition root of the realtime core. The host
// application owns exactly one instance, created where it wires its
// dependencies; there is no package-level singleton. The host calls
// Connect on login and Logout on logout.
type Service struct {
	cfg    *config.Config
	logger zerolog.Logger

	mux     *mux.Mux
	manager *conn.Manager
	store   *store.Store
	api     *api.Client
	fetcher store.Fetcher
	sink    presenter.Sink

	mu     sync.Mutex
	poller *store.Poller
	relay  relay.Relay
}

type options struct {
	transport types.Transport
	fetcher   store.Fetcher
	mutator   store.Mutator
	sink      presenter.Sink
}

// Option customizes a Service, mainly to swap boundaries out in tests.
type Option func(*options)

// WithTransport replaces the WebSocket transport.
func WithTransport(t types.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithFetcher replaces the reconciliation boundary.
func WithFetcher(f store.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithMutator replaces the mutation boundary.
func WithMutator(m store.Mutator) Option {
	return func(o *options) { o.mutator = m }
}

// WithSink sets the UI collaborator receiving presentation decisions.
func WithSink(s presenter.Sink) Option {
	return func(o *options) { o.sink = s }
}

// New wires the realtime core: transport feeding the connection manager,
// the manager publishing into the multiplexer, and the notification store
// and presentation sink subscribed independently.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		cfg:    cfg,
		logger: logger.With().Str("component", "realtime").Logger(),
	}
	s.mux = mux.New(logger)
	s.api = api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, logger)

	s.fetcher = o.fetcher
	if s.fetcher == nil {
		s.fetcher = s.api
	}
	mutator := o.mutator
	if mutator == nil {
		mutator = s.api
	}
	s.store = store.New(mutator, logger)
	s.sink = o.sink

	transport := o.transport
	if transport == nil {
		transport = conn.NewWebSocketTransport()
	}
	s.manager = conn.New(transport, upstream{s}, conn.Options{
		URL:         cfg.SocketURL,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
		MaxAttempts: cfg.MaxAttempts,
	}, logger)

	s.mux.Subscribe(types.EventNotification, s.handleNotification)
	s.mux.Subscribe(types.EventConnectionFailed, s.handleConnectionFailed)
	return s
}

// upstream routes manager output into the multiplexer and mirrors domain
// events to the relay when one is attached.
type upstream struct{ s *Service }

func (u upstream) Publish(evt types.Event) {
	u.s.mux.Publish(evt)
	u.s.mirror(evt)
}

// Connect authenticates the API client and starts the connection state
// machine and the reconciliation poller. Idempotent while connected.
func (s *Service) Connect(creds types.Credentials) {
	s.api.SetCredentials(creds)
	s.manager.Connect(creds)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poller == nil {
		s.poller = store.NewPoller(s.store, s.fetcher, s.cfg.PollInterval, s.cfg.PollLimit, s.logger)
		s.poller.Start()
	}
}

// Logout tears the session down: disconnects, stops the poller, and clears
// all client-held notification state.
func (s *Service) Logout() {
	s.manager.Disconnect()

	s.mu.Lock()
	p := s.poller
	s.poller = nil
	s.mu.Unlock()
	if p != nil {
		p.Stop()
	}
	s.store.Clear()
}

// Close shuts the service down, including an attached relay.
func (s *Service) Close() {
	s.Logout()

	s.mu.Lock()
	r := s.relay
	s.relay = nil
	s.mu.Unlock()
	if r != nil {
		if err := r.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("relay stop error")
		}
	}
}

// EnableRelay starts mirroring inbound events to sibling processes over
// Redis and injecting theirs locally. Unavailability is not fatal; the
// core runs standalone without a relay.
func (s *Service) EnableRelay(cfg *config.RelayConfig) error {
	if cfg == nil {
		cfg = config.RelayConfigFromEnv()
	}
	r := relay.NewRedisRelay(cfg, s.mux, s.logger)
	if err := r.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("relay unavailable, running standalone")
		return err
	}

	s.mu.Lock()
	s.relay = r
	s.mu.Unlock()
	s.logger.Info().Str("redis_addr", cfg.Addr).Msg("relay connected")
	return nil
}

// Subscribe registers a handler for a named event.
func (s *Service) Subscribe(name string, fn mux.Handler) mux.Subscription {
	return s.mux.Subscribe(name, fn)
}

// Unsubscribe removes a registration. Idempotent.
func (s *Service) Unsubscribe(sub mux.Subscription) {
	s.mux.Unsubscribe(sub)
}

// Send fires an event to the server. Dropped with a warning while not
// connected.
func (s *Service) Send(name string, data map[string]any) {
	s.manager.Send(name, data)
}

// Status returns the connection status snapshot.
func (s *Service) Status() types.ConnStatus {
	return s.manager.Status()
}

// OnStateChange registers a connection state listener.
func (s *Service) OnStateChange(cb func(types.ConnStatus)) {
	s.manager.OnStateChange(cb)
}

// Unread returns the current unread notification count.
func (s *Service) Unread() int {
	return s.store.UnreadCount()
}

// Notifications returns a snapshot of the notification feed, newest first.
func (s *Service) Notifications() []types.Notification {
	return s.store.List()
}

// Latest returns the most recent notification, or nil.
func (s *Service) Latest() *types.Notification {
	return s.store.Latest()
}

// MarkRead marks one notification read, optimistically.
func (s *Service) MarkRead(ctx context.Context, id string) bool {
	return s.store.MarkRead(ctx, id)
}

// MarkAllRead marks every notification read, optimistically.
func (s *Service) MarkAllRead(ctx context.Context) bool {
	return s.store.MarkAllRead(ctx)
}

// Delete removes one notification, optimistically.
func (s *Service) Delete(ctx context.Context, id string) bool {
	return s.store.Delete(ctx, id)
}

// Store exposes the notification store for hosts that bind UI panels to it.
func (s *Service) Store() *store.Store { return s.store }

// Events exposes the multiplexer for direct domain-event subscriptions.
func (s *Service) Events() *mux.Mux { return s.mux }

func (s *Service) handleNotification(evt types.Event) {
	n, err := types.NotificationFromEvent(evt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("bad notification payload")
		return
	}
	if !s.store.HandlePushed(n) {
		return
	}
	if s.sink != nil {
		s.sink(n, presenter.Decide(n.Priority))
	}
}

// handleConnectionFailed surfaces an exhausted retry budget as a
// persistent notification, the one failure mode requiring user awareness.
func (s *Service) handleConnectionFailed(evt types.Event) {
	if s.sink == nil {
		return
	}
	n := types.Notification{
		ID:        "connection-failed",
		Type:      "connection_failed",
		Title:     "Connection lost",
		Message:   "Realtime updates are unavailable. Please refresh the page.",
		Priority:  types.PriorityUrgent,
		CreatedAt: time.Now(),
	}
	s.sink(n, presenter.Decide(n.Priority))
}

func (s *Service) mirror(evt types.Event) {
	switch evt.Name {
	case types.EventConnected, types.EventDisconnected, types.EventConnectionFailed:
		return
	}

	s.mu.Lock()
	r := s.relay
	s.mu.Unlock()
	if r == nil || !r.Available() {
		return
	}
	if err := r.Publish(evt); err != nil {
		s.logger.Error().Err(err).Msg("relay publish failed")
	}
}
