package store

import (
	"context"
	"sync"
	"time"

	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
)

// Fetcher pulls a page of notifications from the authoritative server list.
type Fetcher interface {
	FetchNotifications(ctx context.Context, limit int) (types.Page, error)
}

// Poller periodically reconciles the store against the server list,
// compensating for push events missed while the connection was down. A
// failed pull leaves the store untouched; the next tick retries
// unconditionally.
type Poller struct {
	store    *Store
	fetcher  Fetcher
	interval time.Duration
	limit    int
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller. Start must be called to begin pulling.
func NewPoller(s *Store, f Fetcher, interval time.Duration, limit int, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		store:    s,
		fetcher:  f,
		interval: interval,
		limit:    limit,
		logger:   logger.With().Str("component", "poller").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start pulls once immediately to seed the store, then keeps pulling on the
// configured interval until Stop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop cancels the poll loop and waits for it to exit. No pull runs after
// Stop returns.
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Poller) loop() {
	defer p.wg.Done()

	p.pull()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pull()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Poller) pull() {
	ctx, cancel := context.WithTimeout(p.ctx, p.interval)
	defer cancel()

	page, err := p.fetcher.FetchNotifications(ctx, p.limit)
	if err != nil {
		p.logger.Warn().Err(err).Msg("reconciliation pull failed")
		return
	}
	p.store.Reconcile(page)
	p.logger.Debug().
		Int("records", len(page.Records)).
		Bool("complete", page.Complete).
		Msg("reconciled")
}
