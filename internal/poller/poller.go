package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/shardgate/internal/api"
)

// Source fetches gateway info.
type Source interface {
	GetGatewayInfo(ctx context.Context) (*api.GatewayInfo, error)
}

// Handler receives each fetched response.
type Handler interface {
	HandleGatewayInfo(info *api.GatewayInfo)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(*api.GatewayInfo)

func (f HandlerFunc) HandleGatewayInfo(info *api.GatewayInfo) { f(info) }

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 5m)
	Timeout  time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Stats holds poll counters.
type Stats struct {
	Polls  int64
	Errors int64
}

// Poller periodically fetches gateway info.
type Poller struct {
	cfg     Config
	source  Source
	handler Handler
	logger  *slog.Logger

	polls  atomic.Int64
	errors atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source Source, handler Handler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the polling loop. The first poll happens after one
// interval; callers fetch once themselves at startup.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("gateway info poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop shuts down the poller and waits for an in-flight poll.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("gateway info poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns poll counters.
func (p *Poller) Stats() Stats {
	return Stats{Polls: p.polls.Load(), Errors: p.errors.Load()}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(); err != nil && p.ctx.Err() == nil {
				p.logger.Warn("failed to refresh gateway info", "err", err)
			}
		}
	}
}

func (p *Poller) poll() error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	p.polls.Add(1)
	info, err := p.source.GetGatewayInfo(ctx)
	if err != nil {
		p.errors.Add(1)
		return err
	}

	p.logger.Debug("gateway info refreshed",
		"remaining", info.SessionStartLimit.Remaining,
		"max_concurrency", info.SessionStartLimit.MaxConcurrency,
	)
	if p.handler != nil {
		p.handler.HandleGatewayInfo(info)
	}
	return nil
}
