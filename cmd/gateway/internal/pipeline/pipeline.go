package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/cache"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/scheduler"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
	"github.com/shubham-shewale/watchlist-stream/pkg/protocol"
)

var ErrShutdown = errors.New("pipeline is shut down")

// Pipeline wires the snapshot cache, the connection hub and the ingestion scheduler
// together. It is built once at startup and torn down once.
type Pipeline struct {
	cache     *cache.SnapshotCache
	hub       *hub.Hub
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*pipelineOptions)

type pipelineOptions struct {
	cacheOpts []cache.Option
	schedOpts []scheduler.Option
	now       func() time.Time
}

func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *pipelineOptions) { o.cacheOpts = append(o.cacheOpts, opts...) }
}

func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *pipelineOptions) { o.schedOpts = append(o.schedOpts, opts...) }
}

// WithNow sets the clock used for notification timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *pipelineOptions) { o.now = now }
}

func New(cfg scheduler.Config, ttl time.Duration, source scheduler.QuoteSource, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := pipelineOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := cache.New(ttl, o.cacheOpts...)
	h := hub.NewHub(c, logger.Named("hub"))
	s := scheduler.New(cfg, source, c, h, h, logger.Named("scheduler"), o.schedOpts...)

	return &Pipeline{
		cache:     c,
		hub:       h,
		scheduler: s,
		logger:    logger,
		now:       o.now,
	}
}

func (p *Pipeline) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Accept registers a new subscriber, which immediately receives the welcome and the
// current snapshot.
func (p *Pipeline) Accept(client hub.ClientInterface) error {
	if err := p.hub.Register(client); err != nil {
		if errors.Is(err, hub.ErrHubClosed) {
			return ErrShutdown
		}
		return err
	}
	return nil
}

// Hub exposes the registry so transport adapters can unregister themselves.
func (p *Pipeline) Hub() *hub.Hub { return p.hub }

func (p *Pipeline) Cache() *cache.SnapshotCache { return p.cache }

// Notify broadcasts a notification to every subscriber.
func (p *Pipeline) Notify(title, message string) hub.Result {
	res := p.hub.Broadcast(protocol.NewNotification(title, message, p.now().UnixMilli()))
	p.logger.Info("Notification broadcast",
		zap.String("title", title),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res
}

// Quotes returns the fresh snapshot, ordered by symbol.
func (p *Pipeline) Quotes() []models.Quote {
	entries := p.cache.SnapshotAll()
	out := make([]models.Quote, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Quote)
	}
	return out
}

// Warm seeds the cache with previously persisted quotes. Each is stored at its own
// timestamp, so anything older than the TTL only serves as a stale fallback.
func (p *Pipeline) Warm(quotes []models.Quote) int {
	n := 0
	for _, q := range quotes {
		if err := p.cache.Restore(q, q.Time()); err != nil {
			p.logger.Debug("Skipping warm-start quote", zap.String("symbol", q.Symbol), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func (p *Pipeline) RunCycle(ctx context.Context) scheduler.CycleReport {
	return p.scheduler.RunCycle(ctx)
}

func (p *Pipeline) Subscribers() int { return p.hub.Count() }

// Shutdown stops ingestion first so no cycle can broadcast into a closing hub, then
// closes every connection and empties the cache.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	err := p.scheduler.Stop(ctx)
	p.hub.CloseAll()
	p.cache.Clear()
	p.logger.Info("Pipeline shut down")
	return err
}
