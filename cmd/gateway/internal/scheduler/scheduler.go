package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/cache"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/quotesource"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
	"github.com/shubham-shewale/watchlist-stream/pkg/protocol"
)

// Config holds scheduler configuration.
type Config struct {
	Symbols    []string
	Interval   time.Duration // time between cycles (default: 60s)
	BatchSize  int           // symbols per batch (default: 1)
	BatchDelay time.Duration // pause between batches (default: 13s)
}

// DefaultConfig returns the free-tier friendly defaults.
func DefaultConfig(symbols []string) Config {
	return Config{
		Symbols:    symbols,
		Interval:   60 * time.Second,
		BatchSize:  1,
		BatchDelay: 13 * time.Second,
	}
}

// Payload tiers, in fallback order.
const (
	TierCached    = "cached"
	TierFetched   = "fetched"
	TierStale     = "stale"
	TierSynthetic = "synthetic"
)

const (
	syntheticBase  = 50.0
	syntheticRange = 500.0
)

// QuoteSource fetches a single symbol.
type QuoteSource interface {
	Fetch(ctx context.Context, symbol string) (models.Quote, error)
}

// Cache is the part of the snapshot cache the scheduler reads and writes.
type Cache interface {
	Get(symbol string) (cache.Entry, bool, bool)
	Put(q models.Quote) error
}

// Registry reports whether anyone is listening.
type Registry interface {
	HasSubscribers() bool
}

// Broadcaster pushes a message to every open connection.
type Broadcaster interface {
	Broadcast(msg protocol.Message) hub.Result
}

// Sink receives every quote that came from the provider. Failures are logged only.
type Sink interface {
	Record(ctx context.Context, q models.Quote) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// CycleReport summarizes one cycle.
type CycleReport struct {
	Skipped   bool
	Symbols   int
	Cached    int
	Fetched   int
	Stale     int
	Synthetic int
	Sent      int
	Failed    int
}

// Scheduler periodically refreshes every symbol and pushes the result to subscribers.
// A cycle never fails: every symbol yields exactly one payload, falling back from a
// fresh cache hit to a fetch, then to the stale entry, then to a synthetic placeholder.
type Scheduler struct {
	cfg         Config
	source      QuoteSource
	cache       Cache
	registry    Registry
	broadcaster Broadcaster
	sinks       []Sink
	logger      *zap.Logger
	clock       Clock

	randMu sync.Mutex
	rand   *rand.Rand

	alive  atomic.Bool
	guard  sync.RWMutex // held for writing while alive flips to false
	cycle  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRand fixes the randomness used for synthetic placeholders.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rand = r }
}

func WithSinks(sinks ...Sink) Option {
	return func(s *Scheduler) { s.sinks = append(s.sinks, sinks...) }
}

// New creates a Scheduler. It is live immediately so RunCycle can be driven by hand;
// Start adds the periodic trigger.
func New(cfg Config, source QuoteSource, c Cache, registry Registry, broadcaster Broadcaster, logger *zap.Logger, opts ...Option) *Scheduler {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cfg:         cfg,
		source:      source,
		cache:       c,
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger,
		clock:       realClock{},
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.alive.Store(true)
	return s
}

// Start runs one cycle immediately and then one per interval until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("Ingestion scheduler started",
		zap.Int("symbols", len(s.cfg.Symbols)),
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Duration("batch_delay", s.cfg.BatchDelay),
	)
	return nil
}

// Stop cancels the periodic trigger. From this point no cycle writes to the cache or
// broadcasts, even one whose fetch is still in flight.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.guard.Lock()
	s.alive.Store(false)
	s.guard.Unlock()
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Ingestion scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunCycle(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(s.ctx)
		}
	}
}

// RunCycle processes every symbol once, in configured order. Cycles never overlap.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	start := s.clock.Now()
	report := CycleReport{Symbols: len(s.cfg.Symbols)}

	if !s.alive.Load() {
		report.Skipped = true
		return report
	}
	if !s.registry.HasSubscribers() {
		s.logger.Debug("No clients connected, skipping fetch")
		report.Skipped = true
		return report
	}

	symbols := s.cfg.Symbols
	for i := 0; i < len(symbols); i += s.cfg.BatchSize {
		end := min(i+s.cfg.BatchSize, len(symbols))

		for _, symbol := range symbols[i:end] {
			if !s.alive.Load() {
				return report
			}
			s.processSymbol(ctx, symbol, &report)
		}

		if end < len(symbols) && s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return report
			case <-s.clock.After(s.cfg.BatchDelay):
			}
		}
	}

	s.logger.Info("Ingestion cycle complete",
		zap.Int("symbols", report.Symbols),
		zap.Int("cached", report.Cached),
		zap.Int("fetched", report.Fetched),
		zap.Int("stale", report.Stale),
		zap.Int("synthetic", report.Synthetic),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", s.clock.Now().Sub(start)),
	)
	return report
}

func (s *Scheduler) processSymbol(ctx context.Context, symbol string, report *CycleReport) {
	payload, tier := s.resolve(ctx, symbol)

	// Shutdown may have happened while the fetch was in flight.
	var res hub.Result
	if !s.whileAlive(func() { res = s.broadcaster.Broadcast(protocol.Ticker(payload)) }) {
		return
	}

	switch tier {
	case TierCached:
		report.Cached++
	case TierFetched:
		report.Fetched++
	case TierStale:
		report.Stale++
	case TierSynthetic:
		report.Synthetic++
	}
	report.Sent += res.Sent
	report.Failed += res.Failed
}

// whileAlive runs fn only if the scheduler has not been stopped. Stop waits for a
// running fn, so nothing reaches the cache or the subscribers once Stop has returned.
func (s *Scheduler) whileAlive(fn func()) bool {
	s.guard.RLock()
	defer s.guard.RUnlock()
	if !s.alive.Load() {
		return false
	}
	fn()
	return true
}

// resolve applies the fallback chain and returns the payload for symbol with its tier.
func (s *Scheduler) resolve(ctx context.Context, symbol string) (models.Quote, string) {
	entry, fresh, found := s.cache.Get(symbol)
	if found && fresh {
		s.logger.Debug("Using cached data", zap.String("symbol", symbol))
		return entry.Quote, TierCached
	}

	q, err := s.source.Fetch(ctx, symbol)
	if err == nil {
		err = q.Validate()
	}
	if err == nil {
		stored := s.whileAlive(func() {
			if perr := s.cache.Put(q); perr != nil {
				s.logger.Warn("Cache rejected quote", zap.String("symbol", symbol), zap.Error(perr))
			}
		})
		if stored {
			s.record(ctx, q)
		}
		return q, TierFetched
	}

	s.logger.Warn("Quote fetch failed",
		zap.String("symbol", symbol),
		zap.Stringer("kind", quotesource.KindOf(err)),
		zap.Error(err),
	)

	if found {
		s.logger.Debug("Using expired cache due to fetch failure", zap.String("symbol", symbol))
		return entry.Quote, TierStale
	}
	return s.synthetic(symbol), TierSynthetic
}

// synthetic fabricates a placeholder so a subscriber never sees a symbol without data.
func (s *Scheduler) synthetic(symbol string) models.Quote {
	s.randMu.Lock()
	price := syntheticBase + s.rand.Float64()*syntheticRange
	s.randMu.Unlock()

	return models.Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: s.clock.Now().UnixMilli(),
		Synthetic: true,
	}
}

func (s *Scheduler) record(ctx context.Context, q models.Quote) {
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, q); err != nil {
			s.logger.Warn("Journal write failed", zap.String("symbol", q.Symbol), zap.Error(err))
		}
	}
}
