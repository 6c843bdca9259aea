package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/api"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/journal"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/pipeline"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/quotesource"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/scheduler"
	"github.com/shubham-shewale/watchlist-stream/pkg/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	if cfg.Market.APIKey == "" {
		logger.Warn("No market API key configured, every fetch will fail and subscribers get fallback data")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := quotesource.New(cfg.Market.APIKey,
		quotesource.WithBaseURL(cfg.Market.BaseURL),
		quotesource.WithTimeout(cfg.Market.FetchTimeout),
		quotesource.WithBatchDelay(cfg.Market.BatchCallDelay),
		quotesource.WithLogger(logger.Named("quotesource")),
	)

	var sinks []scheduler.Sink
	var store *repository.RedisStore

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, starting cold", zap.Error(err))
			rdb.Close()
		} else {
			store = repository.NewRedisStore(rdb, logger.Named("repository"))
			defer store.Close()
		}
	}

	if cfg.Kafka.Enabled {
		creator := journal.NewTopicCreator(logger.Named("journal"), &journal.KafkaDialer{Dialer: &kafka.Dialer{Timeout: 5 * time.Second}}, nil)
		if err := creator.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			logger.Warn("Tick journal topic not ready", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
		}
		publisher := journal.NewPublisher(journal.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger.Named("journal"))
		defer publisher.Close()
		sinks = append(sinks, publisher)
	} else if store != nil {
		// Without the journal and processor, the gateway keeps the snapshot store current itself.
		sinks = append(sinks, store)
	}

	schedCfg := scheduler.Config{
		Symbols:    cfg.Market.Symbols,
		Interval:   cfg.Scheduler.Interval,
		BatchSize:  cfg.Scheduler.BatchSize,
		BatchDelay: cfg.Scheduler.BatchDelay,
	}
	p := pipeline.New(schedCfg, cfg.Scheduler.CacheTTL, source, logger,
		pipeline.WithSchedulerOptions(scheduler.WithSinks(sinks...)),
	)

	if store != nil {
		quotes, err := store.GetSnapshots(ctx, cfg.Market.Symbols)
		if err != nil {
			logger.Warn("Warm start failed", zap.Error(err))
		} else {
			logger.Info("Warm start", zap.Int("restored", p.Warm(quotes)))
		}
	}

	if !cfg.Logger.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.App.Port,
		Handler:           api.NewRouter(api.NewHandler(p, logger.Named("api"))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.Strings("symbols", cfg.Market.Symbols))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return p.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stop ingestion and close subscribers before the listener so no cycle
		// broadcasts into half-closed connections.
		perr := p.Shutdown(shutdownCtx)
		serr := srv.Shutdown(shutdownCtx)
		return errors.Join(perr, serr)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Gateway stopped with error", zap.Error(err))
		return
	}
	logger.Info("Shutdown Complete")
}
