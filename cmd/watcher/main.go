package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/watcher/internal/stream"
	"github.com/shubham-shewale/watchlist-stream/pkg/config"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
	"github.com/shubham-shewale/watchlist-stream/pkg/protocol"
)

const defaultURL = "ws://localhost:4000/ws"

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

	url := stream.NormalizeURL(cfg.Stream.URL, defaultURL)

	s := stream.New(stream.Config{
		URL:         url,
		BufferSize:  cfg.Stream.BufferSize,
		BaseDelay:   cfg.Stream.ReconnectBase,
		MaxDelay:    cfg.Stream.ReconnectMax,
		MaxAttempts: cfg.Stream.MaxReconnectTries,
	}, stream.NewWebsocketDialer(),
		stream.WithLogger(logger.Named("stream")),
		stream.OnStateChange(func(st stream.State) {
			logger.Info("Connection status", zap.Stringer("state", st))
		}),
		stream.OnWelcome(func(ts int64) {
			logger.Info("Connected to market data", zap.Time("server_time", time.UnixMilli(ts)))
		}),
		stream.OnTicker(printTick),
		stream.OnNotification(func(n protocol.Notification) {
			fmt.Printf("%s  ** %s %s\n", time.UnixMilli(n.TS).Format(time.TimeOnly), n.Title, n.Message)
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logger.Info("Watcher Started", zap.String("url", url))
	if err := s.Run(ctx); err != nil {
		if errors.Is(err, stream.ErrReconnectExhausted) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		logger.Error("Watcher stopped", zap.Error(err), zap.Int("buffered_ticks", s.Buffer().Len()))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Watcher exited cleanly", zap.Int("buffered_ticks", s.Buffer().Len()))
}

func printTick(q models.Quote) {
	marker := ""
	if q.Synthetic {
		marker = " (placeholder)"
	}
	fmt.Printf("%s  %-14s %12.4f%s\n", q.Time().Format(time.TimeOnly), q.Symbol, q.Price, marker)
}
