package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/generator/internal/generator"
	"github.com/shubham-shewale/watchlist-stream/pkg/config"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize Zap Logger
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 3. Build the price walk
	r := generator.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	walker := generator.NewPriceWalker(generator.DefaultBasePrices, r, generator.RealClock{})

	// 4. Serve the provider API
	if !cfg.Logger.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	sim := generator.NewServer(logger, walker, cfg.Market.Symbols, cfg.Market.APIKey, cfg.Generator.ThrottleEvery)
	srv := &http.Server{
		Addr:              cfg.Generator.Port,
		Handler:           sim.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Generator Started",
			zap.String("port", cfg.Generator.Port),
			zap.Strings("symbols", cfg.Market.Symbols),
			zap.Int("throttle_every", cfg.Generator.ThrottleEvery),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	// 5. Wait for Shutdown Signal
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Generator exited cleanly", zap.Int64("calls", sim.Calls()))
}
