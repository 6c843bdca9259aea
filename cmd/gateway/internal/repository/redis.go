package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

const (
	keyPrefix     = "stock:"
	channelPrefix = "prices."

	// DefaultExpiry matches what the processor writes.
	DefaultExpiry = time.Hour
)

// Compile-time check to ensure RedisStore implements SnapshotStore
var _ SnapshotStore = (*RedisStore)(nil)

// RedisStore keeps one JSON quote per symbol under stock:<SYMBOL> and announces every
// write on prices.<SYMBOL>.
type RedisStore struct {
	client *redis.Client
	expiry time.Duration
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		expiry: DefaultExpiry,
		logger: logger,
	}
}

func Key(symbol string) string     { return keyPrefix + symbol }
func Channel(symbol string) string { return channelPrefix + symbol }

// GetSnapshots fetches the latest stored quote for each symbol (MGET). Missing keys and
// entries that no longer decode to a valid quote are skipped.
func (r *RedisStore) GetSnapshots(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = Key(sym)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget snapshots: %w", err)
	}

	var quotes []models.Quote
	for i, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var q models.Quote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			r.logger.Warn("Corrupt snapshot", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		if err := q.Validate(); err != nil || q.Synthetic {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// Record stores q and publishes it in one pipeline.
func (r *RedisStore) Record(ctx context.Context, q models.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, Key(q.Symbol), payload, r.expiry)
	pipe.Publish(ctx, Channel(q.Symbol), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store %s: %w", q.Symbol, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
