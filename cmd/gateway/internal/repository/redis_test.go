package repository_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

func newStore(t *testing.T) (*repository.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := repository.NewRedisStore(rdb, zap.NewNop())
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_RecordThenGetSnapshots(t *testing.T) {
	store, mr := newStore(t)
	q := models.Quote{Symbol: "AAPL", Price: 150.25, Open: models.Float(149), Timestamp: 1700000000000}

	if err := store.Record(t.Context(), q); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	raw, err := mr.Get("stock:AAPL")
	if err != nil {
		t.Fatalf("Key not written: %v", err)
	}
	var stored models.Quote
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("Stored value is not JSON: %v", err)
	}
	if stored.Price != 150.25 {
		t.Errorf("Expected price 150.25, got %v", stored.Price)
	}
	if ttl := mr.TTL("stock:AAPL"); ttl != time.Hour {
		t.Errorf("Expected 1h TTL, got %v", ttl)
	}

	quotes, err := store.GetSnapshots(t.Context(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("GetSnapshots failed: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Symbol != "AAPL" {
		t.Fatalf("Expected only AAPL, got %+v", quotes)
	}
	if quotes[0].Open == nil || *quotes[0].Open != 149 {
		t.Errorf("Expected open 149 to survive the round trip, got %v", quotes[0].Open)
	}
}

func TestRedisStore_GetSnapshots_SkipsBadEntries(t *testing.T) {
	store, mr := newStore(t)
	mr.Set("stock:AAPL", `{broken`)
	mr.Set("stock:MSFT", `{"symbol":"MSFT","price":0,"ts":1}`)
	mr.Set("stock:TCS.BSE", `{"symbol":"TCS.BSE","price":3900.5,"ts":1}`)
	mr.Set("stock:META", `{"symbol":"META","price":300,"ts":1,"synthetic":true}`)

	quotes, err := store.GetSnapshots(t.Context(), []string{"AAPL", "MSFT", "TCS.BSE", "META"})
	if err != nil {
		t.Fatalf("GetSnapshots failed: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Symbol != "TCS.BSE" {
		t.Errorf("Expected only TCS.BSE, got %+v", quotes)
	}
}

func TestRedisStore_GetSnapshots_NoSymbols(t *testing.T) {
	store, _ := newStore(t)

	quotes, err := store.GetSnapshots(t.Context(), nil)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("Expected no quotes, got %+v", quotes)
	}
}

func TestRedisStore_RecordPublishes(t *testing.T) {
	store, mr := newStore(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := rdb.Subscribe(t.Context(), "prices.AAPL")
	defer sub.Close()
	if _, err := sub.Receive(t.Context()); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := store.Record(t.Context(), models.Quote{Symbol: "AAPL", Price: 151, Timestamp: 2}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if !strings.Contains(msg.Payload, `"price":151`) {
			t.Errorf("Unexpected payload: %s", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected publish on prices.AAPL")
	}
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	if _, err := store.GetSnapshots(t.Context(), []string{"AAPL"}); err == nil {
		t.Error("Expected GetSnapshots error with Redis down")
	}
	if err := store.Record(t.Context(), models.Quote{Symbol: "AAPL", Price: 1, Timestamp: 1}); err == nil {
		t.Error("Expected Record error with Redis down")
	}
}
