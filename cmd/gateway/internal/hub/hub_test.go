package hub_test

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/cache"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
	"github.com/shubham-shewale/watchlist-stream/pkg/protocol"
)

func setup() (*hub.Hub, *cache.SnapshotCache) {
	c := cache.New(5 * time.Second)
	return hub.NewHub(c, zap.NewNop()), c
}

func TestHub_Register_SendsWelcomeThenSnapshot(t *testing.T) {
	h, c := setup()
	c.Put(models.Quote{Symbol: "AAPL", Price: 150, Timestamp: 1})
	c.Put(models.Quote{Symbol: "MSFT", Price: 300, Timestamp: 2})

	client := testutils.NewMockClient("c1")
	if err := h.Register(client); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	envs := client.Envelopes(t)
	if len(envs) != 3 {
		t.Fatalf("Expected welcome + 2 tickers, got %d frames", len(envs))
	}
	if envs[0].Type != protocol.TypeWelcome || envs[0].TS == 0 {
		t.Errorf("Expected welcome with ts first, got %+v", envs[0])
	}

	tickers := client.Tickers(t)
	if tickers[0].Symbol != "AAPL" || tickers[1].Symbol != "MSFT" {
		t.Errorf("Unexpected snapshot order: %+v", tickers)
	}
	if h.Count() != 1 {
		t.Errorf("Expected 1 registered client, got %d", h.Count())
	}
}

// racingSnapshot starts a concurrent cycle (put + broadcast of a newer price) right after
// the snapshot is read, then gives it time to run before the snapshot is delivered.
type racingSnapshot struct {
	cache *cache.SnapshotCache
	hub   *hub.Hub
	done  chan struct{}
}

func (r *racingSnapshot) SnapshotAll() []cache.Entry {
	entries := r.cache.SnapshotAll()
	go func() {
		defer close(r.done)
		newer := models.Quote{Symbol: "AAPL", Price: 200, Timestamp: 2}
		r.cache.Put(newer)
		r.hub.Broadcast(protocol.Ticker(newer))
	}()
	time.Sleep(50 * time.Millisecond)
	return entries
}

func TestHub_Register_SnapshotNotOvertakenByBroadcast(t *testing.T) {
	c := cache.New(5 * time.Second)
	src := &racingSnapshot{cache: c, done: make(chan struct{})}
	h := hub.NewHub(src, zap.NewNop())
	src.hub = h
	c.Put(models.Quote{Symbol: "AAPL", Price: 150, Timestamp: 1})

	client := testutils.NewMockClient("late")
	if err := h.Register(client); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	select {
	case <-src.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Concurrent broadcast never completed")
	}

	envs := client.Envelopes(t)
	if len(envs) == 0 || envs[0].Type != protocol.TypeWelcome {
		t.Fatalf("Expected welcome first, got %+v", envs)
	}
	tickers := client.Tickers(t)
	if len(tickers) != 2 || tickers[0].Price != 150 || tickers[1].Price != 200 {
		t.Errorf("Expected snapshot 150 then broadcast 200, got %+v", tickers)
	}
}

func TestHub_Register_EmptyCacheSendsOnlyWelcome(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	h.Register(client)

	if envs := client.Envelopes(t); len(envs) != 1 || envs[0].Type != protocol.TypeWelcome {
		t.Errorf("Expected only a welcome, got %+v", envs)
	}
}

func TestHub_Register_BrokenClientIsDropped(t *testing.T) {
	h, _ := setup()
	client := testutils.NewBrokenClient("c1")

	if err := h.Register(client); err == nil {
		t.Error("Expected error when welcome cannot be delivered")
	}
	if !h.IsEmpty() {
		t.Error("Client that cannot receive the welcome must not stay registered")
	}
	if client.CloseCount != 1 {
		t.Errorf("Expected client closed once, got %d", client.CloseCount)
	}
}

func TestHub_Broadcast_IsolatesFailures(t *testing.T) {
	h, _ := setup()
	ok1 := testutils.NewMockClient("ok-1")
	ok2 := testutils.NewMockClient("ok-2")
	h.Register(ok1)
	h.Register(ok2)

	broken := testutils.NewMockClient("broken")
	h.Register(broken)
	broken.Mu.Lock()
	broken.FailSends = -1
	broken.Mu.Unlock()

	res := h.Broadcast(protocol.Ticker(models.Quote{Symbol: "AAPL", Price: 151, Timestamp: 10}))

	if res.Sent != 2 || res.Failed != 1 {
		t.Errorf("Expected 2 sent / 1 failed, got %+v", res)
	}
	for _, c := range []*testutils.MockClient{ok1, ok2} {
		if tickers := c.Tickers(t); len(tickers) != 1 || tickers[0].Price != 151 {
			t.Errorf("Client %s missed the broadcast: %+v", c.IDVal, tickers)
		}
	}
	if h.Count() != 2 {
		t.Errorf("Broken client should have been removed, %d clients left", h.Count())
	}
	if !broken.Closed() {
		t.Error("Broken client should have been closed")
	}
}

func TestHub_Broadcast_RetriesOnce(t *testing.T) {
	h, _ := setup()
	flaky := testutils.NewMockClient("flaky")
	h.Register(flaky)
	flaky.Mu.Lock()
	flaky.FailSends = 1
	flaky.Mu.Unlock()

	res := h.Broadcast(protocol.Ticker(models.Quote{Symbol: "AAPL", Price: 151, Timestamp: 10}))

	if res.Sent != 1 || res.Failed != 0 {
		t.Errorf("Expected retry to succeed, got %+v", res)
	}
	if h.Count() != 1 {
		t.Error("A client that succeeds on retry must stay registered")
	}
}

func TestHub_Broadcast_NoClients(t *testing.T) {
	h, _ := setup()

	res := h.Broadcast(protocol.Welcome(1))
	if res.Sent != 0 || res.Failed != 0 {
		t.Errorf("Expected empty result, got %+v", res)
	}
}

func TestHub_Unregister_Idempotent(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")
	h.Register(client)

	if !h.Unregister(client) {
		t.Error("First Unregister should report removal")
	}
	if h.Unregister(client) {
		t.Error("Second Unregister should be a no-op")
	}
	if client.CloseCount != 1 {
		t.Errorf("Expected exactly one Close, got %d", client.CloseCount)
	}
	if !h.IsEmpty() {
		t.Error("Hub should be empty")
	}
}

func TestHub_CloseAll(t *testing.T) {
	h, _ := setup()
	c1 := testutils.NewMockClient("c1")
	c2 := testutils.NewMockClient("c2")
	h.Register(c1)
	h.Register(c2)

	h.CloseAll()

	if !c1.Closed() || !c2.Closed() {
		t.Error("All clients should be closed")
	}
	if h.HasSubscribers() {
		t.Error("Hub should report no subscribers after CloseAll")
	}

	late := testutils.NewMockClient("late")
	if err := h.Register(late); err != hub.ErrHubClosed {
		t.Errorf("Expected ErrHubClosed, got %v", err)
	}
	if !late.Closed() {
		t.Error("Refused client should be closed")
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	// Run with `go test -race ./...`
	h, _ := setup()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		client := testutils.NewMockClient(string(rune('a' + i)))
		wg.Add(3)
		go func() {
			defer wg.Done()
			h.Register(client)
		}()
		go func() {
			defer wg.Done()
			h.Broadcast(protocol.Ticker(models.Quote{Symbol: "AAPL", Price: 1, Timestamp: 1}))
		}()
		go func() {
			defer wg.Done()
			h.Unregister(client)
		}()
	}
	wg.Wait()
}
