package testutils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/quotesource"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
	"github.com/shubham-shewale/watchlist-stream/pkg/protocol"
)

var ErrMockSend = errors.New("mock send failure")

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal      string
	RawBytes   []string // Stores raw frames in arrival order
	FailSends  int      // Number of upcoming sends that fail; -1 fails forever
	CloseCount int
	Mu         sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

// NewBrokenClient returns a client whose every send fails.
func NewBrokenClient(id string) *MockClient {
	return &MockClient{IDVal: id, FailSends: -1}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CloseCount++
}

func (m *MockClient) SendBytes(b []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.FailSends != 0 {
		if m.FailSends > 0 {
			m.FailSends--
		}
		return ErrMockSend
	}
	m.RawBytes = append(m.RawBytes, string(b))
	return nil
}

func (m *MockClient) Closed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CloseCount > 0
}

// Envelopes decodes every frame received so far.
func (m *MockClient) Envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	m.Mu.Lock()
	defer m.Mu.Unlock()

	out := make([]protocol.Envelope, 0, len(m.RawBytes))
	for _, raw := range m.RawBytes {
		env, err := protocol.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("client %s received undecodable frame %q: %v", m.IDVal, raw, err)
		}
		out = append(out, env)
	}
	return out
}

// Tickers returns the quotes of every ticker frame received so far.
func (m *MockClient) Tickers(t *testing.T) []models.Quote {
	t.Helper()
	var quotes []models.Quote
	for _, env := range m.Envelopes(t) {
		if env.Type != protocol.TypeTicker {
			continue
		}
		q, err := env.Quote()
		if err != nil {
			t.Fatalf("bad ticker payload: %v", err)
		}
		quotes = append(quotes, q)
	}
	return quotes
}

// FakeClock is a manually driven clock. After never blocks: it records the requested
// wait, advances time by it and fires immediately.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)

	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// MockQuoteSource answers fetches from canned results and records every call.
type MockQuoteSource struct {
	Quotes   map[string]models.Quote
	Failures map[string]quotesource.Kind
	Calls    []string
	Mu       sync.Mutex
}

func NewMockQuoteSource() *MockQuoteSource {
	return &MockQuoteSource{
		Quotes:   make(map[string]models.Quote),
		Failures: make(map[string]quotesource.Kind),
	}
}

func (m *MockQuoteSource) Fetch(ctx context.Context, symbol string) (models.Quote, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls = append(m.Calls, symbol)

	if kind, ok := m.Failures[symbol]; ok {
		return models.Quote{}, &quotesource.FetchError{Kind: kind, Symbol: symbol, Err: errors.New("mock failure")}
	}
	if q, ok := m.Quotes[symbol]; ok {
		return q, nil
	}
	return models.Quote{}, &quotesource.FetchError{Kind: quotesource.KindUpstreamError, Symbol: symbol, Err: errors.New("unknown symbol")}
}

func (m *MockQuoteSource) CallCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Calls)
}

// MockSink records journaled quotes.
type MockSink struct {
	Records    []models.Quote
	ShouldFail bool
	Mu         sync.Mutex
}

func (m *MockSink) Record(ctx context.Context, q models.Quote) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("sink error")
	}
	m.Records = append(m.Records, q)
	return nil
}
