package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shubham-shewale/watchlist-stream/cmd/watcher/internal/stream"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
	"github.com/shubham-shewale/watchlist-stream/pkg/protocol"
)

// MockConn replays Frames and then reports EndErr. With Block set it waits for Close
// instead of ending on its own.
type MockConn struct {
	Frames [][]byte
	EndErr error
	Block  bool

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
	Closes int
}

func NewMockConn(frames ...[]byte) *MockConn {
	return &MockConn{Frames: frames, closed: make(chan struct{})}
}

func (c *MockConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	if len(c.Frames) > 0 {
		f := c.Frames[0]
		c.Frames = c.Frames[1:]
		c.mu.Unlock()
		return f, nil
	}
	block := c.Block
	c.mu.Unlock()

	if block {
		<-c.closed
	}
	if c.EndErr != nil {
		return nil, c.EndErr
	}
	return nil, stream.ErrTransportClosed
}

func (c *MockConn) Close() error {
	c.mu.Lock()
	c.Closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *MockConn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Closes
}

// MockDialer hands out Conns in order. A nil entry, or running out of entries, is a
// failed dial.
type MockDialer struct {
	Conns []*MockConn
	mu    sync.Mutex
	Calls int
}

var ErrDialRefused = errors.New("connection refused")

func (d *MockDialer) Dial(ctx context.Context, url string) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.Calls
	d.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i >= len(d.Conns) || d.Conns[i] == nil {
		return nil, ErrDialRefused
	}
	return d.Conns[i], nil
}

func (d *MockDialer) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls
}

// FakeClock fires immediately and records every requested delay.
type FakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// Frame marshals a push message the way the gateway does.
func Frame(msg protocol.Message) []byte {
	b, _ := json.Marshal(msg)
	return b
}

func TickerFrame(symbol string, price float64, ts int64) []byte {
	return Frame(protocol.Ticker(models.Quote{Symbol: symbol, Price: price, Timestamp: ts}))
}
