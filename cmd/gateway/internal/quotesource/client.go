package quotesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

const (
	DefaultBaseURL    = "https://www.alphavantage.co/query"
	DefaultTimeout    = 10 * time.Second
	DefaultBatchDelay = 200 * time.Millisecond

	maxBodySize = 1 << 20
)

// HTTPClient is the subset of *http.Client the source needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clock lets tests skip the inter-call delay of FetchBatch.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Client fetches one symbol per request from the upstream provider. It keeps no state
// between calls: no cache, no retries, no knowledge of subscribers.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
	timeout    time.Duration
	batchDelay time.Duration
	logger     *zap.Logger
	clock      Clock
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout bounds each request; it applies on top of the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithBatchDelay(d time.Duration) Option {
	return func(c *Client) { c.batchDelay = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// New creates a Client. An empty apiKey is accepted: such a client fails every fetch
// with ErrMissingAPIKey instead of calling the provider.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		batchDelay: DefaultBatchDelay,
		logger:     zap.NewNop(),
		clock:      realClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		c.logger.Warn("Quote provider API key not set, every fetch will fail")
	}
	return c
}

// Fetch returns the current quote for symbol or a *FetchError.
func (c *Client) Fetch(ctx context.Context, symbol string) (models.Quote, error) {
	if c.apiKey == "" {
		return models.Quote{}, newError(KindUpstreamError, symbol, ErrMissingAPIKey)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", symbol)
	query.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return models.Quote{}, newError(KindUpstreamError, symbol, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Quote{}, classifyTransport(symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return models.Quote{}, classifyTransport(symbol, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.Quote{}, newError(KindRateLimited, symbol, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Quote{}, newError(KindUpstreamError, symbol, fmt.Errorf("status %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return models.Quote{}, newError(KindUpstreamError, symbol, err)
	}
	if env.throttled() {
		msg := env.Note
		if msg == "" {
			msg = env.Information
		}
		return models.Quote{}, newError(KindRateLimited, symbol, errors.New(msg))
	}
	if len(env.GlobalQuote) == 0 {
		reason := "empty quote"
		if env.ErrorMessage != "" {
			reason = env.ErrorMessage
		} else if env.Information != "" {
			reason = env.Information
		}
		return models.Quote{}, newError(KindUpstreamError, symbol, errors.New(reason))
	}

	return c.toQuote(symbol, env.GlobalQuote)
}

func (c *Client) toQuote(symbol string, fields map[string]string) (models.Quote, error) {
	raw, ok := fields[fieldPrice]
	if !ok {
		return models.Quote{}, newError(KindUpstreamError, symbol, fmt.Errorf("envelope has no %q", fieldPrice))
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return models.Quote{}, newError(KindInvalidData, symbol, fmt.Errorf("price %q", raw))
	}

	q := models.Quote{
		Symbol:    symbol,
		Price:     price,
		Open:      parseOptional(fields, fieldOpen),
		High:      parseOptional(fields, fieldHigh),
		Low:       parseOptional(fields, fieldLow),
		Volume:    parseOptional(fields, fieldVolume),
		Timestamp: c.clock.Now().UnixMilli(),
	}
	if err := q.Validate(); err != nil {
		return models.Quote{}, newError(KindInvalidData, symbol, err)
	}
	return q, nil
}

// FetchBatch fetches symbols one at a time with a fixed delay between calls, which keeps
// the provider's per-minute ceiling without a shared limiter. Failed symbols are logged
// and left out; a cancelled context ends the batch early with what was collected.
func (c *Client) FetchBatch(ctx context.Context, symbols []string) []models.Quote {
	quotes := make([]models.Quote, 0, len(symbols))

	for i, symbol := range symbols {
		if ctx.Err() != nil {
			return quotes
		}
		q, err := c.Fetch(ctx, symbol)
		if err != nil {
			c.logger.Warn("Batch fetch failed", zap.String("symbol", symbol), zap.Stringer("kind", KindOf(err)), zap.Error(err))
		} else {
			quotes = append(quotes, q)
		}

		if i == len(symbols)-1 || c.batchDelay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return quotes
		case <-c.clock.After(c.batchDelay):
		}
	}
	return quotes
}
