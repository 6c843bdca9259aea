package quotesource

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindRateLimited
	KindUpstreamError
	KindInvalidData
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstreamError:
		return "upstream_error"
	case KindInvalidData:
		return "invalid_data"
	default:
		return "unknown"
	}
}

var ErrMissingAPIKey = errors.New("quote provider api key is not configured")

// FetchError is returned for every failed fetch.
type FetchError struct {
	Kind   Kind
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func newError(kind Kind, symbol string, err error) *FetchError {
	return &FetchError{Kind: kind, Symbol: symbol, Err: err}
}

// classifyTransport maps an http.Client error to Timeout or UpstreamError.
func classifyTransport(symbol string, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, symbol, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, symbol, err)
	}
	return newError(KindUpstreamError, symbol, err)
}
