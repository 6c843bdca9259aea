package stream

import "errors"

var (
	// ErrTransportClosed means the connection ended normally or the peer went away.
	ErrTransportClosed = errors.New("transport closed")
	// ErrTransportError means the connection could not be made or broke mid-stream.
	ErrTransportError = errors.New("transport error")
	// ErrReconnectExhausted is the one failure surfaced to the user.
	ErrReconnectExhausted = errors.New("unable to connect to market data")
)
