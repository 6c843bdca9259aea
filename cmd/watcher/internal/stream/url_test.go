package stream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shubham-shewale/watchlist-stream/cmd/watcher/internal/stream"
)

func TestNormalizeURL(t *testing.T) {
	const fallback = "ws://localhost:4000/ws"

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty uses fallback", "", fallback},
		{"blank uses fallback", "   ", fallback},
		{"ws kept", "ws://example.com/ws", "ws://example.com/ws"},
		{"wss kept", "wss://example.com/ws", "wss://example.com/ws"},
		{"http to ws", "http://example.com/ws", "ws://example.com/ws"},
		{"https to wss", "https://example.com/ws", "wss://example.com/ws"},
		{"bare localhost", "localhost:4000/ws", "ws://localhost:4000/ws"},
		{"bare loopback", "127.0.0.1:4000/ws", "ws://127.0.0.1:4000/ws"},
		{"bare host", "feed.example.com/ws", "wss://feed.example.com/ws"},
		{"doubled secure scheme", "wss://https://feed.example.com/ws", "wss://feed.example.com/ws"},
		{"doubled plain scheme", "ws://http://localhost:4000/ws", "ws://localhost:4000/ws"},
		{"trimmed", "  https://example.com/ws ", "wss://example.com/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stream.NormalizeURL(tt.raw, fallback))
		})
	}
}
