package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

const (
	TypeWelcome      = "welcome"
	TypeTicker       = "ticker"
	TypeNotification = "notification"
)

// Message is the push envelope. Type selects which of the other fields is meaningful:
// welcome carries TS, ticker and notification carry Payload.
type Message struct {
	Type    string `json:"type"`
	TS      int64  `json:"ts,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type Notification struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	TS      int64  `json:"ts"`
}

func Welcome(ts int64) Message {
	return Message{Type: TypeWelcome, TS: ts}
}

func Ticker(q models.Quote) Message {
	return Message{Type: TypeTicker, Payload: q}
}

func NewNotification(title, message string, ts int64) Message {
	return Message{Type: TypeNotification, Payload: Notification{Title: title, Message: message, TS: ts}}
}

// Envelope is the receive side of Message. Payload stays raw until the tag is known.
type Envelope struct {
	Type    string          `json:"type"`
	TS      int64           `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses an envelope without interpreting its payload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// Quote decodes a ticker payload.
func (e Envelope) Quote() (models.Quote, error) {
	var q models.Quote
	if len(e.Payload) == 0 {
		return q, fmt.Errorf("ticker without payload")
	}
	if err := json.Unmarshal(e.Payload, &q); err != nil {
		return q, fmt.Errorf("decode ticker payload: %w", err)
	}
	return q, nil
}

// Notification decodes a notification payload.
func (e Envelope) Notification() (Notification, error) {
	var n Notification
	if len(e.Payload) == 0 {
		return n, fmt.Errorf("notification without payload")
	}
	if err := json.Unmarshal(e.Payload, &n); err != nil {
		return n, fmt.Errorf("decode notification payload: %w", err)
	}
	return n, nil
}
