package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidQuote = errors.New("invalid quote")

// Quote is one price observation for an exchange-qualified symbol (e.g. "RELIANCE.BSE").
// Open, High, Low and Volume are optional: nil means the provider did not report them.
type Quote struct {
	Symbol    string   `json:"symbol"`
	Price     float64  `json:"price"`
	Open      *float64 `json:"open,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Timestamp int64    `json:"ts"` // unix milli, fetch time
	Synthetic bool     `json:"synthetic,omitempty"`
}

// Validate checks the only hard invariant of a quote: a symbol and a finite, positive price.
func (q Quote) Validate() error {
	if q.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidQuote)
	}
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) || q.Price <= 0 {
		return fmt.Errorf("%w: %s price %v", ErrInvalidQuote, q.Symbol, q.Price)
	}
	return nil
}

// Time returns the fetch time as a time.Time.
func (q Quote) Time() time.Time {
	return time.UnixMilli(q.Timestamp)
}

// Float returns a pointer to v, for filling optional quote fields.
func Float(v float64) *float64 {
	return &v
}
