package generator

import (
	"math/rand"
	"time"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
}

// for deterministic values
type Rand interface {
	Float64() float64
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }

// DefaultBasePrices seeds the walk for the default watchlist. Other symbols start at 100.
var DefaultBasePrices = map[string]float64{
	"AAPL":         190.0,
	"MSFT":         410.0,
	"GOOGL":        140.0,
	"AMZN":         175.0,
	"META":         480.0,
	"RELIANCE.BSE": 2950.0,
	"TCS.BSE":      3900.0,
	"INFY.BSE":     1540.0,
}

const defaultBasePrice = 100.0
