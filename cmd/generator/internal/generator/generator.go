package generator

import (
	"sync"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

const (
	// maxStep bounds each move to ±1% of the previous price.
	maxStep = 0.01
	// floorRatio keeps the walk from drifting to zero.
	floorRatio = 0.5
)

// PriceWalker produces a bounded random walk per symbol, starting from its base price.
type PriceWalker struct {
	mu         sync.Mutex
	basePrices map[string]float64
	last       map[string]float64
	volume     map[string]float64
	rand       Rand
	clock      Clock
}

func NewPriceWalker(basePrices map[string]float64, rnd Rand, clock Clock) *PriceWalker {
	return &PriceWalker{
		basePrices: basePrices,
		last:       make(map[string]float64),
		volume:     make(map[string]float64),
		rand:       rnd,
		clock:      clock,
	}
}

func (w *PriceWalker) base(symbol string) float64 {
	if p, ok := w.basePrices[symbol]; ok && p > 0 {
		return p
	}
	return defaultBasePrice
}

// Next advances symbol by one step and returns the new quote. Open is the base price;
// High and Low track the extremes seen so far.
func (w *PriceWalker) Next(symbol string) models.Quote {
	w.mu.Lock()
	defer w.mu.Unlock()

	base := w.base(symbol)
	prev, ok := w.last[symbol]
	if !ok {
		prev = base
	}

	// rand in [0,1) maps to a move in [-maxStep, +maxStep).
	move := (w.rand.Float64()*2 - 1) * maxStep
	price := prev * (1 + move)
	if floor := base * floorRatio; price < floor {
		price = floor
	}
	w.last[symbol] = price
	w.volume[symbol] += float64(int(w.rand.Float64()*1000) + 1)

	high, low := max(base, price), min(base, price)
	return models.Quote{
		Symbol:    symbol,
		Price:     price,
		Open:      models.Float(base),
		High:      models.Float(high),
		Low:       models.Float(low),
		Volume:    models.Float(w.volume[symbol]),
		Timestamp: w.clock.Now().UnixMilli(),
	}
}
