package game

import (
	"sync"
	"time"
)

// TickerGen creates the wall clock tickers that drive the lobby. The
// tickers it hands out keep running until Stop.
type TickerGen struct {
	mu      sync.Mutex
	tickers []*time.Ticker
}

func NewTickerGen() *TickerGen {
	return &TickerGen{}
}

func (t *TickerGen) Create(period time.Duration) <-chan time.Time {
	tk := time.NewTicker(period)
	t.mu.Lock()
	t.tickers = append(t.tickers, tk)
	t.mu.Unlock()
	return tk.C
}

func (t *TickerGen) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tk := range t.tickers {
		tk.Stop()
	}
	t.tickers = nil
}
