package memorystore

import (
	"strings"
	"sync"
	"time"
)

// OrderBookStore keeps an append-only history of top-5 order book
// snapshots per symbol. The symbol set is fixed at construction;
// updates for unknown symbols are no-ops.
type OrderBookStore struct {
	mu      sync.Mutex
	history map[string][]BookSnapshot
}

// NewOrderBookStore creates a store for the given symbols.
func NewOrderBookStore(symbols []string) *OrderBookStore {
	history := make(map[string][]BookSnapshot, len(symbols))
	for _, s := range symbols {
		history[strings.ToUpper(s)] = nil
	}
	return &OrderBookStore{history: history}
}

// Update appends a snapshot built from the given sides, keeping at
// most the top 5 levels of each.
func (s *OrderBookStore) Update(symbol string, ts time.Time, bids, asks []BookLevel) {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.history[symbol]; !ok {
		return
	}

	s.history[symbol] = append(s.history[symbol], BookSnapshot{
		Symbol: symbol,
		Time:   ts,
		Bids:   topLevels(bids),
		Asks:   topLevels(asks),
	})
}

// Latest returns a copy of the most recent snapshot for a symbol.
func (s *OrderBookStore) Latest(symbol string) (BookSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[strings.ToUpper(symbol)]
	if len(h) == 0 {
		return BookSnapshot{}, false
	}
	snap := h[len(h)-1]
	snap.Bids = append([]BookLevel(nil), snap.Bids...)
	snap.Asks = append([]BookLevel(nil), snap.Asks...)
	return snap, true
}

// Len returns the number of snapshots recorded for a symbol.
func (s *OrderBookStore) Len(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history[strings.ToUpper(symbol)])
}

// topLevels copies at most the first five levels of a side.
func topLevels(levels []BookLevel) []BookLevel {
	n := len(levels)
	if n > 5 {
		n = 5
	}
	out := make([]BookLevel, n)
	copy(out, levels[:n])
	return out
}
