package memorystore

import (
	"strings"
	"sync"
	"time"
)

// TradeLedger keeps a bounded ring buffer of recent trades per symbol,
// the last traded price, and an edge-triggered "trade occurred since the
// last depth update" flag. The symbol set is fixed at construction;
// trades for unknown symbols are no-ops.
type TradeLedger struct {
	mu        sync.Mutex
	maxTrades int
	books     map[string]*symbolTrades
}

type symbolTrades struct {
	trades    []Trade // ring buffer, start+count
	start     int
	count     int
	lastPrice float64
	hasLast   bool
	occurred  bool
}

// NewTradeLedger creates a ledger for the given symbols, holding at
// most maxTrades entries per symbol. A non-positive maxTrades is
// clamped to 1 so the ring buffer arithmetic stays valid.
func NewTradeLedger(symbols []string, maxTrades int) *TradeLedger {
	if maxTrades < 1 {
		maxTrades = 1
	}
	books := make(map[string]*symbolTrades, len(symbols))
	for _, s := range symbols {
		books[strings.ToUpper(s)] = &symbolTrades{
			trades: make([]Trade, maxTrades),
		}
	}
	return &TradeLedger{
		maxTrades: maxTrades,
		books:     books,
	}
}

// AddTrade appends a trade, evicting the oldest entry past capacity,
// updates the last price and sets the trade-occurred flag. It returns
// true once the buffer is at capacity, signalling the export
// collaborator to drain it. Unknown symbols return false.
func (l *TradeLedger) AddTrade(symbol string, price, volume float64, ts time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.books[strings.ToUpper(symbol)]
	if !ok {
		return false
	}

	idx := (st.start + st.count) % l.maxTrades
	st.trades[idx] = Trade{Symbol: strings.ToUpper(symbol), Price: price, Volume: volume, Time: ts}
	if st.count < l.maxTrades {
		st.count++
	} else {
		st.start = (st.start + 1) % l.maxTrades
	}

	st.lastPrice = price
	st.hasLast = true
	st.occurred = true

	return st.count >= l.maxTrades
}

// Trades returns a snapshot copy of the buffered trades, oldest first.
func (l *TradeLedger) Trades(symbol string) []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.books[strings.ToUpper(symbol)]
	if !ok {
		return nil
	}
	return st.copyTrades(l.maxTrades)
}

// LastTrade returns the most recent trade for a symbol.
func (l *TradeLedger) LastTrade(symbol string) (Trade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.books[strings.ToUpper(symbol)]
	if !ok || st.count == 0 {
		return Trade{}, false
	}
	idx := (st.start + st.count - 1) % l.maxTrades
	return st.trades[idx], true
}

// LastPrice returns the most recent trade price for a symbol. The
// second return value is false until the first trade arrives.
func (l *TradeLedger) LastPrice(symbol string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.books[strings.ToUpper(symbol)]
	if !ok {
		return 0, false
	}
	return st.lastPrice, st.hasLast
}

// ConsumeTradeFlag atomically reads and clears the trade-occurred flag.
// Each trade arms the flag once; the next depth update consumes it.
func (l *TradeLedger) ConsumeTradeFlag(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.books[strings.ToUpper(symbol)]
	if !ok {
		return false
	}
	occurred := st.occurred
	st.occurred = false
	return occurred
}

// Drain atomically removes and returns all buffered trades, oldest
// first. The last price and trade flag are left untouched.
func (l *TradeLedger) Drain(symbol string) []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.books[strings.ToUpper(symbol)]
	if !ok {
		return nil
	}
	out := st.copyTrades(l.maxTrades)
	st.start = 0
	st.count = 0
	return out
}

// Symbols returns the fixed symbol set (upper-cased).
func (l *TradeLedger) Symbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.books))
	for s := range l.books {
		out = append(out, s)
	}
	return out
}

func (st *symbolTrades) copyTrades(capacity int) []Trade {
	if st.count == 0 {
		return []Trade{}
	}
	out := make([]Trade, st.count)
	for i := 0; i < st.count; i++ {
		out[i] = st.trades[(st.start+i)%capacity]
	}
	return out
}
