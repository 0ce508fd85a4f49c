package stream

import (
	"encoding/json"
	"time"

	"cryptomonitor/internal/binance/memorystore"
)

// envelope is the combined-stream wrapper: {"stream": "...", "data": {...}}.
// Flat event objects arrive without the wrapper and are tagged by "e".
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// payload is the union of fields across trade and depth events.
// Trade events (e == "trade") carry T/p/q; depth5 events carry
// bids/asks and, when present, the event time E.
type payload struct {
	EventType string     `json:"e"` // "trade", "depthUpdate", or absent for depth5 partials
	Symbol    string     `json:"s"` // present on flat events only
	EventTime int64      `json:"E"` // ms epoch, optional
	TradeTime int64      `json:"T"` // ms epoch (trade events)
	Price     string     `json:"p"` // trade price
	Quantity  string     `json:"q"` // trade quantity
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
}

// Event is the tagged variant produced at the connector boundary.
// Concrete types: TradeEvent, DepthEvent, UnknownEvent.
type Event interface {
	EventSymbol() string
}

// TradeEvent is a single executed trade.
type TradeEvent struct {
	Symbol string
	Price  float64
	Volume float64
	Time   time.Time
}

func (e TradeEvent) EventSymbol() string { return e.Symbol }

// DepthEvent is a top-5 order book update.
type DepthEvent struct {
	Symbol string
	Time   time.Time
	Bids   []memorystore.BookLevel
	Asks   []memorystore.BookLevel
}

func (e DepthEvent) EventSymbol() string { return e.Symbol }

// UnknownEvent is anything the decoder could not classify, such as
// subscription acknowledgements.
type UnknownEvent struct {
	Symbol string
}

func (e UnknownEvent) EventSymbol() string { return e.Symbol }
