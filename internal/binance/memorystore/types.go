package memorystore

import "time"

// Trade is a single executed trade received from the Binance stream.
// Immutable once created.
type Trade struct {
	Symbol string    `json:"symbol"` // Trading pair (e.g., "BTCUSDT")
	Price  float64   `json:"price"`  // Execution price
	Volume float64   `json:"volume"` // Executed quantity
	Time   time.Time `json:"time"`   // Exchange event time
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// BookSnapshot is a top-5 view of both sides of a symbol's order book
// at a point in time. Bids and asks are ordered best-first. Immutable
// once created.
type BookSnapshot struct {
	Symbol string      `json:"symbol"`
	Time   time.Time   `json:"time"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}
