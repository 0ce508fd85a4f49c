package sqlstore

import (
	"fmt"
	"time"

	"cryptomonitor/internal/binance/memorystore"
)

// OrderBookRecord is one flattened order-book row: a single price
// level (Ask1..Ask5, Bid1..Bid5) or the synthetic "Last" row carrying
// the most recent trade price. TradeOccurred is the canonical boolean
// form of the per-snapshot trade marker.
type OrderBookRecord struct {
	ID uint `gorm:"primaryKey" json:"-"`

	Timestamp  time.Time `gorm:"not null;index:idx_record_timestamp;index:idx_record_timestamp_symbol" json:"timestamp"`
	Symbol     string    `gorm:"type:text;not null;index:idx_record_symbol;index:idx_record_timestamp_symbol" json:"symbol"`
	OrderLevel string    `gorm:"type:varchar(10);not null;index:idx_record_order_level" json:"order_level"`

	Price  float64 `gorm:"type:numeric;not null" json:"price"`
	Amount float64 `gorm:"type:numeric;not null" json:"amount"`
	Total  float64 `gorm:"type:numeric;not null" json:"total"`

	TradeOccurred bool `gorm:"not null;index:idx_record_trade_occurred" json:"trade_occurred"`

	RecordedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName overrides the default table name for GORM.
func (OrderBookRecord) TableName() string {
	return "order_book_records"
}

// ExpandSnapshot flattens one top-5 snapshot into persistable rows:
// up to 5 asks, one "Last" row (amount fixed at 1.0, only when a last
// trade price is known), and up to 5 bids, in that order.
func ExpandSnapshot(
	symbol string,
	ts time.Time,
	bids, asks []memorystore.BookLevel,
	lastPrice float64,
	lastKnown bool,
	tradeOccurred bool,
) []OrderBookRecord {
	records := make([]OrderBookRecord, 0, 11)

	for i, lvl := range capLevels(asks) {
		records = append(records, OrderBookRecord{
			Timestamp:     ts,
			Symbol:        symbol,
			OrderLevel:    fmt.Sprintf("Ask%d", i+1),
			Price:         lvl.Price,
			Amount:        lvl.Amount,
			Total:         lvl.Price * lvl.Amount,
			TradeOccurred: tradeOccurred,
		})
	}

	if lastKnown {
		const lastAmount = 1.0
		records = append(records, OrderBookRecord{
			Timestamp:     ts,
			Symbol:        symbol,
			OrderLevel:    "Last",
			Price:         lastPrice,
			Amount:        lastAmount,
			Total:         lastPrice * lastAmount,
			TradeOccurred: tradeOccurred,
		})
	}

	for i, lvl := range capLevels(bids) {
		records = append(records, OrderBookRecord{
			Timestamp:     ts,
			Symbol:        symbol,
			OrderLevel:    fmt.Sprintf("Bid%d", i+1),
			Price:         lvl.Price,
			Amount:        lvl.Amount,
			Total:         lvl.Price * lvl.Amount,
			TradeOccurred: tradeOccurred,
		})
	}

	return records
}

func capLevels(levels []memorystore.BookLevel) []memorystore.BookLevel {
	if len(levels) > 5 {
		return levels[:5]
	}
	return levels
}
