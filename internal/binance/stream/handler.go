package stream

import (
	"strings"
	"time"

	"cryptomonitor/internal/binance/memorystore"

	"go.uber.org/zap"
)

// SnapshotSink receives expanded order-book snapshots for durable
// persistence. lastKnown reports whether lastPrice carries a value.
type SnapshotSink interface {
	EnqueueSnapshot(symbol string, ts time.Time, bids, asks []memorystore.BookLevel,
		lastPrice float64, lastKnown bool, tradeOccurred bool)
}

// TradeExporter drains a full trade buffer into the export artifact.
type TradeExporter interface {
	Export(symbol string, trades []memorystore.Trade) (string, error)
}

// MakeMessageHandler returns the function wired into the WebSocket
// client. It decodes each raw message at the boundary and routes:
// trades to the ledger (draining to the exporter on the capacity
// signal), depth updates to the snapshot store and the durable sink.
// Malformed messages are logged and dropped without touching the
// connection; unknown symbols are silently ignored.
func MakeMessageHandler(
	logger *zap.Logger,
	ledger *memorystore.TradeLedger,
	books *memorystore.OrderBookStore,
	sink SnapshotSink,
	exporter TradeExporter,
	symbols []string,
) func(msg []byte) {
	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		known[strings.ToUpper(s)] = true
	}

	return func(msg []byte) {
		event, err := DecodeMessage(msg, time.Now)
		if err != nil {
			logger.Warn("failed to decode feed message", zap.Error(err))
			return
		}

		if !known[event.EventSymbol()] {
			return // unknown symbol or non-data message (e.g., sub ack)
		}

		switch e := event.(type) {
		case TradeEvent:
			handleTrade(logger, ledger, exporter, e)
		case DepthEvent:
			handleDepth(ledger, books, sink, e)
		}
	}
}

func handleTrade(logger *zap.Logger, ledger *memorystore.TradeLedger, exporter TradeExporter, e TradeEvent) {
	atCapacity := ledger.AddTrade(e.Symbol, e.Price, e.Volume, e.Time)
	if !atCapacity || exporter == nil {
		return
	}

	trades := ledger.Drain(e.Symbol)
	if len(trades) == 0 {
		return
	}
	filename, err := exporter.Export(e.Symbol, trades)
	if err != nil {
		logger.Warn("trade history export failed",
			zap.String("symbol", e.Symbol),
			zap.Error(err),
		)
		return
	}
	logger.Info("trade history exported",
		zap.String("symbol", e.Symbol),
		zap.String("file", filename),
		zap.Int("trades", len(trades)),
	)
}

func handleDepth(ledger *memorystore.TradeLedger, books *memorystore.OrderBookStore, sink SnapshotSink, e DepthEvent) {
	books.Update(e.Symbol, e.Time, e.Bids, e.Asks)

	lastPrice, lastKnown := ledger.LastPrice(e.Symbol)
	tradeOccurred := ledger.ConsumeTradeFlag(e.Symbol)
	sink.EnqueueSnapshot(e.Symbol, e.Time, e.Bids, e.Asks, lastPrice, lastKnown, tradeOccurred)
}
