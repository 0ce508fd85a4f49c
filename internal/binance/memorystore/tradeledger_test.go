package memorystore

import (
	"testing"
	"time"
)

func ts(sec int) time.Time {
	return time.Date(2025, 3, 14, 9, 30, sec, 0, time.UTC)
}

func TestAddTradeRingBuffer(t *testing.T) {
	ledger := NewTradeLedger([]string{"abc"}, 3)

	if full := ledger.AddTrade("ABC", 100, 1, ts(0)); full {
		t.Error("buffer reported full after 1 trade")
	}
	if full := ledger.AddTrade("ABC", 101, 2, ts(1)); full {
		t.Error("buffer reported full after 2 trades")
	}
	if full := ledger.AddTrade("ABC", 102, 3, ts(2)); !full {
		t.Error("expected capacity signal on 3rd trade")
	}

	trades := ledger.Trades("ABC")
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}
	for i, want := range []float64{100, 101, 102} {
		if trades[i].Price != want {
			t.Errorf("trade %d: price = %v, want %v", i, trades[i].Price, want)
		}
	}

	// 4th trade evicts the oldest and still signals capacity.
	if full := ledger.AddTrade("ABC", 103, 4, ts(3)); !full {
		t.Error("expected capacity signal on 4th trade")
	}
	trades = ledger.Trades("ABC")
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades after eviction, got %d", len(trades))
	}
	for i, want := range []float64{101, 102, 103} {
		if trades[i].Price != want {
			t.Errorf("after eviction, trade %d: price = %v, want %v", i, trades[i].Price, want)
		}
	}
}

func TestAddTradeUnknownSymbol(t *testing.T) {
	ledger := NewTradeLedger([]string{"btcusdt"}, 10)

	if full := ledger.AddTrade("ETHUSDT", 100, 1, ts(0)); full {
		t.Error("unknown symbol returned capacity signal")
	}
	if got := ledger.Trades("ETHUSDT"); got != nil {
		t.Errorf("unknown symbol returned trades: %v", got)
	}
	if _, ok := ledger.LastPrice("ETHUSDT"); ok {
		t.Error("unknown symbol has a last price")
	}
}

func TestLastPrice(t *testing.T) {
	ledger := NewTradeLedger([]string{"btcusdt"}, 10)

	if _, ok := ledger.LastPrice("BTCUSDT"); ok {
		t.Error("last price known before any trade")
	}

	ledger.AddTrade("BTCUSDT", 31400, 0.5, ts(0))
	ledger.AddTrade("BTCUSDT", 31500, 0.1, ts(1))

	price, ok := ledger.LastPrice("BTCUSDT")
	if !ok || price != 31500 {
		t.Errorf("LastPrice = %v, %v; want 31500, true", price, ok)
	}
}

func TestConsumeTradeFlagEdgeTriggered(t *testing.T) {
	ledger := NewTradeLedger([]string{"btcusdt"}, 10)

	if ledger.ConsumeTradeFlag("BTCUSDT") {
		t.Error("flag set before any trade")
	}

	ledger.AddTrade("BTCUSDT", 100, 1, ts(0))

	if !ledger.ConsumeTradeFlag("BTCUSDT") {
		t.Error("flag not set after trade")
	}
	if ledger.ConsumeTradeFlag("BTCUSDT") {
		t.Error("flag survived consumption without an intervening trade")
	}

	// Multiple trades arm the flag once.
	ledger.AddTrade("BTCUSDT", 101, 1, ts(1))
	ledger.AddTrade("BTCUSDT", 102, 1, ts(2))
	if !ledger.ConsumeTradeFlag("BTCUSDT") {
		t.Error("flag not set after trades")
	}
	if ledger.ConsumeTradeFlag("BTCUSDT") {
		t.Error("flag consumed twice")
	}
}

func TestDrain(t *testing.T) {
	ledger := NewTradeLedger([]string{"btcusdt"}, 5)

	ledger.AddTrade("BTCUSDT", 100, 1, ts(0))
	ledger.AddTrade("BTCUSDT", 101, 2, ts(1))

	drained := ledger.Drain("BTCUSDT")
	if len(drained) != 2 {
		t.Fatalf("drained %d trades, want 2", len(drained))
	}
	if drained[0].Price != 100 || drained[1].Price != 101 {
		t.Errorf("drain order wrong: %v", drained)
	}

	if got := ledger.Trades("BTCUSDT"); len(got) != 0 {
		t.Errorf("ledger not empty after drain: %v", got)
	}
	if drained := ledger.Drain("BTCUSDT"); len(drained) != 0 {
		t.Errorf("second drain returned trades: %v", drained)
	}

	// Drain leaves last price and flag intact.
	if price, ok := ledger.LastPrice("BTCUSDT"); !ok || price != 101 {
		t.Errorf("LastPrice after drain = %v, %v; want 101, true", price, ok)
	}
	if !ledger.ConsumeTradeFlag("BTCUSDT") {
		t.Error("trade flag cleared by drain")
	}
}

func TestNonPositiveCapacityClamped(t *testing.T) {
	for _, capacity := range []int{0, -3} {
		ledger := NewTradeLedger([]string{"btcusdt"}, capacity)

		if full := ledger.AddTrade("BTCUSDT", 100, 1, ts(0)); !full {
			t.Errorf("capacity %d: expected capacity signal from single-slot buffer", capacity)
		}
		ledger.AddTrade("BTCUSDT", 101, 1, ts(1))

		trades := ledger.Trades("BTCUSDT")
		if len(trades) != 1 || trades[0].Price != 101 {
			t.Errorf("capacity %d: trades = %v, want just the newest", capacity, trades)
		}
	}
}

func TestTradesReturnsCopy(t *testing.T) {
	ledger := NewTradeLedger([]string{"btcusdt"}, 5)
	ledger.AddTrade("BTCUSDT", 100, 1, ts(0))

	got := ledger.Trades("BTCUSDT")
	got[0].Price = 999

	if fresh := ledger.Trades("BTCUSDT"); fresh[0].Price != 100 {
		t.Error("Trades returned a live reference, not a copy")
	}
}

func TestEvictionPastCapacityKeepsMostRecent(t *testing.T) {
	ledger := NewTradeLedger([]string{"btcusdt"}, 4)

	for i := 0; i < 25; i++ {
		ledger.AddTrade("BTCUSDT", float64(i), 1, ts(i))
	}

	trades := ledger.Trades("BTCUSDT")
	if len(trades) != 4 {
		t.Fatalf("expected 4 trades, got %d", len(trades))
	}
	for i, want := range []float64{21, 22, 23, 24} {
		if trades[i].Price != want {
			t.Errorf("trade %d: price = %v, want %v", i, trades[i].Price, want)
		}
	}
}
