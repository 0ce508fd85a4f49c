package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptomonitor/internal/binance/memorystore"
)

// DecodeMessage parses a raw feed message into a tagged Event. The
// envelope is either the combined-stream wrapper {stream, data} or a
// flat event object tagged by "e". Messages that parse but match no
// known event shape come back as UnknownEvent; a malformed message
// returns an error and is the caller's to drop.
func DecodeMessage(raw []byte, now func() time.Time) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}

	data := raw
	symbol := ""
	if env.Stream != "" {
		// "btcusdt@depth5" -> "BTCUSDT"
		symbol = strings.ToUpper(strings.SplitN(env.Stream, "@", 2)[0])
		data = env.Data
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if symbol == "" {
		symbol = strings.ToUpper(p.Symbol)
	}

	switch {
	case p.EventType == "trade":
		return decodeTrade(symbol, p)
	case p.EventType == "depthUpdate" || (p.Bids != nil && p.Asks != nil):
		return decodeDepth(symbol, p, now)
	default:
		return UnknownEvent{Symbol: symbol}, nil
	}
}

func decodeTrade(symbol string, p payload) (Event, error) {
	price, err := strconv.ParseFloat(p.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parse trade price %q: %w", p.Price, err)
	}
	volume, err := strconv.ParseFloat(p.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parse trade quantity %q: %w", p.Quantity, err)
	}

	return TradeEvent{
		Symbol: symbol,
		Price:  price,
		Volume: volume,
		Time:   time.UnixMilli(p.TradeTime).UTC(),
	}, nil
}

func decodeDepth(symbol string, p payload, now func() time.Time) (Event, error) {
	bids, err := decodeLevels(p.Bids)
	if err != nil {
		return nil, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := decodeLevels(p.Asks)
	if err != nil {
		return nil, fmt.Errorf("parse asks: %w", err)
	}

	// depth5 partials carry no event time; fall back to receive time.
	ts := now().UTC()
	if p.EventTime > 0 {
		ts = time.UnixMilli(p.EventTime).UTC()
	}

	return DepthEvent{
		Symbol: symbol,
		Time:   ts,
		Bids:   bids,
		Asks:   asks,
	}, nil
}

func decodeLevels(raw [][]string) ([]memorystore.BookLevel, error) {
	levels := make([]memorystore.BookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level needs [price, amount], got %v", pair)
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse level price %q: %w", pair[0], err)
		}
		amount, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse level amount %q: %w", pair[1], err)
		}
		levels = append(levels, memorystore.BookLevel{Price: price, Amount: amount})
	}
	return levels, nil
}
