package collector

import (
	"context"
	"fmt"
	"strings"

	"cryptomonitor/config"
	"cryptomonitor/internal/binance/export"
	"cryptomonitor/internal/binance/memorystore"
	"cryptomonitor/internal/binance/stream"
	"cryptomonitor/pkg/binance"
	"cryptomonitor/pkg/storage/sqlstore"

	"go.uber.org/zap"
)

// Collector owns the ingestion-and-durability pipeline: the feed
// connection, the in-memory ledger and snapshot store, and the durable
// writer. External collaborators (console, GUI, visualizer) read state
// through the accessor methods and drive the pipeline through the
// command methods; they never touch the components directly.
type Collector struct {
	cfg    *config.Config
	logger *zap.Logger

	ledger   *memorystore.TradeLedger
	books    *memorystore.OrderBookStore
	writer   *sqlstore.DurableWriter
	exporter *export.CSVExporter
	wsClient *binance.WSClient
	dbClient *sqlstore.Client
}

// Start builds the pipeline for the configured symbols, recovers any
// pending records from a previous run, and opens the feed connection.
// Storage initialization failure is the only fatal startup error.
func Start(cfg *config.Config, logger *zap.Logger) (*Collector, error) {
	dbClient, err := sqlstore.InitializeAndMigrate(cfg.Storage, cfg.Log.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	symbols := cfg.Binance.Symbols

	c := &Collector{
		cfg:      cfg,
		logger:   logger,
		ledger:   memorystore.NewTradeLedger(symbols, cfg.Binance.MaxTrades),
		books:    memorystore.NewOrderBookStore(symbols),
		exporter: export.NewCSVExporter(cfg.Export.Dir),
		dbClient: dbClient,
	}

	c.writer = sqlstore.NewDurableWriter(cfg.Storage, dbClient, logger)
	c.writer.Start()

	if cfg.Binance.ValidateSymbols {
		c.validateSymbols()
	}

	c.wsClient = binance.NewWSClient(cfg.Binance.WS, symbols, logger)
	c.wsClient.SetMessageHandler(stream.MakeMessageHandler(
		logger, c.ledger, c.books, c.writer, c.exporter, symbols,
	))

	if err := c.wsClient.Connect(); err != nil {
		// Not fatal: the connector is already in its backoff cycle.
		logger.Warn("initial connect failed, retrying with backoff", zap.Error(err))
	}

	logger.Info("collector started",
		zap.Strings("symbols", upperAll(symbols)),
		zap.String("storage", cfg.Storage.Driver),
	)

	return c, nil
}

// validateSymbols checks the configured pairs against exchangeInfo.
// Failure here is diagnostic only; the feed drops unknown symbols anyway.
func (c *Collector) validateSymbols() {
	restClient := binance.NewRESTClient(c.cfg.Binance.REST.BaseURL, c.cfg.Binance.REST.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Binance.REST.Timeout)
	defer cancel()

	unknown, err := restClient.ValidateSymbols(ctx, c.cfg.Binance.Symbols)
	if err != nil {
		c.logger.Warn("symbol validation skipped", zap.Error(err))
		return
	}
	if len(unknown) > 0 {
		c.logger.Warn("configured symbols not tradable on exchange",
			zap.Strings("symbols", unknown),
		)
	}
}

// --- read accessors ---

// GetTrades returns a snapshot copy of a symbol's buffered trades,
// oldest first.
func (c *Collector) GetTrades(symbol string) []memorystore.Trade {
	return c.ledger.Trades(symbol)
}

// GetLastPrice returns the most recent trade price for a symbol.
func (c *Collector) GetLastPrice(symbol string) (float64, bool) {
	return c.ledger.LastPrice(symbol)
}

// GetLatestOrderBook returns the most recent top-5 snapshot for a symbol.
func (c *Collector) GetLatestOrderBook(symbol string) (memorystore.BookSnapshot, bool) {
	return c.books.Latest(symbol)
}

// ConnectionState reports the feed connector's lifecycle state.
func (c *Collector) ConnectionState() binance.ConnState {
	return c.wsClient.State()
}

// WriterStats reports durable writer counters.
func (c *Collector) WriterStats() sqlstore.WriterMetrics {
	return c.writer.Stats()
}

// --- command entry points ---

// Connect (re)opens the feed connection; a no-op while already
// connected or parked in the failed state.
func (c *Collector) Connect() error {
	return c.wsClient.Connect()
}

// ResetConnectionState clears the failed marker and attempt counter,
// then starts a fresh connect cycle.
func (c *Collector) ResetConnectionState() error {
	c.wsClient.ResetConnectionState()
	return c.wsClient.Connect()
}

// Flush forces an immediate synchronous commit attempt.
func (c *Collector) Flush() error {
	return c.writer.Flush()
}

// DrainForExport drains a symbol's trade buffer into the CSV artifact
// regardless of capacity and returns the drained trades.
func (c *Collector) DrainForExport(symbol string) ([]memorystore.Trade, error) {
	trades := c.ledger.Drain(symbol)
	if len(trades) == 0 {
		return nil, nil
	}
	filename, err := c.exporter.Export(symbol, trades)
	if err != nil {
		return trades, fmt.Errorf("export %s: %w", symbol, err)
	}
	c.logger.Info("trade history exported",
		zap.String("symbol", strings.ToUpper(symbol)),
		zap.String("file", filename),
		zap.Int("trades", len(trades)),
	)
	return trades, nil
}

// Close shuts the pipeline down: stop the feed (cancelling any pending
// reconnect), stop the writer with a final flush, then release storage.
func (c *Collector) Close() error {
	c.wsClient.Close()

	err := c.writer.Close()

	if dbErr := c.dbClient.Close(); dbErr != nil && err == nil {
		err = dbErr
	}

	c.logger.Info("collector stopped")
	return err
}

func upperAll(symbols []string) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = strings.ToUpper(s)
	}
	return out
}
