package main

import (
	"os"
	"os/signal"
	"syscall"

	"cryptomonitor/config"
	"cryptomonitor/internal/binance/collector"
	"cryptomonitor/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// run collector
	c, err := collector.Start(cfg, log)
	if err != nil {
		log.Fatal("collector failed", zap.Error(err))
	}

	// Block until interrupted, then shut down cleanly so pending
	// records land in the store or the recovery file.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", zap.String("signal", sig.String()))

	if err := c.Close(); err != nil {
		log.Warn("shutdown finished with errors", zap.Error(err))
	}
}
