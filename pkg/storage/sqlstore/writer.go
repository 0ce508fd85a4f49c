package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cryptomonitor/config"
	"cryptomonitor/internal/binance/memorystore"

	"go.uber.org/zap"
)

// RecordStore is the transactional sink the writer commits batches to.
type RecordStore interface {
	InsertRecords(ctx context.Context, records []OrderBookRecord) error
}

// WriterMetrics counts writer activity since startup.
type WriterMetrics struct {
	Commits          int64
	RecordsCommitted int64
	CommitFailures   int64
	RecordsRecovered int64
}

// DurableWriter accumulates order-book records into an in-memory batch
// and commits it to the store as a single transaction once the batch
// reaches batch_size or has aged past batch_timeout. The pending batch
// is mirrored to a sidecar recovery file after every loop iteration
// (atomic temp+rename), so a crash or shutdown never silently loses
// enqueued records: on the next startup the file is read back into the
// initial batch and deleted.
type DurableWriter struct {
	store        RecordStore
	logger       *zap.Logger
	batchSize    int
	batchTimeout time.Duration
	pollInterval time.Duration
	recoveryPath string

	// commitMu serializes commit attempts so batches reach the store
	// in FIFO enqueue order even when Flush races the background loop.
	commitMu sync.Mutex

	batchMu    sync.Mutex
	batch      []OrderBookRecord
	lastCommit time.Time
	metrics    WriterMetrics

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDurableWriter creates the writer and loads any recovery file left
// by a previous run. A recovery file that fails to deserialize is
// logged and discarded rather than blocking startup.
func NewDurableWriter(cfg config.StorageConfig, store RecordStore, logger *zap.Logger) *DurableWriter {
	w := &DurableWriter{
		store:        store,
		logger:       logger,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		pollInterval: cfg.PollInterval,
		recoveryPath: cfg.RecoveryPath(),
		lastCommit:   time.Now(),
		done:         make(chan struct{}),
	}
	w.loadRecoveryFile()
	return w
}

// Start launches the background committer loop.
func (w *DurableWriter) Start() {
	w.wg.Add(1)
	go w.loop()
}

// EnqueueSnapshot expands a top-5 snapshot into persistable rows and
// appends them to the pending batch.
func (w *DurableWriter) EnqueueSnapshot(
	symbol string,
	ts time.Time,
	bids, asks []memorystore.BookLevel,
	lastPrice float64,
	lastKnown bool,
	tradeOccurred bool,
) {
	records := ExpandSnapshot(symbol, ts, bids, asks, lastPrice, lastKnown, tradeOccurred)

	w.batchMu.Lock()
	w.batch = append(w.batch, records...)
	w.batchMu.Unlock()
}

// Flush forces an immediate commit attempt regardless of thresholds
// and blocks until it completes. The batch is empty afterwards iff the
// commit succeeded; on failure every record is retained.
func (w *DurableWriter) Flush() error {
	err := w.commit(true)
	w.persistPending()
	return err
}

// Pending returns the number of records awaiting commit.
func (w *DurableWriter) Pending() int {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return len(w.batch)
}

// Stats returns a copy of the writer metrics.
func (w *DurableWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// Close stops the background loop, attempts a final flush, and writes
// anything that still failed to commit to the recovery file. The
// store connection itself belongs to the caller.
func (w *DurableWriter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()

		err = w.commit(true)
		w.persistPending()
		if err != nil {
			w.logger.Warn("final commit failed, records kept in recovery file",
				zap.Int("pending", w.Pending()),
				zap.Error(err),
			)
		}
	})
	return err
}

// loop polls the batch on a short interval, committing when either
// threshold trips, and mirrors the pending batch to the recovery file
// after every iteration.
func (w *DurableWriter) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.commit(false)
			w.persistPending()
		}
	}
}

// commit swaps out the current batch and writes it to the store as one
// all-or-nothing transaction. With force unset the swap only happens
// once batch_size or batch_timeout is reached. A failed transaction
// puts the records back at the head of the batch for the next cycle.
func (w *DurableWriter) commit(force bool) error {
	w.commitMu.Lock()
	defer w.commitMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}
	if !force &&
		len(w.batch) < w.batchSize &&
		time.Since(w.lastCommit) < w.batchTimeout {
		w.batchMu.Unlock()
		return nil
	}
	committing := w.batch
	w.batch = nil
	w.batchMu.Unlock()

	err := w.store.InsertRecords(context.Background(), committing)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	if err != nil {
		// Never drop records on a failed commit; keep FIFO order.
		w.batch = append(committing, w.batch...)
		w.metrics.CommitFailures++
		w.logger.Error("batch commit failed, retaining records",
			zap.Int("records", len(committing)),
			zap.Error(err),
		)
		return err
	}

	w.lastCommit = time.Now()
	w.metrics.Commits++
	w.metrics.RecordsCommitted += int64(len(committing))
	w.logger.Debug("batch committed", zap.Int("records", len(committing)))
	return nil
}

// persistPending mirrors the pending batch to the recovery file, or
// removes the file when the batch is empty. The write goes to a temp
// file first and is renamed into place so the file is never partial.
func (w *DurableWriter) persistPending() {
	w.batchMu.Lock()
	pending := make([]OrderBookRecord, len(w.batch))
	copy(pending, w.batch)
	w.batchMu.Unlock()

	if len(pending) == 0 {
		if err := os.Remove(w.recoveryPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("failed to remove recovery file", zap.Error(err))
		}
		return
	}

	data, err := json.Marshal(pending)
	if err != nil {
		w.logger.Error("failed to serialize pending records", zap.Error(err))
		return
	}

	tmp := w.recoveryPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		w.logger.Error("failed to write recovery file", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, w.recoveryPath); err != nil {
		w.logger.Error("failed to replace recovery file", zap.Error(err))
	}
}

// loadRecoveryFile reads records left by a previous run into the
// initial batch and deletes the file. Corruption costs only the
// unreadable file, never startup.
func (w *DurableWriter) loadRecoveryFile() {
	data, err := os.ReadFile(w.recoveryPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		w.logger.Warn("failed to read recovery file, discarding",
			zap.String("file", filepath.Base(w.recoveryPath)),
			zap.Error(err),
		)
		os.Remove(w.recoveryPath)
		return
	}

	var pending []OrderBookRecord
	if err := json.Unmarshal(data, &pending); err != nil {
		w.logger.Warn("recovery file corrupt, discarding",
			zap.String("file", filepath.Base(w.recoveryPath)),
			zap.Error(err),
		)
		os.Remove(w.recoveryPath)
		return
	}

	w.batch = pending
	w.metrics.RecordsRecovered = int64(len(pending))
	os.Remove(w.recoveryPath)

	w.logger.Info("recovered pending records from previous run",
		zap.Int("records", len(pending)),
	)
}
