package sqlstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cryptomonitor/config"
	"cryptomonitor/internal/binance/memorystore"

	"go.uber.org/zap"
)

type fakeStore struct {
	mu      sync.Mutex
	failErr error
	batches [][]OrderBookRecord
}

func (f *fakeStore) InsertRecords(ctx context.Context, records []OrderBookRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	batch := make([]OrderBookRecord, len(records))
	copy(batch, records)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStore) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

func (f *fakeStore) allRecords() []OrderBookRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []OrderBookRecord
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

func writerConfig(t *testing.T) config.StorageConfig {
	t.Helper()
	return config.StorageConfig{
		Driver:       "sqlite",
		Name:         filepath.Join(t.TempDir(), "order_book_data"),
		BatchSize:    100,
		BatchTimeout: time.Hour, // only explicit flushes unless a test overrides
		PollInterval: 10 * time.Millisecond,
	}
}

func enqueueOne(w *DurableWriter, withLast bool) {
	bids := []memorystore.BookLevel{{Price: 99, Amount: 1}}
	asks := []memorystore.BookLevel{{Price: 101, Amount: 2}}
	w.EnqueueSnapshot("BTCUSDT", time.Now().UTC(), bids, asks, 100, withLast, true)
}

func TestFlushCommitsAndEmptiesBatch(t *testing.T) {
	store := &fakeStore{}
	w := NewDurableWriter(writerConfig(t), store, zap.NewNop())

	enqueueOne(w, true) // Ask1, Last, Bid1
	if got := w.Pending(); got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if got := w.Pending(); got != 0 {
		t.Errorf("pending after flush = %d, want 0", got)
	}

	records := store.allRecords()
	if len(records) != 3 {
		t.Fatalf("store got %d records, want 3", len(records))
	}
	if records[0].OrderLevel != "Ask1" || records[1].OrderLevel != "Last" || records[2].OrderLevel != "Bid1" {
		t.Errorf("record order: %v %v %v",
			records[0].OrderLevel, records[1].OrderLevel, records[2].OrderLevel)
	}

	stats := w.Stats()
	if stats.Commits != 1 || stats.RecordsCommitted != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFlushFailureRetainsRecords(t *testing.T) {
	store := &fakeStore{}
	store.setFail(errors.New("disk full"))
	w := NewDurableWriter(writerConfig(t), store, zap.NewNop())

	enqueueOne(w, false)
	before := w.Pending()

	if err := w.Flush(); err == nil {
		t.Fatal("expected flush error")
	}
	if got := w.Pending(); got != before {
		t.Errorf("pending after failed flush = %d, want %d", got, before)
	}
	if stats := w.Stats(); stats.CommitFailures != 1 || stats.Commits != 0 {
		t.Errorf("stats = %+v", stats)
	}

	// Recovery succeeds on the next attempt with the same records.
	store.setFail(nil)
	if err := w.Flush(); err != nil {
		t.Fatalf("retry flush failed: %v", err)
	}
	if got := len(store.allRecords()); got != before {
		t.Errorf("store got %d records, want %d", got, before)
	}
}

func TestFailedCommitPreservesFIFOOrder(t *testing.T) {
	store := &fakeStore{}
	store.setFail(errors.New("unavailable"))
	cfg := writerConfig(t)
	w := NewDurableWriter(cfg, store, zap.NewNop())

	w.EnqueueSnapshot("BTCUSDT", time.Now(), nil, nil, 100, true, false) // Last only
	w.Flush()                                                            // fails, record retained
	w.EnqueueSnapshot("ETHUSDT", time.Now(), nil, nil, 2000, true, false)

	store.setFail(nil)
	if err := w.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	records := store.allRecords()
	if len(records) != 2 {
		t.Fatalf("store got %d records, want 2", len(records))
	}
	if records[0].Symbol != "BTCUSDT" || records[1].Symbol != "ETHUSDT" {
		t.Errorf("order broken: %v then %v", records[0].Symbol, records[1].Symbol)
	}
}

func TestBatchSizeThresholdCommit(t *testing.T) {
	store := &fakeStore{}
	cfg := writerConfig(t)
	cfg.BatchSize = 5
	w := NewDurableWriter(cfg, store, zap.NewNop())
	w.Start()
	defer w.Close()

	// 2 snapshots * 3 records = 6 >= 5
	enqueueOne(w, true)
	enqueueOne(w, true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.allRecords()) == 6 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(store.allRecords()); got != 6 {
		t.Fatalf("store got %d records, want 6", got)
	}
	if got := w.Pending(); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestBatchTimeoutCommit(t *testing.T) {
	store := &fakeStore{}
	cfg := writerConfig(t)
	cfg.BatchSize = 1000
	cfg.BatchTimeout = 50 * time.Millisecond
	w := NewDurableWriter(cfg, store, zap.NewNop())
	w.Start()
	defer w.Close()

	enqueueOne(w, false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.allRecords()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(store.allRecords()); got != 2 {
		t.Fatalf("store got %d records after timeout, want 2", got)
	}
}

func TestCloseWritesRecoveryFileOnCommitFailure(t *testing.T) {
	store := &fakeStore{}
	store.setFail(errors.New("down"))
	cfg := writerConfig(t)
	w := NewDurableWriter(cfg, store, zap.NewNop())
	w.Start()

	enqueueOne(w, true)
	pending := w.Pending()

	if err := w.Close(); err == nil {
		t.Fatal("expected close to report the failed final commit")
	}

	if _, err := os.Stat(cfg.RecoveryPath()); err != nil {
		t.Fatalf("recovery file missing after close: %v", err)
	}

	// A fresh writer picks the records up and commits them once.
	store2 := &fakeStore{}
	w2 := NewDurableWriter(cfg, store2, zap.NewNop())
	if got := w2.Pending(); got != pending {
		t.Fatalf("recovered %d records, want %d", got, pending)
	}
	if stats := w2.Stats(); stats.RecordsRecovered != int64(pending) {
		t.Errorf("stats = %+v", stats)
	}
	// The file is consumed on load.
	if _, err := os.Stat(cfg.RecoveryPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("recovery file still present after load: %v", err)
	}

	if err := w2.Flush(); err != nil {
		t.Fatalf("flush after recovery failed: %v", err)
	}
	if got := len(store2.allRecords()); got != pending {
		t.Errorf("store got %d records after recovery, want %d (no loss, no duplication)", got, pending)
	}
	if err := w2.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	// Everything committed: no recovery file left behind.
	if _, err := os.Stat(cfg.RecoveryPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("recovery file present after clean shutdown: %v", err)
	}
}

func TestCorruptRecoveryFileDiscarded(t *testing.T) {
	cfg := writerConfig(t)
	if err := os.WriteFile(cfg.RecoveryPath(), []byte("{half a reco"), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewDurableWriter(cfg, &fakeStore{}, zap.NewNop())
	if got := w.Pending(); got != 0 {
		t.Errorf("pending = %d after corrupt recovery file, want 0", got)
	}
	if _, err := os.Stat(cfg.RecoveryPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("corrupt recovery file not removed: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	w := NewDurableWriter(writerConfig(t), &fakeStore{}, zap.NewNop())
	w.Start()

	if err := w.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
