package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"cryptomonitor/internal/binance/memorystore"
	"cryptomonitor/internal/timeutil"
)

// CSVExporter appends drained trade buffers to one CSV file per
// symbol (trade_history_<SYMBOL>.csv), writing the header only when
// the file is first created.
type CSVExporter struct {
	mu  sync.Mutex
	dir string
}

func NewCSVExporter(dir string) *CSVExporter {
	if dir == "" {
		dir = "."
	}
	return &CSVExporter{dir: dir}
}

// Export appends the given trades, oldest first, and returns the file
// they were written to.
func (e *CSVExporter) Export(symbol string, trades []memorystore.Trade) (string, error) {
	if len(trades) == 0 {
		return "", nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	filename := filepath.Join(e.dir, fmt.Sprintf("trade_history_%s.csv", strings.ToUpper(symbol)))

	writeHeader := false
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		writeHeader = true
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write([]string{"Time (ET)", "Symbol", "Price", "Volume"}); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
	}

	for _, t := range trades {
		row := []string{
			timeutil.FormatEastern(t.Time),
			strings.ToUpper(symbol),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Volume, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write trade row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush export file: %w", err)
	}

	return filename, nil
}
