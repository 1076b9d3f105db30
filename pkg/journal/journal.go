// Package journal persists emitted signals to a directory as JSON files,
// one per signal, for offline audit and strategy review.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tradepulse/pkg/strategy"
)

// Record captures one emitted signal together with its journal sequence.
type Record struct {
	Timestamp time.Time        `json:"timestamp"`
	Sequence  int              `json:"sequence"`
	Signal    *strategy.Signal `json:"signal"`
}

// Writer persists signal records to a directory as JSON files (journal style).
// Safe for concurrent use; the sequence number resets on restart.
type Writer struct {
	dir   string
	nowFn func() time.Time

	mu  sync.Mutex
	seq int
}

// NewWriter constructs a journal writer.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// Write stores one signal as a timestamped JSON file and returns its path.
func (w *Writer) Write(sig *strategy.Signal) (string, error) {
	if sig == nil {
		return "", fmt.Errorf("journal: nil signal")
	}

	w.mu.Lock()
	w.seq++
	rec := Record{Timestamp: w.nowFn().UTC(), Sequence: w.seq, Signal: sig}
	w.mu.Unlock()

	name := fmt.Sprintf("signal_%s_%05d.json", rec.Timestamp.Format("20060102_150405"), rec.Sequence)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
