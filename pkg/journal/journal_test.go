package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/pkg/market"
	"tradepulse/pkg/strategy"
)

func testSignal() *strategy.Signal {
	return &strategy.Signal{
		ID:        "sig-1",
		Symbol:    "BTCUSDT",
		Interval:  market.Interval1h,
		Strategy:  "breakout",
		Direction: strategy.Long,
		Price:     50123.5,
		CreatedAt: time.Now().UTC(),
	}
}

func TestWriteCreatesSequencedFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	first, err := w.Write(testSignal())
	require.NoError(t, err)
	second, err := w.Write(testSignal())
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each signal gets its own file")

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, 2, rec.Sequence)
	require.NotNil(t, rec.Signal)
	assert.Equal(t, "BTCUSDT", rec.Signal.Symbol)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, ".json", filepath.Ext(entries[0].Name()))
}

func TestWriteRejectsNilSignal(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.Write(nil)
	assert.Error(t, err)
}
