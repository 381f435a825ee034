package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestLoadFromCSV(t *testing.T) {
	t.Parallel()

	csv := `ts,symbol,open,high,low,close,volume,confidence,momentum
120000,BTCUSDT,101,103,100,102,5,0.8,0.4
60000,BTCUSDT,100,102,99,101,10,0.7,0.5
180000,BTCUSDT,bad,103,100,102,5,0.8,0.4
240000,BTCUSDT,102,104,101,103,7,0.9,-0.2
`
	path := writeTempFile(t, "bars.csv", csv)

	loader := NewDataLoader()
	if err := loader.LoadFromCSV(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	bars := loader.Bars()
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars (malformed row skipped), got %d", len(bars))
	}

	// sorted ascending despite out-of-order input
	for i := 1; i < len(bars); i++ {
		if bars[i].Ts.Before(bars[i-1].Ts) {
			t.Fatalf("bars not sorted: %v after %v", bars[i].Ts, bars[i-1].Ts)
		}
	}

	first := bars[0]
	if !first.Ts.Equal(time.UnixMilli(60000)) {
		t.Errorf("expected first ts 60000ms, got %v", first.Ts)
	}
	if first.Close != 101 || first.Volume != 10 {
		t.Errorf("unexpected bar fields: close %v volume %v", first.Close, first.Volume)
	}
	if first.Confidence != 0.7 {
		t.Errorf("expected confidence 0.7, got %v", first.Confidence)
	}
	if first.Features["momentum"] != 0.5 {
		t.Errorf("expected momentum feature 0.5, got %v", first.Features["momentum"])
	}
}

func TestLoadFromCSVMissingColumn(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "bad.csv", "ts,open\n60000,100\n")

	loader := NewDataLoader()
	if err := loader.LoadFromCSV(path); err == nil {
		t.Fatal("expected error for missing required columns")
	}
}

func TestLoadFromCSVTimestampFormats(t *testing.T) {
	t.Parallel()

	csv := `ts,symbol,close
2024-01-02T03:04:05Z,BTCUSDT,100
60000,BTCUSDT,101
`
	path := writeTempFile(t, "ts.csv", csv)

	loader := NewDataLoader()
	if err := loader.LoadFromCSV(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	bars := loader.Bars()
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !bars[1].Ts.Equal(want) {
		t.Errorf("RFC3339 timestamp mishandled: %v", bars[1].Ts)
	}
}

func TestLoadFromJSON(t *testing.T) {
	t.Parallel()

	data := `[
		{"ts":"2024-01-01T00:01:00Z","symbol":"BTCUSDT","open":100,"high":102,"low":99,"close":101,"volume":10,"confidence":0.7},
		{"ts":"2024-01-01T00:00:00Z","symbol":"BTCUSDT","open":99,"high":101,"low":98,"close":100,"volume":8,"confidence":0.6}
	]`
	path := writeTempFile(t, "bars.json", data)

	loader := NewDataLoader()
	if err := loader.LoadFromJSON(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	bars := loader.Bars()
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Close != 100 {
		t.Errorf("bars not sorted by timestamp, first close %v", bars[0].Close)
	}
}
