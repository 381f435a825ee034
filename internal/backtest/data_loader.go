package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// DataLoader reads historical bars from CSV or JSON files and hands them to
// the simulator sorted ascending by timestamp.
type DataLoader struct {
	bars []Bar
}

func NewDataLoader() *DataLoader {
	return &DataLoader{}
}

// Bars returns the loaded bars in chronological order.
func (l *DataLoader) Bars() []Bar {
	return l.bars
}

// LoadFromJSON reads an array of Bar objects.
func (l *DataLoader) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var bars []Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	l.append(bars)
	return nil
}

// LoadFromCSV reads bars from a headered CSV file. The columns ts, symbol,
// open, high, low, close, volume and confidence map onto Bar fields; any
// other numeric column becomes an opaque feature.
func (l *DataLoader) LoadFromCSV(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"ts", "symbol", "close"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("%s: missing required column %q", path, required)
		}
	}

	var bars []Bar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}

		bar, err := parseRecord(header, col, record)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Str("file", path).Msg("skipping malformed bar")
			continue
		}
		bars = append(bars, bar)
	}

	l.append(bars)
	return nil
}

func parseRecord(header []string, col map[string]int, record []string) (Bar, error) {
	ts, err := parseTimestamp(record[col["ts"]])
	if err != nil {
		return Bar{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	bar := Bar{Ts: ts, Symbol: record[col["symbol"]]}

	fields := map[string]*float64{
		"open":       &bar.Open,
		"high":       &bar.High,
		"low":        &bar.Low,
		"close":      &bar.Close,
		"volume":     &bar.Volume,
		"confidence": &bar.Confidence,
	}

	for i, name := range header {
		if name == "ts" || name == "symbol" {
			continue
		}
		v, err := strconv.ParseFloat(record[i], 64)
		if err != nil {
			return Bar{}, fmt.Errorf("invalid %s value %q: %w", name, record[i], err)
		}
		if dst, ok := fields[name]; ok {
			*dst = v
			continue
		}
		if bar.Features == nil {
			bar.Features = make(map[string]float64)
		}
		bar.Features[name] = v
	}

	return bar, nil
}

func parseTimestamp(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, v)
}

func (l *DataLoader) append(bars []Bar) {
	l.bars = append(l.bars, bars...)
	sort.SliceStable(l.bars, func(i, j int) bool {
		return l.bars[i].Ts.Before(l.bars[j].Ts)
	})

	log.Info().
		Int("bars", len(l.bars)).
		Msg("historical data loaded")
}
