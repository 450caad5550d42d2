package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// Required CSV columns; symbol and high/low are optional
var requiredColumns = []string{"timestamp", "open", "close"}

// CSVBarSource reads bars from <dir>/<SYMBOL>_<frequency>.csv files.
// A "/" in the symbol becomes "-" in the file name (BTC/USDT -> BTC-USDT_1d.csv).
type CSVBarSource struct {
	dir string
}

// NewCSVBarSource creates a file-backed bar source rooted at dir
func NewCSVBarSource(dir string) *CSVBarSource {
	return &CSVBarSource{dir: dir}
}

// Path returns the file that backs a query
func (s *CSVBarSource) Path(query backtest.BarQuery) string {
	name := strings.ReplaceAll(query.Symbol, "/", "-") + "_" + query.Frequency + ".csv"
	return filepath.Join(s.dir, name)
}

// Bars reads the file for the query, keeps rows within [Start, End] and
// returns them sorted by time with duplicate timestamps collapsed (last row wins).
// Malformed rows are logged and skipped.
func (s *CSVBarSource) Bars(ctx context.Context, query backtest.BarQuery) ([]*backtest.Candlestick, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bar query: %w", err)
	}

	path := s.Path(query)
	f, err := os.Open(path) // #nosec G304 -- path is built from the configured data directory
	if err != nil {
		return nil, fmt.Errorf("failed to open bar file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	columns, err := indexColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	byTime := make(map[int64]*backtest.Candlestick)
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			log.Warn().Err(err).Str("file", path).Int("line", line).Msg("Skipping unreadable CSV row")
			continue
		}

		bar, err := parseRow(record, columns)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Int("line", line).Msg("Skipping malformed CSV row")
			continue
		}
		if bar.Symbol != "" && bar.Symbol != query.Symbol {
			continue
		}
		if bar.Timestamp.Before(query.Start) || (!query.End.IsZero() && bar.Timestamp.After(query.End)) {
			continue
		}
		bar.Symbol = query.Symbol
		byTime[bar.Timestamp.UnixNano()] = bar
	}

	bars := make([]*backtest.Candlestick, 0, len(byTime))
	for _, bar := range byTime {
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	log.Debug().
		Str("file", path).
		Int("count", len(bars)).
		Msg("Loaded bars from CSV")

	return bars, nil
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return columns, nil
}

func parseRow(record []string, columns map[string]int) (*backtest.Candlestick, error) {
	field := func(name string) (string, bool) {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}
	number := func(name string) (float64, error) {
		raw, ok := field(name)
		if !ok || raw == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		return v, nil
	}

	raw, ok := field("timestamp")
	if !ok {
		return nil, errors.New("row is shorter than the header")
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return nil, err
	}

	bar := &backtest.Candlestick{Timestamp: ts}
	if symbol, ok := field("symbol"); ok {
		bar.Symbol = symbol
	}
	for name, dst := range map[string]*float64{
		"open": &bar.Open, "high": &bar.High, "low": &bar.Low,
		"close": &bar.Close, "volume": &bar.Volume,
	} {
		if *dst, err = number(name); err != nil {
			return nil, err
		}
	}
	if bar.Close <= 0 {
		return nil, fmt.Errorf("non-positive close %v", bar.Close)
	}
	return bar, nil
}

// ParseTimestamp accepts unix seconds, unix milliseconds, RFC3339 or a plain date
func ParseTimestamp(raw string) (time.Time, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
