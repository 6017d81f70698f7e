package price

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Point is the price of one asset in the profit currency at a moment.
type Point struct {
	Asset       string          `json:"asset"`
	TimestampMS int64           `json:"timestamp"`
	Price       decimal.Decimal `json:"price"`
}

// Table is a manually maintained price history. A query returns the latest
// point at or before the requested time.
type Table struct {
	currency    string
	includeFees bool
	logger      *zap.Logger

	mu     sync.RWMutex
	points map[string][]Point
}

func NewTable(currency string, includeFees bool, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		currency:    strings.ToUpper(currency),
		includeFees: includeFees,
		logger:      logger,
		points:      make(map[string][]Point),
	}
}

// LoadFile reads a JSON array of points.
func LoadFile(path, currency string, includeFees bool, logger *zap.Logger) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prices %s: %w", path, err)
	}
	var points []Point
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("parse prices %s: %w", path, err)
	}
	table := NewTable(currency, includeFees, logger)
	for _, p := range points {
		table.Add(p)
	}
	table.logger.Info("prices loaded", zap.String("path", path), zap.Int("points", len(points)))
	return table, nil
}

// Currency is the profit currency prices are quoted in.
func (t *Table) Currency() string {
	return t.currency
}

func (t *Table) Add(p Point) {
	key := strings.ToUpper(p.Asset)
	t.mu.Lock()
	defer t.mu.Unlock()
	series := t.points[key]
	idx := sort.Search(len(series), func(i int) bool { return series[i].TimestampMS > p.TimestampMS })
	series = append(series, Point{})
	copy(series[idx+1:], series[idx:])
	series[idx] = p
	t.points[key] = series
}

// Price returns the asset price at timestampMS.
func (t *Table) Price(asset string, timestampMS int64) (decimal.Decimal, bool) {
	key := strings.ToUpper(asset)
	if key == t.currency {
		return decimal.NewFromInt(1), true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	series := t.points[key]
	idx := sort.Search(len(series), func(i int) bool { return series[i].TimestampMS > timestampMS })
	if idx == 0 {
		return decimal.Decimal{}, false
	}
	return series[idx-1].Price, true
}

// SwapPrices prices both legs of a swap from the table.
func (t *Table) SwapPrices(q SwapQuery) (SwapPrices, bool) {
	var quotes Quotes
	if p, ok := t.Price(q.AssetOut, q.TimestampMS); ok {
		quotes.Out = &p
	}
	if p, ok := t.Price(q.AssetIn, q.TimestampMS); ok {
		quotes.In = &p
	}
	if q.Fee != nil && t.includeFees {
		if p, ok := t.Price(q.Fee.Asset, q.TimestampMS); ok {
			quotes.Fee = &p
		}
	}
	prices, ok := DeriveSwapPrices(q, quotes)
	if !ok {
		t.logger.Debug("no swap price",
			zap.String("asset_in", q.AssetIn),
			zap.String("asset_out", q.AssetOut),
			zap.Int64("timestamp", q.TimestampMS),
		)
	}
	return prices, ok
}
