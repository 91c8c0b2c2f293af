package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ETFQuant/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Codes listed in Fail return ErrUnavailable; codes without Series get a generated trend.
type MockFetcher struct {
	Price  float64
	Bars   int
	Series map[string][]model.OHLCV
	Fail   map[string]bool
	Delay  time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBars(ctx context.Context, inst model.Instrument) ([]model.OHLCV, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[inst.Code]++
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
	}
	if m.Fail[inst.Code] {
		return nil, fmt.Errorf("%w: mock failure for %s", ErrUnavailable, inst.Code)
	}
	if bars, ok := m.Series[inst.Code]; ok {
		return bars, nil
	}
	count := m.Bars
	if count == 0 {
		count = 300
	}
	price := m.Price
	if price == 0 {
		price = 1
	}
	return generateMockBars(price, count, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), nil
}

// Calls reports how many times code was requested.
func (m *MockFetcher) Calls(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[code]
}

// generateMockBars produces count weekday bars starting at start.
func generateMockBars(basePrice float64, count int, start time.Time) []model.OHLCV {
	bars := make([]model.OHLCV, 0, count)
	day := start
	for i := 0; i < count; i++ {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars = append(bars, model.OHLCV{
			Time:   day,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		})
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

// StaticNames is a NameResolver backed by a fixed map.
type StaticNames map[string]string

func (s StaticNames) ResolveNames(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}
