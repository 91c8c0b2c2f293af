package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ETFQuant/internal/model"
)

func bar(date string, o, h, l, c, v float64) model.OHLCV {
	t, _ := time.Parse(model.DateLayout, date)
	return model.OHLCV{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestToWeekly_Empty(t *testing.T) {
	weekly := ToWeekly(nil)
	require.NotNil(t, weekly)
	assert.Len(t, weekly, 0)
}

func TestToWeekly_Aggregates(t *testing.T) {
	daily := []model.OHLCV{
		bar("2024-01-02", 10, 11, 9, 10.5, 100),
		bar("2024-01-03", 10.5, 12, 10, 11, 200),
		bar("2024-01-05", 11, 11.5, 8, 9, 300),
		bar("2024-01-08", 9, 10, 8.5, 9.5, 50),
		bar("2024-01-12", 9.5, 13, 9, 12, 70),
	}
	weekly := ToWeekly(daily)
	require.Len(t, weekly, 2)

	assert.Equal(t, "2024-01-05", weekly[0].Date())
	assert.Equal(t, 10.0, weekly[0].Open)
	assert.Equal(t, 12.0, weekly[0].High)
	assert.Equal(t, 8.0, weekly[0].Low)
	assert.Equal(t, 9.0, weekly[0].Close)
	assert.Equal(t, 600.0, weekly[0].Volume)

	assert.Equal(t, "2024-01-12", weekly[1].Date())
	assert.Equal(t, 9.0, weekly[1].Open)
	assert.Equal(t, 12.0, weekly[1].Close)
	assert.Equal(t, 120.0, weekly[1].Volume)
}

func TestToWeekly_SkipsEmptyWeeks(t *testing.T) {
	daily := []model.OHLCV{
		bar("2024-01-02", 1, 1, 1, 1, 1),
		bar("2024-01-23", 2, 2, 2, 2, 1),
	}
	assert.Len(t, ToWeekly(daily), 2)
}

func TestToWeekly_YearBoundaryUsesISOWeek(t *testing.T) {
	daily := []model.OHLCV{
		bar("2024-12-30", 1, 2, 1, 2, 1),
		bar("2024-12-31", 2, 3, 2, 3, 1),
		bar("2025-01-02", 3, 4, 3, 4, 1),
	}
	weekly := ToWeekly(daily)
	require.Len(t, weekly, 1)
	assert.Equal(t, "2025-01-02", weekly[0].Date())
	assert.Equal(t, 4.0, weekly[0].Close)
}

func TestToWeekly_IdempotentAndPure(t *testing.T) {
	closes := make([]float64, 90)
	for i := range closes {
		closes[i] = 5 + float64(i%7)
	}
	daily := barsFromCloses(day0, closes...)
	before := append([]model.OHLCV(nil), daily...)

	weekly := ToWeekly(daily)
	assert.Equal(t, before, daily)
	assert.Equal(t, weekly, ToWeekly(weekly))
}
