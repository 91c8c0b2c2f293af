package calculator

import (
	"errors"

	"ETFQuant/internal/model"
)

// SMAPeriod is the daily window of the moving-average relationship.
const SMAPeriod = 60

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// CalculateMA60 returns the latest close, its 60-day SMA, the relation between the two
// and the crossover signal of the last two trading days.
//
// With fewer than 60 bars the SMA and relation are unavailable. The crossover needs a
// prior-day SMA as well, so it stays CrossNone until at least 61 bars exist.
func CalculateMA60(dailyBars []model.OHLCV) model.MAResult {
	res := model.MAResult{Relation: model.RelationUnavailable, Cross: model.CrossNone}
	if len(dailyBars) == 0 {
		return res
	}
	closes := extractCloses(dailyBars)
	n := len(closes)
	latest := closes[n-1]
	res.LatestClose = model.Some(latest)

	sma, err := CalculateSMA(closes, SMAPeriod)
	if err != nil {
		return res
	}
	res.SMA = model.Some(sma)
	currAbove := latest >= sma
	if currAbove {
		res.Relation = model.RelationAbove
	} else {
		res.Relation = model.RelationBelow
	}

	prevSMA, err := CalculateSMA(closes[:n-1], SMAPeriod)
	if err != nil {
		return res
	}
	prevAbove := closes[n-2] >= prevSMA
	switch {
	case !prevAbove && currAbove:
		res.Cross = model.CrossUp
	case prevAbove && !currAbove:
		res.Cross = model.CrossDown
	}
	return res
}

func extractCloses(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
