package calculator

import "ETFQuant/internal/model"

// Weekly MACD parameters.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// EMA returns the recursive exponential moving average of values with smoothing
// factor 2/(span+1), seeded by the first value. No bias adjustment is applied.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACDSeries returns DIF, DEA and histogram series for the given closes.
// Values are left unrounded.
func MACDSeries(closes []float64, fast, slow, signal int) (dif, dea, hist []float64) {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	dif = make([]float64, len(closes))
	for i := range closes {
		dif[i] = emaFast[i] - emaSlow[i]
	}
	dea = EMA(dif, signal)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = 2 * (dif[i] - dea[i])
	}
	return dif, dea, hist
}

// HistogramTurn classifies the histogram sign change between two consecutive weeks.
func HistogramTurn(prev, curr float64) model.TurnSignal {
	switch {
	case prev > 0 && curr <= 0:
		return model.TurnRedToGreen
	case prev <= 0 && curr > 0:
		return model.TurnGreenToRed
	}
	return model.TurnNone
}

// CalculateWeeklyMACD computes MACD(12,26,9) on weekly bars.
// Fewer than slow+signal bars leaves every field unavailable.
func CalculateWeeklyMACD(weeklyBars []model.OHLCV) model.MACDResult {
	if len(weeklyBars) < MACDSlow+MACDSignal {
		return model.MACDResult{Turn: model.TurnUnavailable}
	}
	dif, dea, hist := MACDSeries(extractCloses(weeklyBars), MACDFast, MACDSlow, MACDSignal)
	n := len(hist)
	return model.MACDResult{
		DIF:  model.Some(dif[n-1]),
		DEA:  model.Some(dea[n-1]),
		Hist: model.Some(hist[n-1]),
		Turn: HistogramTurn(hist[n-2], hist[n-1]),
	}
}

// Evaluate runs both indicator computations for one instrument.
func Evaluate(dailyBars, weeklyBars []model.OHLCV) model.Indicators {
	return model.Indicators{
		MA:   CalculateMA60(dailyBars),
		MACD: CalculateWeeklyMACD(weeklyBars),
	}
}
