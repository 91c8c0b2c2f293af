package calculator

import "ETFQuant/internal/model"

// ToWeekly aggregates ascending daily bars into ISO calendar weeks (Monday to Sunday).
// Open is the week's first open, High the max, Low the min, Close the last close and
// Volume the sum. Each weekly bar is stamped with the date of its last trading day, so
// resampling weekly bars again yields the same bars. The input is not modified.
func ToWeekly(daily []model.OHLCV) []model.OHLCV {
	weekly := make([]model.OHLCV, 0, len(daily)/5+1)
	if len(daily) == 0 {
		return weekly
	}
	var week model.OHLCV
	var currentKey int

	for i, d := range daily {
		year, isoWeek := d.Time.ISOWeek()
		weekKey := year*100 + isoWeek

		if i == 0 || weekKey != currentKey {
			if i > 0 {
				weekly = append(weekly, week)
			}
			week = d
			currentKey = weekKey
			continue
		}
		if d.High > week.High {
			week.High = d.High
		}
		if d.Low < week.Low {
			week.Low = d.Low
		}
		week.Time = d.Time
		week.Close = d.Close
		week.Volume += d.Volume
	}
	return append(weekly, week)
}
