package model

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for bar dates and dataset rows.
const DateLayout = "2006-01-02"

// OHLCV represents a single candlestick bar. Daily and weekly bars share this shape.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Date returns the bar's calendar date in DateLayout.
func (b OHLCV) Date() string {
	return b.Time.Format(DateLayout)
}

// Venue is the exchange an instrument is listed on.
type Venue string

const (
	VenueShenzhen Venue = "sz"
	VenueShanghai Venue = "sh"
)

// shenzhenPrefix marks codes listed in Shenzhen; every other code trades in Shanghai.
const shenzhenPrefix = "15"

// Instrument is one fund in the tracked universe.
// Index is its position in the configured universe and drives output ordering.
type Instrument struct {
	Code  string
	Index int
}

// Venue derives the listing venue from the code prefix.
func (i Instrument) Venue() Venue {
	if strings.HasPrefix(i.Code, shenzhenPrefix) {
		return VenueShenzhen
	}
	return VenueShanghai
}
