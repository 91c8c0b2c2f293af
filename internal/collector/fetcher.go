package collector

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"time"

	"ETFQuant/internal/model"
)

// ErrUnavailable marks an instrument whose series could not be obtained this run.
// Callers skip the instrument; it is never fatal.
var ErrUnavailable = errors.New("series unavailable")

// Fetcher retrieves an instrument's full daily history from an upstream quote source.
// Implementations make one network call per instrument and never retry.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, inst model.Instrument) ([]model.OHLCV, error)
	Name() string
}

// Normalize sorts bars ascending by date and keeps the last occurrence of each date.
// It returns a new slice.
func Normalize(bars []model.OHLCV) []model.OHLCV {
	if len(bars) == 0 {
		return nil
	}
	byDate := make(map[string]int, len(bars))
	out := make([]model.OHLCV, 0, len(bars))
	for _, b := range bars {
		key := b.Date()
		if i, ok := byDate[key]; ok {
			out[i] = b
			continue
		}
		byDate[key] = len(out)
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// newHTTPClient builds a client with an optional proxy.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewFetcher returns the fetcher for the configured source kind.
func NewFetcher(kind, proxyURL string, timeout time.Duration) Fetcher {
	if kind == "yahoo" {
		return NewYahooFetcher(proxyURL, timeout)
	}
	return NewSinaFetcher(proxyURL, timeout)
}
