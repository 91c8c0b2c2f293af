package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ETFQuant/internal/model"
)

const sinaKLineURL = "https://money.finance.sina.com.cn/quotes_service/api/json_v2.php/CN_MarketData.getKLineData"

// sinaMaxBars is the largest history the endpoint returns in one call.
const sinaMaxBars = 10000

// SinaFetcher implements Fetcher using the Sina daily k-line endpoint.
type SinaFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewSinaFetcher creates a new Sina fetcher with optional proxy support.
func NewSinaFetcher(proxyURL string, timeout time.Duration) *SinaFetcher {
	return &SinaFetcher{
		BaseURL: sinaKLineURL,
		Client:  newHTTPClient(proxyURL, timeout),
	}
}

func (f *SinaFetcher) Name() string { return "sina" }

// sinaSymbol prefixes the code with its venue, e.g. sz159915 or sh510300.
func sinaSymbol(inst model.Instrument) string {
	return string(inst.Venue()) + inst.Code
}

// sinaBar is the JSON shape of one k-line row. Numbers arrive as strings.
type sinaBar struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

func (f *SinaFetcher) FetchDailyBars(ctx context.Context, inst model.Instrument) ([]model.OHLCV, error) {
	endpoint := fmt.Sprintf("%s?symbol=%s&scale=240&ma=no&datalen=%d", f.BaseURL, sinaSymbol(inst), sinaMaxBars)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", "https://finance.sina.com.cn")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sina fetch %s: %v", ErrUnavailable, inst.Code, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: sina read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sina status %d", ErrUnavailable, resp.StatusCode)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, fmt.Errorf("%w: sina returned no data for %s", ErrUnavailable, inst.Code)
	}

	var rows []sinaBar
	if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
		return nil, fmt.Errorf("%w: sina decode: %v", ErrUnavailable, err)
	}
	bars := make([]model.OHLCV, 0, len(rows))
	for _, r := range rows {
		b, ok := parseSinaBar(r)
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: sina returned no valid bars for %s", ErrUnavailable, inst.Code)
	}
	return Normalize(bars), nil
}

// parseSinaBar converts one row, rejecting rows without a parsable date or positive close.
func parseSinaBar(r sinaBar) (model.OHLCV, bool) {
	day, err := time.Parse(model.DateLayout, strings.TrimSpace(r.Day))
	if err != nil {
		return model.OHLCV{}, false
	}
	closePrice, err := strconv.ParseFloat(r.Close, 64)
	if err != nil || closePrice <= 0 {
		return model.OHLCV{}, false
	}
	return model.OHLCV{
		Time:   day,
		Open:   parseFloatOr(r.Open, closePrice),
		High:   parseFloatOr(r.High, closePrice),
		Low:    parseFloatOr(r.Low, closePrice),
		Close:  closePrice,
		Volume: parseFloatOr(r.Volume, 0),
	}, true
}

func parseFloatOr(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallback
	}
	return v
}
