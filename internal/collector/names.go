package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const eastmoneyFundListURL = "http://fund.eastmoney.com/js/fundcode_search.js"

// NameResolver returns the code to short-name map for every listed fund.
type NameResolver interface {
	ResolveNames(ctx context.Context) (map[string]string, error)
}

// EastmoneyNames resolves fund names from the eastmoney fund list script in one call.
type EastmoneyNames struct {
	URL    string
	Client *http.Client
}

// NewEastmoneyNames creates a resolver with optional proxy support.
func NewEastmoneyNames(proxyURL string, timeout time.Duration) *EastmoneyNames {
	return &EastmoneyNames{
		URL:    eastmoneyFundListURL,
		Client: newHTTPClient(proxyURL, timeout),
	}
}

// ResolveNames downloads the script `var r = [["000001","HXCZHH","华夏成长混合",...],...];`
// and maps column 0 to column 2.
func (e *EastmoneyNames) ResolveNames(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch fund list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fund list status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fund list: %w", err)
	}
	return parseFundList(string(body))
}

func parseFundList(script string) (map[string]string, error) {
	s := strings.TrimSpace(strings.TrimPrefix(script, "\ufeff"))
	if i := strings.Index(s, "="); i >= 0 && strings.HasPrefix(s, "var") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")

	var rows [][]string
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return nil, fmt.Errorf("decode fund list: %w", err)
	}
	names := make(map[string]string, len(rows))
	for _, r := range rows {
		if len(r) < 3 || r[0] == "" {
			continue
		}
		names[r[0]] = r[2]
	}
	return names, nil
}
