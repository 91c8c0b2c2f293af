package fees

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

const eastmoneyProfileURL = "http://fundf10.eastmoney.com/jbgk_%s.html"

var (
	managementRe = regexp.MustCompile(`管理费率.*?([\d.]+%)`)
	custodyRe    = regexp.MustCompile(`托管费率.*?([\d.]+%)`)
)

// EastmoneySource scrapes fee rates from the eastmoney fund profile page.
type EastmoneySource struct {
	URLFormat string
	Client    *http.Client
}

// NewEastmoneySource creates a scraper with optional proxy support.
func NewEastmoneySource(proxyURL string, timeout time.Duration) *EastmoneySource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &EastmoneySource{
		URLFormat: eastmoneyProfileURL,
		Client:    &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (s *EastmoneySource) LookupFees(ctx context.Context, code string) (Fees, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(s.URLFormat, code), nil)
	if err != nil {
		return Unknown, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Unknown, fmt.Errorf("fetch fee page %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unknown, nil
	}

	var body io.Reader = resp.Body
	if isGBK(resp.Header.Get("Content-Type")) {
		body = transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder())
	}
	page, err := io.ReadAll(body)
	if err != nil {
		return Unknown, fmt.Errorf("read fee page %s: %w", code, err)
	}
	return ParseFees(string(page)), nil
}

func isGBK(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "gbk") || strings.Contains(ct, "gb2312") || strings.Contains(ct, "gb18030")
}

// ParseFees extracts both rates from page text. Missing fields stay "N/A".
func ParseFees(page string) Fees {
	f := Unknown
	if m := managementRe.FindStringSubmatch(page); m != nil {
		f.Management = m[1]
	}
	if m := custodyRe.FindStringSubmatch(page); m != nil {
		f.Custody = m[1]
	}
	return f
}
