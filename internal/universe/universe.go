// Package universe loads the ordered set of tracked instruments.
package universe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"ETFQuant/internal/model"
)

// CodeLength is the fixed length of an instrument code.
const CodeLength = 6

// Universe is the ordered, de-duplicated instrument list for a run.
type Universe struct {
	instruments []model.Instrument
	index       map[string]int
}

// New validates codes and assigns each its universe position.
// Duplicates keep their first position. Shorter numeric codes are zero-padded.
func New(codes []string) (*Universe, error) {
	u := &Universe{index: make(map[string]int, len(codes))}
	for _, raw := range codes {
		code, err := NormalizeCode(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := u.index[code]; dup {
			continue
		}
		inst := model.Instrument{Code: code, Index: len(u.instruments)}
		u.index[code] = inst.Index
		u.instruments = append(u.instruments, inst)
	}
	if len(u.instruments) == 0 {
		return nil, fmt.Errorf("universe is empty")
	}
	return u, nil
}

// NormalizeCode trims and zero-pads a numeric code to CodeLength digits.
func NormalizeCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" || len(code) > CodeLength {
		return "", fmt.Errorf("invalid instrument code %q", raw)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid instrument code %q", raw)
		}
	}
	return strings.Repeat("0", CodeLength-len(code)) + code, nil
}

// Load builds a universe from inline codes plus an optional file of codes.
// File entries follow inline ones.
func Load(codes []string, file string) (*Universe, error) {
	all := append([]string(nil), codes...)
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open universe file: %w", err)
		}
		defer f.Close()
		fromFile, err := ReadCodes(f)
		if err != nil {
			return nil, fmt.Errorf("read universe file: %w", err)
		}
		all = append(all, fromFile...)
	}
	return New(all)
}

// ReadCodes reads one code per line, or comma separated. Blank lines and # comments are skipped.
func ReadCodes(r io.Reader) ([]string, error) {
	var codes []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, field := range strings.Split(line, ",") {
			if f := strings.TrimSpace(field); f != "" {
				codes = append(codes, f)
			}
		}
	}
	return codes, sc.Err()
}

// Instruments returns the instruments in universe order.
func (u *Universe) Instruments() []model.Instrument {
	out := make([]model.Instrument, len(u.instruments))
	copy(out, u.instruments)
	return out
}

func (u *Universe) Len() int { return len(u.instruments) }

// IndexOf returns the universe position of code. Unknown codes sort after every known one.
func (u *Universe) IndexOf(code string) (int, bool) {
	i, ok := u.index[code]
	if !ok {
		return len(u.instruments), false
	}
	return i, true
}

// Codes returns the codes in universe order.
func (u *Universe) Codes() []string {
	out := make([]string, len(u.instruments))
	for i, inst := range u.instruments {
		out[i] = inst.Code
	}
	return out
}
