package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"ETFQuant/internal/model"
)

// Ordering gives each code its universe position. Unknown codes report false
// and sort after every known code.
type Ordering interface {
	IndexOf(code string) (int, bool)
}

// MergeRows replaces every existing row dated on a date present in incoming,
// appends incoming, and sorts by date then universe position. Inputs are not modified.
func MergeRows(existing, incoming []model.IndicatorRow, order Ordering) []model.IndicatorRow {
	replaced := make(map[string]bool)
	for _, r := range incoming {
		replaced[r.Date] = true
	}
	merged := make([]model.IndicatorRow, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if !replaced[r.Date] {
			merged = append(merged, r)
		}
	}
	merged = append(merged, incoming...)
	SortRows(merged, order)
	return merged
}

// SortRows stable-sorts rows by date, then universe position.
func SortRows(rows []model.IndicatorRow, order Ordering) {
	rank := func(code string) (int, bool) {
		if order == nil {
			return 0, false
		}
		return order.IndexOf(code)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		ri, okI := rank(rows[i].Code)
		rj, okJ := rank(rows[j].Code)
		if okI != okJ {
			return okI
		}
		return ri < rj
	})
}

// CommitMessage describes a merge of snap.
func CommitMessage(snap *model.Snapshot) string {
	return fmt.Sprintf("Update ETF data for %s (%d ETFs)", snap.AsOf, snap.Covered())
}

// MergeResult is the dataset as written by a successful merge.
type MergeResult struct {
	Rows     []model.IndicatorRow
	Version  string
	Replaced int
	Added    int
	// Dates are the trading days that were replaced wholesale.
	Dates []string
}

// Merger performs one read-modify-write of the dataset. It never retries;
// a stale version surfaces as ErrVersionConflict.
type Merger struct {
	blob   BlobStore
	order  Ordering
	logger *logrus.Logger
}

func NewMerger(blob BlobStore, order Ordering, logger *logrus.Logger) *Merger {
	if logger == nil {
		logger = logrus.New()
	}
	return &Merger{blob: blob, order: order, logger: logger}
}

// Read returns the current dataset and its version. A missing blob is an empty
// dataset with an empty version.
func (m *Merger) Read(ctx context.Context) ([]model.IndicatorRow, string, error) {
	data, version, err := m.blob.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return nil, "", err
	}
	rows, err := UnmarshalRows(data)
	if err != nil {
		return nil, "", err
	}
	return rows, version, nil
}

// Merge folds snap into the remote dataset, conditioned on the version it read.
func (m *Merger) Merge(ctx context.Context, snap *model.Snapshot) (*MergeResult, error) {
	existing, version, err := m.Read(ctx)
	if err != nil {
		return nil, err
	}
	merged := MergeRows(existing, snap.Rows, m.order)

	data, err := MarshalRows(merged, false)
	if err != nil {
		return nil, err
	}
	newVersion, err := m.blob.Put(ctx, data, version, CommitMessage(snap))
	if err != nil {
		if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return nil, err
	}

	res := &MergeResult{
		Rows:     merged,
		Version:  newVersion,
		Replaced: len(existing) + len(snap.Rows) - len(merged),
		Added:    len(snap.Rows),
		Dates:    snap.Dates(),
	}
	m.logger.WithFields(logrus.Fields{
		"as_of":    snap.AsOf,
		"rows":     len(merged),
		"replaced": res.Replaced,
		"dates":    strings.Join(res.Dates, ","),
		"version":  newVersion,
	}).Info("dataset merged")
	return res, nil
}
