package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ETFQuant/internal/logging"
	"ETFQuant/internal/model"
	"ETFQuant/internal/universe"
)

func testUniverse(t *testing.T) *universe.Universe {
	t.Helper()
	u, err := universe.New([]string{"510300", "159915", "512880"})
	require.NoError(t, err)
	return u
}

func row(date, code string, close float64) model.IndicatorRow {
	return model.IndicatorRow{
		Date:          date,
		Code:          code,
		Name:          "ETF" + code,
		ManagementFee: "0.50%",
		CustodyFee:    "0.10%",
		LatestClose:   model.Some(close),
		SMA60:         model.Value{},
		Relation:      model.RelationUnavailable,
		Cross:         model.CrossNone,
		DIF:           model.Value{},
		DEA:           model.Value{},
		Hist:          model.Value{},
		Turn:          model.TurnUnavailable,
	}
}

func snapshot(asOf string, rows ...model.IndicatorRow) *model.Snapshot {
	return &model.Snapshot{AsOf: asOf, Rows: rows, Total: len(rows)}
}

func codesAndDates(rows []model.IndicatorRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Date + "/" + r.Code
	}
	return out
}

func TestCodecRoundTrip(t *testing.T) {
	in := []model.IndicatorRow{
		{
			Date: "2024-05-10", Code: "159915", Name: "创业板ETF",
			ManagementFee: "0.50%", CustodyFee: "0.10%",
			LatestClose: model.Some(1.23456789), SMA60: model.Some(1.2),
			Relation: model.RelationAbove, Cross: model.CrossUp,
			DIF: model.Some(0.01234), DEA: model.Some(-0.005), Hist: model.Some(0.03468),
			Turn: model.TurnGreenToRed,
		},
		row("2024-05-10", "510300", 3.5),
	}
	for _, bom := range []bool{true, false} {
		data, err := MarshalRows(in, bom)
		require.NoError(t, err)
		assert.Equal(t, bom, bytes.HasPrefix(data, utf8BOM))

		out, err := UnmarshalRows(data)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, 1.2346, out[0].LatestClose.Float)
		assert.Equal(t, model.RelationAbove, out[0].Relation)
		assert.Equal(t, model.CrossUp, out[0].Cross)
		assert.Equal(t, model.TurnGreenToRed, out[0].Turn)
		assert.False(t, out[1].SMA60.Valid)
		assert.Equal(t, model.TurnUnavailable, out[1].Turn)
		assert.Equal(t, model.RelationUnavailable, out[1].Relation)
	}
}

func TestCodecHeaderAndEmptyCells(t *testing.T) {
	data, err := MarshalRows([]model.IndicatorRow{row("2024-05-10", "510300", 3.5)}, false)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, datasetHeader, lines[0])
	assert.Equal(t, "2024-05-10,510300,ETF510300,0.50%,0.10%,3.5,,N/A,,,,,N/A", lines[1])
}

func TestDecodePadsCodes(t *testing.T) {
	csv := "\ufeff日期,代码,名称,年管理费率,年托管费率,最新收盘价\n2024-05-10,1,某ETF,N/A,N/A,nan\n2024-05-10,159915,创业板ETF,0.50%,0.10%,2.1\n"
	rows, err := UnmarshalRows([]byte(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "000001", rows[0].Code)
	assert.False(t, rows[0].LatestClose.Valid)
	assert.Equal(t, 2.1, rows[1].LatestClose.Float)

	rows, err = UnmarshalRows(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMergeRows(t *testing.T) {
	u := testUniverse(t)
	existing := []model.IndicatorRow{
		row("2024-05-08", "159915", 1),
		row("2024-05-09", "510300", 1),
		row("2024-05-09", "159915", 1),
		row("2024-05-09", "999999", 1),
		row("2024-05-10", "510300", 1),
	}
	incoming := []model.IndicatorRow{
		row("2024-05-10", "512880", 2),
		row("2024-05-09", "159915", 2),
	}
	merged := MergeRows(existing, incoming, u)

	assert.Equal(t, []string{
		"2024-05-08/159915",
		"2024-05-09/159915",
		"2024-05-10/512880",
	}, codesAndDates(merged), "every existing row on an incoming date is replaced")
	assert.Len(t, existing, 5, "input untouched")
}

func TestSortRowsUnknownCodesLast(t *testing.T) {
	u := testUniverse(t)
	rows := []model.IndicatorRow{
		row("2024-05-10", "999999", 1),
		row("2024-05-10", "512880", 1),
		row("2024-05-09", "888888", 1),
		row("2024-05-10", "510300", 1),
		row("2024-05-10", "000001", 1),
	}
	SortRows(rows, u)
	assert.Equal(t, []string{
		"2024-05-09/888888",
		"2024-05-10/510300",
		"2024-05-10/512880",
		"2024-05-10/999999",
		"2024-05-10/000001",
	}, codesAndDates(rows))
}

func TestMergeIsIdempotent(t *testing.T) {
	u := testUniverse(t)
	blob := NewMemoryBlob()
	m := NewMerger(blob, u, logging.Discard())
	ctx := context.Background()

	_, err := m.Merge(ctx, snapshot("2024-05-09", row("2024-05-09", "510300", 1)))
	require.NoError(t, err)

	snap := snapshot("2024-05-10", row("2024-05-10", "159915", 2), row("2024-05-10", "510300", 3))
	_, err = m.Merge(ctx, snap)
	require.NoError(t, err)
	first, _, err := blob.Get(ctx)
	require.NoError(t, err)

	res, err := m.Merge(ctx, snap)
	require.NoError(t, err)
	second, _, err := blob.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 2, res.Replaced)
	assert.Len(t, res.Rows, 3)
	assert.Equal(t, "Update ETF data for 2024-05-10 (2 ETFs)", blob.Commits()[2])
}

func TestMergeMultiDateSnapshot(t *testing.T) {
	u := testUniverse(t)
	blob := NewMemoryBlob()
	m := NewMerger(blob, u, logging.Discard())
	ctx := context.Background()

	_, err := m.Merge(ctx, snapshot("2024-05-09",
		row("2024-05-09", "510300", 1), row("2024-05-09", "159915", 1), row("2024-05-09", "512880", 1)))
	require.NoError(t, err)

	// one instrument lags a day behind the rest
	res, err := m.Merge(ctx, snapshot("2024-05-10",
		row("2024-05-10", "510300", 2), row("2024-05-09", "159915", 2)))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-09/159915", "2024-05-10/510300"}, codesAndDates(res.Rows))
	assert.Equal(t, []string{"2024-05-10", "2024-05-09"}, res.Dates)
}

const datasetHeader = "日期,代码,名称,年管理费率,年托管费率,最新收盘价,60日均线,价格与60日均线关系,均线穿越,周MACD_DIF,周MACD_DEA,周MACD柱,MACD柱转向"

func computedRow(date, code string, close, sma, hist float64) model.IndicatorRow {
	r := row(date, code, close)
	r.SMA60 = model.Some(sma)
	r.Relation = model.RelationAbove
	r.Cross = model.CrossUp
	r.DIF = model.Some(0.0123)
	r.DEA = model.Some(0.0045)
	r.Hist = model.Some(hist)
	r.Turn = model.TurnGreenToRed
	return r
}

func TestMergeKeepsEarlierDaysIntact(t *testing.T) {
	u := testUniverse(t)
	blob := NewMemoryBlob()
	m := NewMerger(blob, u, logging.Discard())
	ctx := context.Background()

	_, err := m.Merge(ctx, snapshot("2024-05-09",
		computedRow("2024-05-09", "510300", 3.5, 3.4123, 0.0156),
		computedRow("2024-05-09", "159915", 1.25, 1.3, -0.0021)))
	require.NoError(t, err)

	for _, date := range []string{"2024-05-10", "2024-05-13"} {
		_, err = m.Merge(ctx, snapshot(date, computedRow(date, "510300", 3.6, 3.45, 0.02)))
		require.NoError(t, err)
	}

	data, _, err := blob.Get(ctx)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, datasetHeader, lines[0])
	assert.Equal(t, "2024-05-09,510300,ETF510300,0.50%,0.10%,3.5,3.4123,≥ 60日均线,上穿60日均线,0.0123,0.0045,0.0156,绿转红", lines[1])

	rows, err := UnmarshalRows(data)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	tests := []struct {
		code  string
		close float64
		sma   float64
		hist  float64
	}{
		{"510300", 3.5, 3.4123, 0.0156},
		{"159915", 1.25, 1.3, -0.0021},
	}
	for i, tt := range tests {
		got := rows[i]
		assert.Equal(t, "2024-05-09", got.Date)
		assert.Equal(t, tt.code, got.Code)
		assert.Equal(t, "ETF"+tt.code, got.Name)
		assert.Equal(t, "0.50%", got.ManagementFee)
		assert.Equal(t, model.Some(tt.close), got.LatestClose)
		assert.Equal(t, model.Some(tt.sma), got.SMA60)
		assert.Equal(t, model.Some(tt.hist), got.Hist)
		assert.Equal(t, model.Some(0.0123), got.DIF)
		assert.Equal(t, model.Some(0.0045), got.DEA)
		assert.Equal(t, model.RelationAbove, got.Relation)
		assert.Equal(t, model.CrossUp, got.Cross)
		assert.Equal(t, model.TurnGreenToRed, got.Turn)
	}
}

func TestMergeStaleVersionConflicts(t *testing.T) {
	u := testUniverse(t)
	blob := NewMemoryBlob()
	m := NewMerger(blob, u, logging.Discard())
	ctx := context.Background()

	blob.BeforePut = func() {
		blob.BeforePut = nil
		_, err := blob.Put(ctx, []byte("日期,代码\n"), "", "competing writer")
		require.NoError(t, err)
	}
	_, err := m.Merge(ctx, snapshot("2024-05-10", row("2024-05-10", "510300", 1)))
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, []string{"competing writer"}, blob.Commits())
}

func TestMergeWithRetryRecoversFromRace(t *testing.T) {
	u := testUniverse(t)
	blob := NewMemoryBlob()
	ctx := context.Background()
	a := NewMerger(blob, u, logging.Discard())
	b := NewMerger(blob, u, logging.Discard())

	blob.BeforePut = func() {
		blob.BeforePut = nil
		_, err := b.Merge(ctx, snapshot("2024-05-09", row("2024-05-09", "159915", 9)))
		require.NoError(t, err)
	}

	policy := RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	res, attempts, err := MergeWithRetry(ctx, a, snapshot("2024-05-10", row("2024-05-10", "510300", 1)), policy)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []string{"2024-05-09/159915", "2024-05-10/510300"}, codesAndDates(res.Rows))
}

func TestMergeWithRetryGivesUp(t *testing.T) {
	u := testUniverse(t)
	blob := NewMemoryBlob()
	ctx := context.Background()
	m := NewMerger(blob, u, logging.Discard())

	var hook func()
	hook = func() {
		blob.BeforePut = nil
		_, v, _ := blob.Get(ctx)
		_, _ = blob.Put(ctx, []byte("日期,代码\n"), v, "noise")
		blob.BeforePut = hook
	}
	blob.BeforePut = hook

	policy := RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	_, attempts, err := MergeWithRetry(ctx, m, snapshot("2024-05-10", row("2024-05-10", "510300", 1)), policy)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 2, attempts)
}

type brokenBlob struct{ calls int }

func (b *brokenBlob) Get(context.Context) ([]byte, string, error) {
	b.calls++
	return nil, "", errors.New("dial tcp: connection refused")
}

func (b *brokenBlob) Put(context.Context, []byte, string, string) (string, error) {
	return "", errors.New("unreachable")
}

func TestMergeWithRetryDoesNotRetryTransport(t *testing.T) {
	blob := &brokenBlob{}
	m := NewMerger(blob, testUniverse(t), logging.Discard())

	_, attempts, err := MergeWithRetry(context.Background(), m,
		snapshot("2024-05-10", row("2024-05-10", "510300", 1)), DefaultRetryPolicy())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, blob.calls)
}

func TestLocalCache(t *testing.T) {
	u := testUniverse(t)
	c := NewLocalCache(filepath.Join(t.TempDir(), "data", "etf.csv"))

	rows, err := c.Load()
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = c.MergeSnapshot(snapshot("2024-05-09", row("2024-05-09", "510300", 1)), u)
	require.NoError(t, err)
	merged, err := c.MergeSnapshot(snapshot("2024-05-10", row("2024-05-10", "159915", 2)), u)
	require.NoError(t, err)
	assert.Len(t, merged, 2)

	loaded, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, codesAndDates(merged), codesAndDates(loaded))
}
