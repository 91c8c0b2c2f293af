package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ETFQuant/internal/collector"
	"ETFQuant/internal/fees"
	"ETFQuant/internal/logging"
	"ETFQuant/internal/model"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// risingBars returns n weekday bars with strictly increasing closes.
func risingBars(n int) []model.OHLCV {
	bars := make([]model.OHLCV, 0, n)
	d := day0
	for i := 0; i < n; i++ {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		c := 1 + float64(i)*0.01
		bars = append(bars, model.OHLCV{Time: d, Open: c, High: c, Low: c, Close: c, Volume: 100})
		d = d.AddDate(0, 0, 1)
	}
	return bars
}

func instruments(codes ...string) []model.Instrument {
	out := make([]model.Instrument, len(codes))
	for i, c := range codes {
		out[i] = model.Instrument{Code: c, Index: i}
	}
	return out
}

type stubFees struct {
	fail map[string]bool
}

func (s stubFees) LookupFees(_ context.Context, code string) (fees.Fees, error) {
	if s.fail[code] {
		return fees.Unknown, errors.New("timeout")
	}
	return fees.Fees{Management: "0.50%", Custody: "0.10%"}, nil
}

type collectSink struct {
	mu     sync.Mutex
	events []Progress
}

func (c *collectSink) sink(p Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, p)
}

func TestRunEndToEnd(t *testing.T) {
	fetcher := &collector.MockFetcher{
		Series: map[string][]model.OHLCV{"159001": risingBars(65)},
		Fail:   map[string]bool{"510001": true},
	}
	o := NewOrchestrator(fetcher, collector.StaticNames{"159001": "测试ETF"}, stubFees{}, nil,
		Options{DailyWorkers: 4, FeeWorkers: 2, ProgressEvery: 1, CallTimeout: time.Second}, logging.Discard())

	sink := &collectSink{}
	snap, err := o.Run(context.Background(), instruments("159001", "510001"), sink.sink)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.Covered())
	assert.Equal(t, []string{"510001"}, snap.Failed)
	require.Len(t, snap.Rows, 1)

	row := snap.Rows[0]
	assert.Equal(t, "159001", row.Code)
	assert.Equal(t, "测试ETF", row.Name)
	assert.Equal(t, model.RelationAbove, row.Relation)
	assert.Equal(t, model.CrossNone, row.Cross)
	assert.Equal(t, "0.50%", row.ManagementFee)
	assert.Equal(t, risingBars(65)[64].Date(), row.Date)
	assert.Equal(t, row.Date, snap.AsOf)
	// 65 daily bars span 13 weeks, far short of the weekly MACD warm-up
	assert.False(t, row.Hist.Valid)
	assert.Equal(t, model.TurnUnavailable, row.Turn)

	require.NotEmpty(t, sink.events)
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, 1.0, last.Fraction)
	assert.Equal(t, PhaseDone, last.Phase)
	for i := 1; i < len(sink.events); i++ {
		assert.GreaterOrEqual(t, sink.events[i].Fraction, sink.events[i-1].Fraction)
	}
}

var phaseOrder = []Phase{PhaseNames, PhaseDaily, PhaseWeekly, PhaseFees, PhaseAssemble, PhaseDone}

func TestRunPhaseOrder(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	o := NewOrchestrator(&collector.MockFetcher{Bars: 80}, collector.StaticNames{}, stubFees{}, nil,
		Options{DailyWorkers: 2, FeeWorkers: 1, ProgressEvery: 1}, logger)

	sink := &collectSink{}
	_, err := o.Run(context.Background(), instruments("510300", "159915", "512880"), sink.sink)
	require.NoError(t, err)

	var entered []Phase
	for _, e := range hook.AllEntries() {
		if e.Message == "phase started" {
			entered = append(entered, Phase(e.Data["phase"].(string)))
		}
	}
	assert.Equal(t, phaseOrder, entered)

	// the sink may miss superseded updates but never sees phases out of order
	rank := make(map[Phase]int, len(phaseOrder))
	for i, p := range phaseOrder {
		rank[p] = i
	}
	var seen []Phase
	for _, ev := range sink.events {
		if len(seen) == 0 || seen[len(seen)-1] != ev.Phase {
			seen = append(seen, ev.Phase)
		}
	}
	require.NotEmpty(t, seen)
	assert.Equal(t, PhaseDone, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, rank[seen[i]], rank[seen[i-1]], "phase %q after %q", seen[i], seen[i-1])
	}
}

func TestRunFeeFailureKeepsRow(t *testing.T) {
	fetcher := &collector.MockFetcher{Bars: 80}
	o := NewOrchestrator(fetcher, nil, stubFees{fail: map[string]bool{"510300": true}}, nil,
		Options{}, logging.Discard())

	snap, err := o.Run(context.Background(), instruments("159915", "510300"), nil)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)

	assert.Equal(t, "159915", snap.Rows[0].Code)
	assert.Equal(t, "159915", snap.Rows[0].Name, "name falls back to the code")
	assert.Equal(t, "510300", snap.Rows[1].Code)
	assert.Equal(t, model.FeeUnknown, snap.Rows[1].ManagementFee)
	assert.Equal(t, model.FeeUnknown, snap.Rows[1].CustodyFee)
	assert.Equal(t, 1, snap.FeeUnknown)

	_, cached := o.FeeCache().Get("510300")
	assert.False(t, cached)
}

func TestRunPreservesUniverseOrder(t *testing.T) {
	codes := make([]string, 30)
	for i := range codes {
		codes[i] = fmt.Sprintf("51%04d", 30-i)
	}
	fetcher := &collector.MockFetcher{Bars: 70, Delay: time.Millisecond}
	o := NewOrchestrator(fetcher, nil, nil, nil, Options{DailyWorkers: 8, FeeWorkers: 3}, logging.Discard())

	snap, err := o.Run(context.Background(), instruments(codes...), nil)
	require.NoError(t, err)
	require.Len(t, snap.Rows, len(codes))
	for i, r := range snap.Rows {
		assert.Equal(t, codes[i], r.Code)
	}
}

// gaugeFetcher records the peak number of concurrent calls.
type gaugeFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeFetcher) Name() string { return "gauge" }

func (g *gaugeFetcher) FetchDailyBars(_ context.Context, _ model.Instrument) ([]model.OHLCV, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return risingBars(10), nil
}

func TestRunBoundsConcurrency(t *testing.T) {
	codes := make([]string, 40)
	for i := range codes {
		codes[i] = fmt.Sprintf("15%04d", i)
	}
	g := &gaugeFetcher{}
	o := NewOrchestrator(g, nil, nil, nil, Options{DailyWorkers: 3, FeeWorkers: 2}, logging.Discard())

	snap, err := o.Run(context.Background(), instruments(codes...), nil)
	require.NoError(t, err)
	assert.Equal(t, 40, snap.Covered())
	assert.LessOrEqual(t, g.peak.Load(), int32(3))
}

func TestRunTimeoutCountsAsUnavailable(t *testing.T) {
	fetcher := &collector.MockFetcher{Bars: 70, Delay: time.Second}
	o := NewOrchestrator(fetcher, nil, nil, nil, Options{CallTimeout: 20 * time.Millisecond}, logging.Discard())

	snap, err := o.Run(context.Background(), instruments("159915"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Covered())
	assert.Equal(t, []string{"159915"}, snap.Failed)
	assert.Empty(t, snap.AsOf)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := NewOrchestrator(&collector.MockFetcher{}, nil, nil, nil, Options{}, logging.Discard())

	_, err := o.Run(ctx, instruments("159915"), nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = o.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyUniverse)
}

func TestMajorityDate(t *testing.T) {
	rows := func(dates ...string) []model.IndicatorRow {
		out := make([]model.IndicatorRow, len(dates))
		for i, d := range dates {
			out[i] = model.IndicatorRow{Date: d}
		}
		return out
	}
	assert.Equal(t, "", MajorityDate(nil))
	assert.Equal(t, "2024-05-10", MajorityDate(rows("2024-05-09", "2024-05-10", "2024-05-10")))
	assert.Equal(t, "2024-05-09", MajorityDate(rows("2024-05-09", "2024-05-10")))
}

func TestEmitterNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	var got []Progress
	var mu sync.Mutex
	e := newEmitter(func(p Progress) {
		<-release
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 100; i++ {
			e.emit(float64(i)/100, PhaseDaily, "")
		}
		e.emit(0.2, PhaseDaily, "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow sink")
	}
	close(release)
	e.close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 3)
	assert.Equal(t, 1.0, got[len(got)-1].Fraction, "a late lower value is clamped")
}
