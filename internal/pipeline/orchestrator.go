// Package pipeline runs one daily fetch across the instrument universe and folds
// the per-instrument results into a dated snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ETFQuant/internal/calculator"
	"ETFQuant/internal/collector"
	"ETFQuant/internal/fees"
	"ETFQuant/internal/model"
)

// ErrEmptyUniverse is returned when Run is given no instruments.
var ErrEmptyUniverse = errors.New("empty instrument universe")

// Options sizes the worker pools. FeeWorkers should not exceed DailyWorkers.
type Options struct {
	DailyWorkers  int
	FeeWorkers    int
	ProgressEvery int
	CallTimeout   time.Duration
}

// DefaultOptions returns the pool widths used in production.
func DefaultOptions() Options {
	return Options{
		DailyWorkers:  10,
		FeeWorkers:    8,
		ProgressEvery: 50,
		CallTimeout:   20 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DailyWorkers <= 0 {
		o.DailyWorkers = d.DailyWorkers
	}
	if o.FeeWorkers <= 0 {
		o.FeeWorkers = d.FeeWorkers
	}
	if o.FeeWorkers > o.DailyWorkers {
		o.FeeWorkers = o.DailyWorkers
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = d.ProgressEvery
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	return o
}

// Orchestrator drives the fetch phases. Names and FeeSource are optional.
type Orchestrator struct {
	fetcher   collector.Fetcher
	names     collector.NameResolver
	feeSource fees.Source
	feeCache  *fees.Cache
	opts      Options
	logger    *logrus.Logger
}

// NewOrchestrator wires the collaborators. A nil cache starts empty.
func NewOrchestrator(fetcher collector.Fetcher, names collector.NameResolver, feeSource fees.Source,
	feeCache *fees.Cache, opts Options, logger *logrus.Logger) *Orchestrator {
	if feeCache == nil {
		feeCache = fees.NewCache(nil)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		fetcher:   fetcher,
		names:     names,
		feeSource: feeSource,
		feeCache:  feeCache,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// FeeCache exposes the run cache so callers can persist it after a run.
func (o *Orchestrator) FeeCache() *fees.Cache {
	return o.feeCache
}

// instrumentState carries one instrument through the phases.
type instrumentState struct {
	inst   model.Instrument
	daily  []model.OHLCV
	weekly []model.OHLCV
	fees   fees.Fees
	ok     bool
}

// Run executes every phase and returns the snapshot. Per-instrument failures only
// reduce coverage. The returned error is non-nil only for an empty universe or
// when ctx is cancelled; cancellation is observed between phases and before
// launching new tasks, and in-flight calls run to their own timeout.
func (o *Orchestrator) Run(ctx context.Context, instruments []model.Instrument, sink Sink) (*model.Snapshot, error) {
	if len(instruments) == 0 {
		return nil, ErrEmptyUniverse
	}
	started := time.Now()
	em := newEmitter(sink)
	defer em.close()

	states := make([]*instrumentState, len(instruments))
	for i, inst := range instruments {
		states[i] = &instrumentState{inst: inst, fees: fees.Unknown}
	}

	// names
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.enter(em, fracNames, PhaseNames, string(PhaseNames))
	names := o.resolveNames(ctx)

	// daily
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.enter(em, fracDailyFrom, PhaseDaily, string(PhaseDaily))
	o.fetchDaily(ctx, states, em)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var live []*instrumentState
	var failed []string
	for _, st := range states {
		if st.ok {
			live = append(live, st)
		} else {
			failed = append(failed, st.inst.Code)
		}
	}
	o.logger.WithFields(logrus.Fields{
		"phase":     "daily",
		"succeeded": len(live),
		"total":     len(states),
	}).Infof("daily fetch: %d/%d succeeded", len(live), len(states))

	// weekly
	o.enter(em, fracWeekly, PhaseWeekly, string(PhaseWeekly))
	for _, st := range live {
		st.weekly = calculator.ToWeekly(st.daily)
	}

	// fees
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.enter(em, fracFeesFrom, PhaseFees, string(PhaseFees))
	o.lookupFees(ctx, live, em)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// assemble
	o.enter(em, fracAssemble, PhaseAssemble, string(PhaseAssemble))
	snap := &model.Snapshot{Total: len(instruments), Failed: failed}
	for _, st := range live {
		name := names[st.inst.Code]
		if name == "" {
			name = st.inst.Code
		}
		ind := calculator.Evaluate(st.daily, st.weekly)
		date := st.daily[len(st.daily)-1].Date()
		row := model.NewIndicatorRow(date, st.inst.Code, name, st.fees.Management, st.fees.Custody, ind)
		snap.Rows = append(snap.Rows, row)
		if st.fees.IsUnknown() {
			snap.FeeUnknown++
		}
	}
	snap.AsOf = MajorityDate(snap.Rows)

	o.logger.WithFields(logrus.Fields{
		"as_of":       snap.AsOf,
		"covered":     snap.Covered(),
		"total":       snap.Total,
		"fee_unknown": snap.FeeUnknown,
		"elapsed":     time.Since(started).Round(time.Millisecond).String(),
	}).Info("snapshot assembled")

	o.enter(em, fracDone, PhaseDone, fmt.Sprintf("%d/%d instruments covered", snap.Covered(), snap.Total))
	return snap, nil
}

func (o *Orchestrator) enter(em *emitter, fraction float64, phase Phase, msg string) {
	o.logger.WithField("phase", string(phase)).Debug("phase started")
	em.emit(fraction, phase, msg)
}

// callContext detaches a per-call timeout from run cancellation.
func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.opts.CallTimeout)
}

func (o *Orchestrator) resolveNames(ctx context.Context) map[string]string {
	if o.names == nil {
		return map[string]string{}
	}
	cctx, cancel := o.callContext(ctx)
	defer cancel()
	names, err := o.names.ResolveNames(cctx)
	if err != nil {
		o.logger.WithError(err).WithField("phase", "names").Warn("name resolution failed, falling back to codes")
		return map[string]string{}
	}
	return names
}

func (o *Orchestrator) fetchDaily(ctx context.Context, states []*instrumentState, em *emitter) {
	counter := &phaseCounter{
		e: em, phase: PhaseDaily, from: fracDailyFrom, to: fracDailyTo,
		total: len(states), every: o.opts.ProgressEvery,
	}
	var g errgroup.Group
	g.SetLimit(o.opts.DailyWorkers)
	for _, st := range states {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer counter.tick()
			cctx, cancel := o.callContext(ctx)
			defer cancel()
			bars, err := o.fetcher.FetchDailyBars(cctx, st.inst)
			if err != nil {
				o.logger.WithFields(logrus.Fields{"code": st.inst.Code, "source": o.fetcher.Name()}).
					WithError(err).Debug("daily fetch failed")
				return nil
			}
			if len(bars) == 0 {
				o.logger.WithField("code", st.inst.Code).Debug("daily fetch returned no bars")
				return nil
			}
			st.daily = bars
			st.ok = true
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) lookupFees(ctx context.Context, live []*instrumentState, em *emitter) {
	counter := &phaseCounter{
		e: em, phase: PhaseFees, from: fracFeesFrom, to: fracFeesTo,
		total: len(live), every: o.opts.ProgressEvery,
	}
	var g errgroup.Group
	g.SetLimit(o.opts.FeeWorkers)
	for _, st := range live {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer counter.tick()
			if o.feeSource == nil {
				st.fees = o.feeCache.FeesOrUnknown(st.inst.Code)
				return nil
			}
			cctx, cancel := o.callContext(ctx)
			defer cancel()
			f, err := o.feeCache.Lookup(cctx, o.feeSource, st.inst.Code)
			if err != nil {
				o.logger.WithField("code", st.inst.Code).WithError(err).Debug("fee lookup failed")
			}
			st.fees = f
			return nil
		})
	}
	_ = g.Wait()
}

// MajorityDate returns the most common row date. Ties go to the date of the
// earliest row, so rows must be in universe order.
func MajorityDate(rows []model.IndicatorRow) string {
	counts := make(map[string]int)
	var best string
	for _, r := range rows {
		counts[r.Date]++
	}
	for _, r := range rows {
		if best == "" || counts[r.Date] > counts[best] {
			best = r.Date
		}
	}
	return best
}
