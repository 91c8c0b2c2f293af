// Package updater performs one complete daily update: fetch, compute, persist, record.
package updater

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ETFQuant/internal/archive"
	"ETFQuant/internal/collector"
	"ETFQuant/internal/fees"
	"ETFQuant/internal/model"
	"ETFQuant/internal/pipeline"
	"ETFQuant/internal/recorder"
	"ETFQuant/internal/store"
	"ETFQuant/internal/universe"
)

// Outcome is what happened to the snapshot after it was computed.
type Outcome string

const (
	OutcomePersisted        Outcome = "persisted"
	OutcomeConflict         Outcome = "conflict"
	OutcomeTransportFailure Outcome = "transport_failure"
	OutcomeLocalOnly        Outcome = "local_only"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeAborted          Outcome = "aborted"
)

// Report describes one run. Persistence failures live here, not in the error
// returned by Run, since every instrument result is still valid.
type Report struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Snapshot    *model.Snapshot
	Stats       Stats
	Outcome     Outcome
	Attempts    int
	DatasetRows int
	ArchivePath string
	Err         error
}

// Deps are the collaborators of an Updater. Merger, FeeStore, FeeSource, Names and
// Recorder are optional.
type Deps struct {
	Universe   *universe.Universe
	Fetcher    collector.Fetcher
	Names      collector.NameResolver
	FeeSource  fees.Source
	FeeStore   fees.Store
	Options    pipeline.Options
	Merger     *store.Merger
	Local      *store.LocalCache
	Retry      store.RetryPolicy
	ArchiveDir string
	Recorder   recorder.Recorder
	Logger     *logrus.Logger
}

// Updater runs daily updates. It is safe to call Run repeatedly; each call gets a
// fresh fee cache seeded from FeeStore.
type Updater struct {
	deps Deps
	now  func() time.Time
}

func New(deps Deps) *Updater {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = store.DefaultRetryPolicy()
	}
	return &Updater{deps: deps, now: time.Now}
}

// Run executes one update. The error is non-nil only when the pipeline itself
// was aborted; the report is always returned.
func (u *Updater) Run(ctx context.Context, sink pipeline.Sink) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), StartedAt: u.now()}
	log := u.deps.Logger.WithField("run_id", rep.RunID)
	log.WithField("instruments", u.deps.Universe.Len()).Info("daily update started")

	cache := fees.NewCache(u.loadFees(ctx, log))
	log.WithFields(logrus.Fields{
		"cached":  cache.Len(),
		"missing": len(cache.Missing(u.deps.Universe.Codes())),
	}).Info("fee cache seeded")
	orch := pipeline.NewOrchestrator(u.deps.Fetcher, u.deps.Names, u.deps.FeeSource, cache,
		u.deps.Options, u.deps.Logger)

	snap, err := orch.Run(ctx, u.deps.Universe.Instruments(), sink)
	if err != nil {
		rep.Outcome = OutcomeAborted
		rep.Err = err
		u.finish(rep, log)
		return rep, err
	}
	rep.Snapshot = snap
	rep.Stats = ComputeStats(snap.Rows)
	u.saveFees(ctx, cache, log)

	if snap.Covered() == 0 {
		log.Warn("no instrument produced a row, nothing to persist")
		rep.Outcome = OutcomeSkipped
		u.finish(rep, log)
		return rep, nil
	}

	if u.deps.ArchiveDir != "" {
		path, err := archive.WriteSnapshot(u.deps.ArchiveDir, snap)
		if err != nil {
			log.WithError(err).Warn("parquet archive failed")
		} else {
			rep.ArchivePath = path
		}
	}

	u.persist(ctx, rep, log)
	u.finish(rep, log)
	return rep, nil
}

func (u *Updater) persist(ctx context.Context, rep *Report, log *logrus.Entry) {
	snap := rep.Snapshot
	if u.deps.Merger == nil {
		rep.Outcome = OutcomeLocalOnly
		u.mergeLocal(rep, log)
		return
	}

	res, attempts, err := store.MergeWithRetry(ctx, u.deps.Merger, snap, u.deps.Retry)
	rep.Attempts = attempts
	if err != nil {
		rep.Err = err
		if errors.Is(err, store.ErrVersionConflict) {
			rep.Outcome = OutcomeConflict
		} else {
			rep.Outcome = OutcomeTransportFailure
		}
		log.WithError(err).WithField("attempts", attempts).Error("remote merge failed, keeping local copy")
		u.mergeLocal(rep, log)
		return
	}

	rep.Outcome = OutcomePersisted
	rep.DatasetRows = len(res.Rows)
	if u.deps.Local != nil {
		if err := u.deps.Local.Save(res.Rows); err != nil {
			log.WithError(err).Warn("local cache write failed")
		}
	}
}

// mergeLocal folds the snapshot into the local cache when the remote was not written.
func (u *Updater) mergeLocal(rep *Report, log *logrus.Entry) {
	if u.deps.Local == nil {
		return
	}
	rows, err := u.deps.Local.MergeSnapshot(rep.Snapshot, u.deps.Universe)
	if err != nil {
		log.WithError(err).Warn("local cache merge failed")
		return
	}
	if rep.Outcome == OutcomeLocalOnly {
		rep.DatasetRows = len(rows)
	}
}

func (u *Updater) loadFees(ctx context.Context, log *logrus.Entry) map[string]fees.Fees {
	if u.deps.FeeStore == nil {
		return nil
	}
	seed, err := u.deps.FeeStore.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("fee cache load failed, starting empty")
		return nil
	}
	return seed
}

func (u *Updater) saveFees(ctx context.Context, cache *fees.Cache, log *logrus.Entry) {
	if u.deps.FeeStore == nil {
		return
	}
	if err := u.deps.FeeStore.Save(ctx, cache.Snapshot()); err != nil {
		log.WithError(err).Warn("fee cache save failed")
	}
}

func (u *Updater) finish(rep *Report, log *logrus.Entry) {
	rep.FinishedAt = u.now()
	rec := &recorder.RunRecord{
		RunID:       rep.RunID,
		StartedAt:   rep.StartedAt,
		FinishedAt:  rep.FinishedAt,
		Outcome:     string(rep.Outcome),
		Attempts:    rep.Attempts,
		DatasetRows: rep.DatasetRows,
	}
	if rep.Snapshot != nil {
		rec.AsOf = rep.Snapshot.AsOf
		rec.Total = rep.Snapshot.Total
		rec.Covered = rep.Snapshot.Covered()
		rec.FeeUnknown = rep.Snapshot.FeeUnknown
		rec.FailedCodes = rep.Snapshot.Failed
	} else {
		rec.Total = u.deps.Universe.Len()
	}
	if rep.Err != nil {
		rec.Error = rep.Err.Error()
	}
	if err := u.deps.Recorder.RecordRun(rec); err != nil {
		log.WithError(err).Warn("record run failed")
	}
	log.WithFields(logrus.Fields{
		"outcome":  rep.Outcome,
		"covered":  rec.Covered,
		"total":    rec.Total,
		"attempts": rep.Attempts,
		"elapsed":  rec.Duration().Round(time.Millisecond).String(),
	}).Info("daily update finished")
}
