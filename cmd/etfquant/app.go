package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ETFQuant/internal/collector"
	"ETFQuant/internal/config"
	"ETFQuant/internal/fees"
	"ETFQuant/internal/pipeline"
	"ETFQuant/internal/recorder"
	"ETFQuant/internal/store"
	"ETFQuant/internal/universe"
	"ETFQuant/internal/updater"
)

// app owns the long-lived resources of one process.
type app struct {
	updater *updater.Updater
	closers []io.Closer
}

func newApp(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	u, err := universe.Load(cfg.Universe.Codes, cfg.Universe.File)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	a := &app{}

	fetcher := collector.NewFetcher(cfg.Source.Kind, cfg.Source.Proxy, cfg.Source.Timeout)
	logger.WithFields(logrus.Fields{"source": fetcher.Name(), "instruments": u.Len()}).Info("universe loaded")

	var feeStore fees.Store
	if cfg.Fees.RedisAddr != "" {
		rs := fees.NewRedisStore(cfg.Fees.RedisAddr)
		a.closers = append(a.closers, rs)
		feeStore = rs
		logger.WithField("addr", cfg.Fees.RedisAddr).Info("fee cache in redis")
	} else {
		feeStore = fees.NewFileStore(cfg.Fees.CacheFile)
	}

	var merger *store.Merger
	if cfg.RemoteEnabled() {
		gh := store.NewGitHubStore(store.GitHubConfig{
			Owner:  cfg.GitHub.Owner,
			Repo:   cfg.GitHub.Repo,
			Path:   cfg.GitHub.Path,
			Branch: cfg.GitHub.Branch,
			Token:  cfg.GitHub.Token,
		}, nil, logger)
		merger = store.NewMerger(gh, u, logger)
	} else {
		logger.Warn("github storage not configured, only the local cache will be updated")
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.WithError(err).Warn("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			a.closers = append(a.closers, sr)
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	a.updater = updater.New(updater.Deps{
		Universe:  u,
		Fetcher:   fetcher,
		Names:     collector.NewEastmoneyNames(cfg.Source.Proxy, cfg.Source.Timeout),
		FeeSource: fees.NewEastmoneySource(cfg.Source.Proxy, cfg.Fees.Timeout),
		FeeStore:  feeStore,
		Options: pipeline.Options{
			DailyWorkers:  cfg.Pipeline.DailyWorkers,
			FeeWorkers:    cfg.Pipeline.FeeWorkers,
			ProgressEvery: cfg.Pipeline.ProgressEvery,
			CallTimeout:   cfg.Pipeline.CallTimeout,
		},
		Merger: merger,
		Local:  store.NewLocalCache(cfg.Storage.LocalCSV),
		Retry: store.RetryPolicy{
			MaxAttempts:     cfg.Storage.MaxAttempts,
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
		},
		ArchiveDir: cfg.Storage.ParquetDir,
		Recorder:   rec,
		Logger:     logger,
	})
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

const barWidth = 30

// progressBar draws a single-line bar on w.
func progressBar(w io.Writer) pipeline.Sink {
	var mu sync.Mutex
	return func(p pipeline.Progress) {
		mu.Lock()
		defer mu.Unlock()
		filled := int(p.Fraction * barWidth)
		msg := p.Message
		if msg == "" {
			msg = string(p.Phase)
		}
		fmt.Fprintf(w, "\r[%s%s] %3.0f%% %-40s",
			strings.Repeat("#", filled), strings.Repeat(" ", barWidth-filled), p.Fraction*100, msg)
	}
}
