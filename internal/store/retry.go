package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"ETFQuant/internal/model"
)

// RetryPolicy bounds MergeWithRetry.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is three attempts with jittered exponential waits from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second}
}

// MergeWithRetry repeats the whole read-merge-write on ErrVersionConflict, re-reading
// each time. Any other error stops immediately. It returns the attempts made.
func MergeWithRetry(ctx context.Context, m *Merger, snap *model.Snapshot, policy RetryPolicy) (*MergeResult, int, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	b.RandomizationFactor = 0.5

	attempts := 0
	op := func() (*MergeResult, error) {
		attempts++
		res, err := m.Merge(ctx, snap)
		if err != nil && !errors.Is(err, ErrVersionConflict) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.WithFields(logrus.Fields{
			"attempt": attempts,
			"wait":    wait.Round(time.Millisecond).String(),
		}).WithError(err).Warn("dataset changed during merge, retrying")
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithNotify(notify),
	)
	return res, attempts, err
}
