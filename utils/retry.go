package utils

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Retry calls op with exponential backoff until it succeeds, returns an
// error wrapped with backoff.Permanent, ctx is done or maxElapsed passes.
// A maxElapsed of zero disables retrying. The returned error is never a
// *backoff.PermanentError.
func Retry(ctx context.Context, maxElapsed time.Duration, logger *zap.Logger, op func() error) error {
	if maxElapsed <= 0 {
		return unwrapPermanent(op())
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	notify := func(err error, wait time.Duration) {
		if logger != nil {
			logger.Warn("retrying after error", zap.Error(err), zap.Duration("wait", wait))
		}
	}
	return unwrapPermanent(backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify))
}

func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
