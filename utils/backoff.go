package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"
)

// DefaultRPCTimeout bounds a single remote call
const DefaultRPCTimeout = 10 * time.Second

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// WithRetriesTimeout uses an exponential backoff to run the operation until it
// succeeds, returns a permanent error, ctx is done or timeout limit has been
// reached.
func WithRetriesTimeout(
	ctx context.Context,
	logger log.Logger,
	operation backoff.Operation,
	timeout time.Duration,
	logMessage string,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(timeout),
	)
	notify := func(err error, duration time.Duration) {
		logger.Warn(
			logMessage+" failed, retrying...",
			log.Err(err),
			log.Stringer("retryIn", duration),
		)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(expBackOff, ctx), notify)
}
