package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oratio/bchhub.go/common"
)

// RetryPolicy bounds how often a TransientNetworkError is retried.
type RetryPolicy struct {
	Retries         uint64
	InitialInterval time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exponentialBackoff := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exponentialBackoff.InitialInterval = p.InitialInterval
	}
	exponentialBackoff.MaxInterval = time.Second * 5
	exponentialBackoff.MaxElapsedTime = time.Minute
	return backoff.WithContext(backoff.WithMaxRetries(exponentialBackoff, p.Retries), ctx)
}

// retryTransient runs op until it succeeds, fails with anything but a
// transient error, or the policy is exhausted.
func retryTransient[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		result, err := op()
		if err != nil && !common.IsTransient(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}, p.backOff(ctx))
}
