package provision

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// DefaultMaxTries bounds how often a lost creation race is re-read.
const DefaultMaxTries = 5

// retryOnConflict runs op until it succeeds, fails with anything other than
// domain.ErrConflict, or maxTries is exhausted.
func retryOnConflict[T any](ctx context.Context, maxTries uint, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))
}
