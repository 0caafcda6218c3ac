// Package retry runs external calls with a per-attempt timeout and bounded
// exponential backoff. Only transient failures are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/metrics"
)

// Policy bounds one external service.
type Policy struct {
	Service      string // metrics label
	Timeout      time.Duration
	MaxRetries   int // 0 = single attempt
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Logger       *zap.Logger
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// TransientStatus reports whether an HTTP status is worth retrying.
// Every 4xx, 429 included, is permanent.
func TransientStatus(code int) bool {
	return code >= 500
}

// Do runs fn until it succeeds, returns a Permanent error, exhausts MaxRetries
// or ctx is done. fn receives a context bounded by Timeout.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()

	op := func() error {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := fn(attemptCtx)
		if err != nil && ctx.Err() != nil {
			// Caller gave up; retrying cannot help.
			return Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.ExternalRetriesTotal.WithLabelValues(p.Service).Inc()
		if p.Logger != nil {
			p.Logger.Warn("retrying external call",
				zap.String("service", p.Service),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(p.backOff(), ctx), notify)

	metrics.ExternalRequestDuration.WithLabelValues(p.Service).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExternalRequestsTotal.WithLabelValues(p.Service, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	metrics.ExternalRequestsTotal.WithLabelValues(p.Service, "ok").Inc()
	return nil
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}
