package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"quill/internal/logging"
	"quill/internal/services"
)

// maxServerDelay caps a Retry-After hint so a misbehaving server cannot stall
// a run indefinitely.
const maxServerDelay = 2 * time.Minute

// hintedBackOff waits at least as long as the server asked before the next
// attempt.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next != backoff.Stop && h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}

func (p *Pipeline) newBackOff() *hintedBackOff {
	exp := backoff.NewExponentialBackOff()
	if p.settings.Retry.InitialDelay > 0 {
		exp.InitialInterval = p.settings.Retry.InitialDelay
	}
	if p.settings.Retry.MaxDelay > 0 {
		exp.MaxInterval = p.settings.Retry.MaxDelay
	}
	return &hintedBackOff{BackOff: exp}
}

// call runs op under the retry policy. Each attempt gets a context detached
// from cancellation with its own timeout, so an in-flight request finishes;
// cancellation is honoured between attempts.
func (r *run) call(stage Stage, timeout time.Duration, op func(ctx context.Context) (string, error)) (string, error) {
	b := r.p.newBackOff()
	attempt := 0
	operation := func() (string, error) {
		attempt++
		callCtx := context.WithoutCancel(services.WithStage(r.ctx, string(stage)))
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(callCtx, timeout)
		} else {
			callCtx, cancel = context.WithCancel(callCtx)
		}
		defer cancel()

		out, err := op(callCtx)
		if err == nil {
			return out, nil
		}
		if !services.Retryable(err) {
			return "", backoff.Permanent(err)
		}
		if delay, ok := services.RetryAfterFrom(err); ok {
			b.hint = min(delay, maxServerDelay)
		}
		return "", err
	}
	notify := func(err error, delay time.Duration) {
		r.logger.Warn("transient failure; retrying",
			logging.String(logging.FieldStage, string(stage)),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.String(logging.FieldErrorHint, "the request is retried automatically"),
		)
		r.event(Event{Type: EventRetry, Stage: stage, Attempt: attempt, Delay: delay, Err: err})
	}
	return backoff.Retry(r.ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.p.settings.Retry.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}
