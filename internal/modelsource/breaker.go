package modelsource

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/model"
)

// BreakerSource wraps a Source so repeated failures (a wedged or
// disconnected motion controller) trip a circuit breaker instead of
// letting every Subscribe connection and every Command-mode caller queue
// up on the same failing SyncObjectModel/SubmitCode calls. Modeled on
// scrypster-memento's internal/llm/circuit_breaker.go, applied here to the
// model-source collaborator instead of an LLM backend.
type BreakerSource struct {
	inner   Source
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerSource wraps inner with a breaker that trips after 5
// consecutive failures and probes again after 10 seconds half-open.
func NewBreakerSource(inner Source) *BreakerSource {
	settings := gobreaker.Settings{
		Name:        "modelsource",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerSource{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerSource) Snapshot(ctx context.Context) (model.Snapshot, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Snapshot(ctx)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return result.(model.Snapshot), nil
}

func (b *BreakerSource) SubmitCode(ctx context.Context, channel CodeChannel, raw string) (string, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.SubmitCode(ctx, channel, raw)
	})
	if err != nil {
		return "", wrapBreakerErr(err)
	}
	return result.(string), nil
}

func (b *BreakerSource) Flush(ctx context.Context, channel CodeChannel) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.inner.Flush(ctx, channel)
	})
	if err != nil {
		return wrapBreakerErr(err)
	}
	return nil
}

func (b *BreakerSource) EvaluateExpression(ctx context.Context, channel CodeChannel, expr string) (any, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.EvaluateExpression(ctx, channel, expr)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return result, nil
}

func wrapBreakerErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return dcserr.New(dcserr.IoError, "motion controller link unavailable: %v", err)
	}
	return err
}
