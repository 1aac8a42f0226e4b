package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/llmgate/llmgate/internal/kv"
	"github.com/llmgate/llmgate/pkg/models"
)

// WaitTimeout bounds how long the HTTP front-end waits for a job's result.
const WaitTimeout = 180 * time.Second

// pollInterval is deliberately simple: a keyspace-notification subscription
// could replace this without changing any caller-visible semantics.
const pollInterval = 100 * time.Millisecond

// ErrResultTimeout is returned when the wall-clock deadline elapses before a
// result slot appears. The job may still complete later; its result sits in
// the slot until TTL expiry.
var ErrResultTimeout = errors.New("timeout")

// waitForResult polls result:{jobId} until a value appears or the deadline
// is reached. The caller MUST pass a context built by withWaitDeadline —
// one with no deadline or cancellation of its own — so this loop's
// time.Now().After(deadline) check is the only thing that can time it out;
// an early client-observed disconnect must never abort the wait.
func waitForResult(ctx context.Context, gw *kv.Gateway, jobID string) (*models.ResultEnvelope, error) {
	deadline := time.Now().Add(WaitTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		raw, err := gw.Get(ctx, "result:"+jobID)
		if err == nil {
			_ = gw.Del(ctx, "result:"+jobID)
			var env models.ResultEnvelope
			if uerr := json.Unmarshal([]byte(raw), &env); uerr != nil {
				return nil, uerr
			}
			return &env, nil
		}
		if err != kv.ErrNil {
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, ErrResultTimeout
		}

		<-ticker.C
	}
}

// valuesOnlyContext carries ctx's values (request ID, trace span, ...) but
// reports no deadline and never cancels, so a client disconnect observed by
// net/http — or a context.WithTimeout further up the call chain — can't
// reach gw.Get and short-circuit the wait with a spurious
// context.DeadlineExceeded. waitForResult's own time.Now().After(deadline)
// check is the sole owner of the 180s timeout.
type valuesOnlyContext struct {
	context.Context
}

func (valuesOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valuesOnlyContext) Done() <-chan struct{}       { return nil }
func (valuesOnlyContext) Err() error                  { return nil }

// withWaitDeadline detaches ctx from its parent's cancellation and deadline
// (e.g. the HTTP request's client-disconnect signal) while keeping its
// values. The returned CancelFunc is a no-op; it exists only so callers can
// `defer cancel()` uniformly alongside other context constructors.
func withWaitDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return valuesOnlyContext{ctx}, func() {}
}
