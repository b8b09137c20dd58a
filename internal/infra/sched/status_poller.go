// File: internal/infra/sched/status_poller.go
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vendor-payments/internal/domain/model"
	"vendor-payments/internal/infra/metrics"
)

// StatusFetcher is the minimal slice of the gateway a poller needs.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, intentID string) (model.IntentStatus, error)
}

// Poller repeatedly queries intent status until a terminal state is observed
// or the returned cancel func is invoked. One Poller can serve many intents;
// each Start call runs its own loop.
type Poller struct {
	gw       StatusFetcher
	interval time.Duration
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPoller(gw StatusFetcher, interval time.Duration, logger *zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{gw: gw, interval: interval, log: logger, now: time.Now}
}

// Start issues one immediate status fetch, then repeats on a fixed interval.
// Only one fetch is in flight at a time, so terminal statuses cannot arrive
// out of order within a single loop.
//
// Fetch failures are swallowed and retried on the next tick. A terminal
// status invokes onUpdate exactly once and stops the loop. Past expiresAt the
// loop terminates on its own: a "pending" reply, or any fetch failure, is
// treated as if the gateway had said "expired".
//
// The returned cancel func is idempotent; a fetch in flight at cancellation
// time completes but its result is discarded.
func (p *Poller) Start(intentID string, expiresAt time.Time, onUpdate func(model.IntentStatus)) (cancel func()) {
	ctx, stop := context.WithCancel(context.Background())
	var once sync.Once
	cancel = func() { once.Do(stop) }

	go p.loop(ctx, stop, intentID, expiresAt, onUpdate)
	return cancel
}

func (p *Poller) loop(ctx context.Context, stop context.CancelFunc, intentID string, expiresAt time.Time, onUpdate func(model.IntentStatus)) {
	defer stop()
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		status, err := p.gw.FetchStatus(ctx, intentID)
		if ctx.Err() != nil {
			// Cancelled while the fetch was in flight; discard the result.
			return
		}
		switch {
		case err != nil:
			metrics.IncPollError()
			if p.now().After(expiresAt) {
				// An unreachable gateway must not keep a dead intent polling
				// forever; expiry is inferred locally even without a reply.
				p.log.Info().Str("intent_id", intentID).Time("expires_at", expiresAt).Msg("intent past expiry with gateway unreachable; treating as expired")
				onUpdate(model.IntentStatusExpired)
				return
			}
			// Transient noise; the user never sees it.
			p.log.Debug().Str("intent_id", intentID).Err(err).Msg("status fetch failed; will retry")
		case status.Terminal():
			metrics.IncPollTick(string(status))
			onUpdate(status)
			return
		default:
			metrics.IncPollTick(string(status))
			if p.now().After(expiresAt) {
				// Gateway still says pending past expiry; infer expiry locally.
				p.log.Info().Str("intent_id", intentID).Time("expires_at", expiresAt).Msg("intent past expiry while pending; treating as expired")
				onUpdate(model.IntentStatusExpired)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
