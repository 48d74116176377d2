package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"garagechat/backend/internal/metrics"
)

// RetryPolicy bounds the markRead retries.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// ReadReconciler pushes locally applied read marks to the service.
//
// Read state is applied to the cache immediately; the reconciler retries the
// server call with bounded exponential backoff. If every attempt fails the
// failure is logged as ErrReadSyncFailed and the server keeps counting the
// room unread until the next full resync. Consistency is best-effort.
type ReadReconciler struct {
	gw     Gateway
	policy RetryPolicy
	logger zerolog.Logger

	mu      sync.Mutex
	running map[string]bool // room -> re-run requested while in flight
	wg      sync.WaitGroup

	// OnGiveUp, when set, is called after the last failed attempt.
	OnGiveUp func(roomKey string, err error)
}

// NewReadReconciler creates a reconciler using gw.
func NewReadReconciler(gw Gateway, policy RetryPolicy, logger zerolog.Logger) *ReadReconciler {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &ReadReconciler{
		gw:      gw,
		policy:  policy,
		logger:  logger.With().Str("component", "read_reconciler").Logger(),
		running: make(map[string]bool),
	}
}

// Enqueue schedules a markRead for roomKey. A room already being reconciled
// is marked again once the current chain finishes, whatever its outcome.
func (r *ReadReconciler) Enqueue(ctx context.Context, roomKey string) {
	r.mu.Lock()
	if _, ok := r.running[roomKey]; ok {
		r.running[roomKey] = true
		r.mu.Unlock()
		return
	}
	r.running[roomKey] = false
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, roomKey)
}

// Wait blocks until no reconciliation is in flight.
func (r *ReadReconciler) Wait() {
	r.wg.Wait()
}

func (r *ReadReconciler) run(ctx context.Context, roomKey string) {
	defer r.wg.Done()

	for {
		err := r.markWithRetry(ctx, roomKey)

		// A request that arrived while the chain ran gets its own chain,
		// even when this one gave up.
		r.mu.Lock()
		again := r.running[roomKey] && ctx.Err() == nil
		if again {
			r.running[roomKey] = false
		} else {
			delete(r.running, roomKey)
		}
		r.mu.Unlock()

		if err != nil {
			r.logger.Warn().Err(err).Str("room", roomKey).Msg("giving up on markRead")
			if r.OnGiveUp != nil {
				r.OnGiveUp(roomKey, err)
			}
		}
		if !again {
			return
		}
	}
}

func (r *ReadReconciler) markWithRetry(ctx context.Context, roomKey string) error {
	var err error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if err = r.gw.MarkRead(ctx, roomKey); err == nil {
			return nil
		}
		if !errors.Is(err, ErrReadSyncFailed) {
			err = errors.Join(ErrReadSyncFailed, err)
		}
		if attempt == r.policy.Attempts {
			break
		}

		wait := r.policy.delay(attempt)
		r.logger.Debug().
			Err(err).
			Str("room", roomKey).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("markRead failed")
		metrics.ReadRetries.Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
