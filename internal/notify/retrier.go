package notify

import (
	"context"
	"time"

	"jorfline/internal/logging"
	"jorfline/internal/repo"
)

// Retrier periodically re-offers undelivered notifications to the durable
// channels until they succeed or exhaust MaxAttempts. Live channels are
// skipped so connected sockets never see a frame twice.
type Retrier struct {
	Repo        repo.Repo
	Deliverer   Deliverer
	Interval    time.Duration
	Batch       int
	MaxAttempts int
	Now         func() time.Time
}

// Run blocks until ctx is cancelled. It returns at once when there is no
// durable channel to retry through.
func (r Retrier) Run(ctx context.Context) {
	if Durable(r.Deliverer) == nil {
		return
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce makes a single pass over the backlog.
func (r Retrier) RunOnce(ctx context.Context) Result {
	log := logging.Component("notify.retrier")
	d := Durable(r.Deliverer)
	if d == nil {
		return Result{}
	}
	max := r.MaxAttempts
	if max <= 0 {
		max = 5
	}
	pending, err := r.Repo.ListUndelivered(ctx, max, r.Batch)
	if err != nil {
		log.Error().Err(err).Msg("fetch undelivered notifications")
		return Result{}
	}
	if len(pending) == 0 {
		return Result{}
	}
	res := Dispatch(logging.WithContext(ctx, log), r.Repo, d, pending, r.Now)
	log.Info().Int("total", res.Total).Int("delivered", res.Delivered).Int("failed", res.Failed).Msg("redelivery pass")
	return res
}
