// Package notify resolves notification recipients and hands records to
// delivery channels. Delivery is best-effort; the inbox rows are durable.
package notify

import (
	"context"
	"errors"
	"time"

	"jorfline/internal/domain"
	"jorfline/internal/logging"
	"jorfline/internal/repo"
)

// Deliverer hands one notification to a transport.
type Deliverer interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// Func adapts a function to Deliverer.
type Func func(ctx context.Context, n domain.Notification) error

func (f Func) Deliver(ctx context.Context, n domain.Notification) error { return f(ctx, n) }

// Multi fans a notification out to every channel and joins the failures.
type Multi []Deliverer

func (m Multi) Deliver(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Live marks a push-only channel. Subscribers that miss a frame catch up from
// the inbox, so a failed push never leaves the record undelivered and the
// retrier never re-sends through it.
type Live struct {
	Deliverer
}

func (l Live) Deliver(ctx context.Context, n domain.Notification) error {
	if l.Deliverer == nil {
		return nil
	}
	if err := l.Deliverer.Deliver(ctx, n); err != nil {
		log := logging.FromContext(ctx)
		log.Debug().Err(err).Str("notification_id", n.ID).Str("recipient", n.Recipient).Msg("live push dropped")
	}
	return nil
}

// Durable strips Live channels from d. It returns nil when nothing is left
// to redeliver through.
func Durable(d Deliverer) Deliverer {
	switch v := d.(type) {
	case nil:
		return nil
	case Live:
		return nil
	case Multi:
		var out Multi
		for _, c := range v {
			if c = Durable(c); c != nil {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return d
	}
}

// Result summarizes one fan-out.
type Result struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Dispatch delivers each notification independently and records the attempt.
// Failures are logged and counted, never returned.
func Dispatch(ctx context.Context, r repo.Repo, d Deliverer, notes []domain.Notification, now func() time.Time) Result {
	res := Result{Total: len(notes)}
	if d == nil || len(notes) == 0 {
		return res
	}
	if now == nil {
		now = time.Now
	}
	log := logging.FromContext(ctx)
	m := metricsSingleton()
	for _, n := range notes {
		err := d.Deliver(ctx, n)
		delivered := err == nil
		if delivered {
			res.Delivered++
			m.deliveries.WithLabelValues("delivered").Inc()
		} else {
			res.Failed++
			m.deliveries.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("notification_id", n.ID).Str("recipient", n.Recipient).Str("jorf_id", n.JorfID).Msg("notification delivery failed")
		}
		if rerr := r.RecordDelivery(ctx, n.ID, delivered, now().UTC().Format(time.RFC3339)); rerr != nil {
			log.Error().Err(rerr).Str("notification_id", n.ID).Msg("record delivery attempt")
		}
	}
	return res
}
