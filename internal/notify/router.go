package notify

import (
	"context"

	"jorfline/internal/directory"
	"jorfline/internal/domain"
	"jorfline/internal/logging"
	"jorfline/internal/workflow"
)

// Router turns a committed event into per-recipient notification records.
type Router struct {
	Directory directory.Directory
}

// Plan resolves recipients and builds one record each. It never fails:
// unknown events and directory errors yield an empty plan and a log line.
func (rt Router) Plan(ctx context.Context, evt workflow.Event) []domain.Notification {
	log := logging.FromContext(ctx).With().Str("event", string(evt.Kind)).Str("jorf_id", evt.Request.JorfID).Logger()
	m := metricsSingleton()
	route, ok := workflow.RouteFor(evt)
	if !ok {
		log.Warn().Msg("no notification route for event")
		m.zeroRecipients.WithLabelValues(string(evt.Kind), "unknown_event").Inc()
		return nil
	}
	recipients, err := rt.recipients(ctx, route.Audience, evt.Request)
	if err != nil {
		uerr := workflow.UpstreamDependencyError{Dependency: "directory", Err: err}
		log.Error().Err(uerr).Msg("recipient resolution failed; nobody notified")
		m.zeroRecipients.WithLabelValues(string(evt.Kind), "upstream_error").Inc()
		return nil
	}
	if len(recipients) == 0 {
		log.Info().Msg("event resolved to zero recipients")
		m.zeroRecipients.WithLabelValues(string(evt.Kind), "no_recipients").Inc()
		return nil
	}
	notes := make([]domain.Notification, 0, len(recipients))
	for _, id := range recipients {
		if n, ok := workflow.BuildNotification(evt, id); ok {
			notes = append(notes, n)
		}
	}
	m.routed.WithLabelValues(string(evt.Kind)).Add(float64(len(notes)))
	return notes
}

func (rt Router) recipients(ctx context.Context, a workflow.Audience, r domain.Request) ([]string, error) {
	var ids []string
	if a.Has(workflow.AudienceApprovers) {
		if rt.Directory == nil {
			return nil, errNoDirectory
		}
		approvers, err := rt.Directory.Approvers(ctx, r.RequestorID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, approvers...)
	}
	if a.Has(workflow.AudienceCoordinators) {
		if rt.Directory == nil {
			return nil, errNoDirectory
		}
		coords, err := rt.Directory.FacilitiesCoordinators(ctx)
		if err != nil {
			return nil, err
		}
		ids = append(ids, coords...)
	}
	if a.Has(workflow.AudienceHandlers) {
		ids = append(ids, r.HandledBy...)
	}
	if a.Has(workflow.AudienceRequestor) {
		ids = append(ids, r.RequestorID)
	}
	return workflow.Dedupe(ids), nil
}
