package workflow

import (
	"fmt"
	"strings"

	"jorfline/internal/domain"
)

// EventKind names a completed lifecycle step.
type EventKind string

const (
	EventCreated      EventKind = "CREATED"
	EventApproved     EventKind = "APPROVED"
	EventOngoing      EventKind = "ONGOING"
	EventDone         EventKind = "DONE"
	EventAcknowledged EventKind = "ACKNOWLEDGED"
	EventCancelled    EventKind = "CANCELLED"
	EventDisapproved  EventKind = "DISAPPROVED"
)

// Event is what the notification router consumes after a commit.
type Event struct {
	Kind      EventKind
	Request   domain.Request
	ActorID   string
	ActorName string
	At        string
}

func (e Event) actor() string {
	if strings.TrimSpace(e.ActorName) != "" {
		return e.ActorName
	}
	return e.ActorID
}

// Audience is a set of recipient groups resolved against the directory.
type Audience uint8

const (
	AudienceApprovers Audience = 1 << iota
	AudienceCoordinators
	AudienceHandlers
	AudienceRequestor
)

func (a Audience) Has(g Audience) bool { return a&g != 0 }

// Route is the recipient and message rule for one event.
type Route struct {
	Audience       Audience
	Category       string
	ActionRequired string
	message        func(Event) string
}

func (r Route) Message(e Event) string { return r.message(e) }

var routes = map[EventKind]Route{
	EventCreated: {
		Audience:       AudienceApprovers,
		ActionRequired: "REVIEW",
		message: func(e Event) string {
			return fmt.Sprintf("New request %s created by %s", e.Request.JorfID, e.actor())
		},
	},
	EventApproved: {
		Audience:       AudienceCoordinators,
		ActionRequired: "ASSIGN",
		message: func(e Event) string {
			return fmt.Sprintf("%s approved by %s; please assess", e.Request.JorfID, e.actor())
		},
	},
	EventOngoing: {
		Audience:       AudienceHandlers,
		ActionRequired: "CLOSE",
		message: func(e Event) string {
			return fmt.Sprintf("%s assigned by %s; please handle", e.Request.JorfID, e.actor())
		},
	},
	EventDone: {
		Audience:       AudienceRequestor,
		ActionRequired: "ACKNOWLEDGE",
		message: func(e Event) string {
			return fmt.Sprintf("%s closed by %s; please acknowledge", e.Request.JorfID, e.actor())
		},
	},
	EventAcknowledged: {
		Audience: AudienceCoordinators | AudienceHandlers,
		message: func(e Event) string {
			return fmt.Sprintf("%s acknowledged by %s", e.Request.JorfID, e.actor())
		},
	},
	EventCancelled: {
		ActionRequired: "INFO",
		message: func(e Event) string {
			return fmt.Sprintf("%s cancelled by %s", e.Request.JorfID, e.actor())
		},
	},
	EventDisapproved: {
		ActionRequired: "INFO",
		message: func(e Event) string {
			return fmt.Sprintf("%s disapproved by %s", e.Request.JorfID, e.actor())
		},
	},
}

// RouteFor returns the route for an event. Cancel and disapprove go to the
// counter-party: the approvers when the requestor acted, else the requestor.
func RouteFor(e Event) (Route, bool) {
	r, ok := routes[e.Kind]
	if !ok {
		return Route{}, false
	}
	r.Category = "JORF_" + string(e.Kind)
	if e.Kind == EventCancelled || e.Kind == EventDisapproved {
		if e.ActorID == e.Request.RequestorID {
			r.Audience = AudienceApprovers
		} else {
			r.Audience = AudienceRequestor
		}
	}
	return r, true
}

// BuildNotification produces an independent record for one recipient.
func BuildNotification(e Event, recipient string) (domain.Notification, bool) {
	route, ok := RouteFor(e)
	if !ok || strings.TrimSpace(recipient) == "" {
		return domain.Notification{}, false
	}
	return domain.Notification{
		Recipient:      strings.TrimSpace(recipient),
		RequestID:      e.Request.ID,
		JorfID:         e.Request.JorfID,
		Message:        route.Message(e),
		Category:       route.Category,
		ActionRequired: route.ActionRequired,
		CreatedAt:      e.At,
	}, true
}

// Dedupe trims ids, drops empties and keeps first occurrence order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// EventFor maps an action to the event it emits once committed.
func EventFor(a domain.Action) (EventKind, bool) {
	for _, t := range transitions {
		if t.Action == a {
			return t.Event, true
		}
	}
	return "", false
}
