// Package workflow holds the request lifecycle rules: the status state
// machine, role-based visibility, available actions and notification routes.
// Everything here is a pure function of a domain.Session and a domain.Request.
package workflow

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"jorfline/internal/domain"
)

// Input carries the fields a caller supplies with an action.
type Input struct {
	Remarks    string
	CostAmount *decimal.Decimal
	HandledBy  []string
	Rating     *int
}

type remarksInput struct {
	Remarks string `json:"remarks" validate:"required"`
}

type handlingInput struct {
	Remarks    string           `json:"remarks" validate:"required"`
	CostAmount *decimal.Decimal `json:"cost_amount" validate:"required"`
	HandledBy  []string         `json:"handled_by" validate:"required,min=1,dive,required"`
}

type acknowledgeInput struct {
	Rating *int `json:"rating" validate:"required,min=1,max=5"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Transition is one row of the lifecycle table.
type Transition struct {
	From      domain.Status
	Action    domain.Action
	To        domain.Status
	Event     EventKind
	authorize func(domain.Session, domain.Request) string
	fields    func(Input) any
}

var transitions = []Transition{
	{
		From: domain.StatusPending, Action: domain.ActionCancel, To: domain.StatusCancelled, Event: EventCancelled,
		authorize: requireRequestor,
	},
	{
		From: domain.StatusPending, Action: domain.ActionApprove, To: domain.StatusApproved, Event: EventApproved,
		authorize: requireDepartmentHead,
		fields:    func(in Input) any { return remarksInput{Remarks: in.Remarks} },
	},
	{
		From: domain.StatusPending, Action: domain.ActionDisapprove, To: domain.StatusDisapproved, Event: EventDisapproved,
		authorize: requireDepartmentHead,
		fields:    func(in Input) any { return remarksInput{Remarks: in.Remarks} },
	},
	{
		From: domain.StatusApproved, Action: domain.ActionOngoing, To: domain.StatusOngoing, Event: EventOngoing,
		authorize: requireCoordinator,
		fields:    handlingFields,
	},
	{
		From: domain.StatusOngoing, Action: domain.ActionDone, To: domain.StatusDone, Event: EventDone,
		authorize: requireCoordinatorOrHandler,
		fields:    handlingFields,
	},
	{
		From: domain.StatusDone, Action: domain.ActionAcknowledge, To: domain.StatusAcknowledged, Event: EventAcknowledged,
		authorize: requireRequestor,
		fields:    func(in Input) any { return acknowledgeInput{Rating: in.Rating} },
	},
}

func handlingFields(in Input) any {
	return handlingInput{Remarks: in.Remarks, CostAmount: in.CostAmount, HandledBy: in.HandledBy}
}

func requireRequestor(s domain.Session, r domain.Request) string {
	if s.Actor.ID != r.RequestorID {
		return "only the requestor may perform this action"
	}
	return ""
}

func requireDepartmentHead(s domain.Session, r domain.Request) string {
	if s.Actor.ID == r.RequestorID {
		return "requestors cannot decide on their own request"
	}
	if !s.Manages(r.RequestorID) {
		return "not a department head of the requestor"
	}
	return ""
}

func requireCoordinator(s domain.Session, _ domain.Request) string {
	if !s.Is(domain.RoleCoordinator) {
		return "facilities coordinator role required"
	}
	return ""
}

func requireCoordinatorOrHandler(s domain.Session, r domain.Request) string {
	if s.Is(domain.RoleCoordinator) || r.IsHandler(s.Actor.ID) {
		return ""
	}
	return "facilities coordinator or assigned handler required"
}

// Lookup returns the transition for an action from a status.
func Lookup(from domain.Status, action domain.Action) (Transition, bool) {
	for _, t := range transitions {
		if t.From == from && t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// Authorize checks the actor against the transition's required role.
func (t Transition) Authorize(s domain.Session, r domain.Request) error {
	if reason := t.authorize(s, r); reason != "" {
		return AuthorizationError{ActorID: s.Actor.ID, Action: t.Action, Reason: reason}
	}
	return nil
}

// Validate checks the fields the transition requires.
func (t Transition) Validate(in Input) error {
	in = normalize(in)
	if t.fields != nil {
		if err := validate.Struct(t.fields(in)); err != nil {
			return toValidationError(err)
		}
	}
	if in.CostAmount != nil && in.CostAmount.IsNegative() {
		return ValidationError{Field: "cost_amount", Reason: "must not be negative"}
	}
	return nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	field := strings.SplitN(fe.Field(), "[", 2)[0]
	switch fe.Tag() {
	case "required":
		return ValidationError{Field: field, Reason: "is required"}
	case "min":
		if field == "rating" {
			return ValidationError{Field: field, Reason: "must be between 1 and 5"}
		}
		return ValidationError{Field: field, Reason: "must have at least " + fe.Param() + " entry"}
	case "max":
		return ValidationError{Field: field, Reason: "must be between 1 and 5"}
	default:
		return ValidationError{Field: field, Reason: "is invalid"}
	}
}

func normalize(in Input) Input {
	in.Remarks = strings.TrimSpace(in.Remarks)
	if len(in.HandledBy) > 0 {
		handlers := make([]string, 0, len(in.HandledBy))
		for _, h := range in.HandledBy {
			handlers = append(handlers, strings.TrimSpace(h))
		}
		in.HandledBy = handlers
	}
	return in
}

// Check runs the transition gate in order: legal from the current status,
// actor authorized, fields present.
func Check(s domain.Session, r domain.Request, action domain.Action, in Input) (Transition, error) {
	if !r.Status.Valid() {
		return Transition{}, InvalidTransitionError{From: r.Status, Action: action, Reason: "unknown status"}
	}
	t, ok := Lookup(r.Status, action)
	if !ok {
		reason := ""
		if r.Status.Terminal() {
			reason = "request is closed"
		}
		return Transition{}, InvalidTransitionError{From: r.Status, Action: action, Reason: reason}
	}
	if err := t.Authorize(s, r); err != nil {
		return Transition{}, err
	}
	if err := t.Validate(in); err != nil {
		return Transition{}, err
	}
	return t, nil
}

// Apply returns the request as it looks after the transition.
func (t Transition) Apply(r domain.Request, in Input, now time.Time) domain.Request {
	in = normalize(in)
	ts := now.UTC().Format(time.RFC3339)
	out := r
	out.Status = t.To
	out.UpdatedAt = ts
	if in.Remarks != "" {
		out.Remarks = in.Remarks
	}
	switch t.Action {
	case domain.ActionOngoing, domain.ActionDone:
		cost := *in.CostAmount
		out.CostAmount = &cost
		out.HandledBy = Dedupe(in.HandledBy)
		out.HandledAt = &ts
	case domain.ActionAcknowledge:
		rating := *in.Rating
		out.Rating = &rating
	}
	return out
}

// ActionsFrom lists the transitions leaving a status in canonical order.
func ActionsFrom(s domain.Status) []domain.Action {
	var out []domain.Action
	for _, a := range domain.Actions {
		if _, ok := Lookup(s, a); ok {
			out = append(out, a)
		}
	}
	return out
}
