package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jorfline/internal/domain"
)

var now = time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)

func session(id string, roles domain.Roles, subordinates ...string) domain.Session {
	subs := map[string]struct{}{}
	for _, s := range subordinates {
		subs[s] = struct{}{}
	}
	return domain.Session{Actor: domain.Actor{ID: id, Name: "Name " + id, Roles: roles}, Subordinates: subs}
}

var (
	requestor   = session("E100", domain.Roles(0).With(domain.RoleRequestor))
	head        = session("H200", domain.Roles(0).With(domain.RoleDepartmentHead), "E100", "E101")
	otherHead   = session("H201", domain.Roles(0).With(domain.RoleDepartmentHead), "E999")
	coordinator = session("F300", domain.Roles(0).With(domain.RoleFacilities).With(domain.RoleCoordinator))
	staff       = session("F301", domain.Roles(0).With(domain.RoleFacilities))
	stranger    = session("X999", 0)
)

func request(status domain.Status) domain.Request {
	return domain.Request{ID: 1, JorfID: "JORF-2025-001", RequestorID: "E100", RequestorName: "Ana", Status: status}
}

func cost(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func rating(v int) *int { return &v }

func TestApproveByDepartmentHead(t *testing.T) {
	tr, err := Check(head, request(domain.StatusPending), domain.ActionApprove, Input{Remarks: "ok"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, tr.To)
	assert.Equal(t, EventApproved, tr.Event)

	updated := tr.Apply(request(domain.StatusPending), Input{Remarks: " ok "}, now)
	assert.Equal(t, domain.StatusApproved, updated.Status)
	assert.Equal(t, "ok", updated.Remarks)
	assert.Equal(t, "2025-03-04T08:00:00Z", updated.UpdatedAt)
}

func TestApproveRequiresRemarks(t *testing.T) {
	_, err := Check(head, request(domain.StatusPending), domain.ActionApprove, Input{Remarks: "   "})
	var ve ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "remarks", ve.Field)
}

func TestRequestorCannotApproveOwnRequest(t *testing.T) {
	selfHead := session("E100", domain.Roles(0).With(domain.RoleDepartmentHead).With(domain.RoleRequestor), "E100")
	_, err := Check(selfHead, request(domain.StatusPending), domain.ActionApprove, Input{Remarks: "ok"})
	var ae AuthorizationError
	require.True(t, errors.As(err, &ae), "got %v", err)
}

func TestHeadOutsideSubordinatesRejected(t *testing.T) {
	for _, a := range []domain.Action{domain.ActionApprove, domain.ActionDisapprove} {
		_, err := Check(otherHead, request(domain.StatusPending), a, Input{Remarks: "ok"})
		var ae AuthorizationError
		assert.True(t, errors.As(err, &ae), "%s: got %v", a, err)
	}
}

func TestCancelOnlyByRequestor(t *testing.T) {
	_, err := Check(requestor, request(domain.StatusPending), domain.ActionCancel, Input{})
	require.NoError(t, err)

	_, err = Check(head, request(domain.StatusPending), domain.ActionCancel, Input{})
	var ae AuthorizationError
	assert.True(t, errors.As(err, &ae))
}

func TestOngoingRequiresCoordinatorAndFields(t *testing.T) {
	r := request(domain.StatusApproved)
	full := Input{Remarks: "assigning", CostAmount: cost("150.50"), HandledBy: []string{"F301", "F301", "F302"}}

	_, err := Check(staff, r, domain.ActionOngoing, full)
	var ae AuthorizationError
	require.True(t, errors.As(err, &ae))

	cases := map[string]Input{
		"remarks":     {CostAmount: cost("1"), HandledBy: []string{"F301"}},
		"cost_amount": {Remarks: "x", HandledBy: []string{"F301"}},
		"handled_by":  {Remarks: "x", CostAmount: cost("1")},
	}
	for field, in := range cases {
		_, err := Check(coordinator, r, domain.ActionOngoing, in)
		var ve ValidationError
		require.True(t, errors.As(err, &ve), "%s: got %v", field, err)
		assert.Equal(t, field, ve.Field)
	}

	_, err = Check(coordinator, r, domain.ActionOngoing, Input{Remarks: "x", CostAmount: cost("-1"), HandledBy: []string{"F301"}})
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "cost_amount", ve.Field)

	_, err = Check(coordinator, r, domain.ActionOngoing, Input{Remarks: "x", CostAmount: cost("1"), HandledBy: []string{" "}})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "handled_by", ve.Field)

	tr, err := Check(coordinator, r, domain.ActionOngoing, full)
	require.NoError(t, err)
	updated := tr.Apply(r, full, now)
	assert.Equal(t, []string{"F301", "F302"}, updated.HandledBy)
	require.NotNil(t, updated.HandledAt)
	assert.True(t, updated.CostAmount.Equal(decimal.RequireFromString("150.5")))
}

func TestDoneByAssignedHandler(t *testing.T) {
	r := request(domain.StatusOngoing)
	r.HandledBy = []string{"F301"}
	in := Input{Remarks: "fixed", CostAmount: cost("0"), HandledBy: []string{"F301"}}

	_, err := Check(staff, r, domain.ActionDone, in)
	require.NoError(t, err)

	other := session("F399", domain.Roles(0).With(domain.RoleFacilities))
	_, err = Check(other, r, domain.ActionDone, in)
	var ae AuthorizationError
	assert.True(t, errors.As(err, &ae))
}

func TestAcknowledgeRating(t *testing.T) {
	r := request(domain.StatusDone)
	for _, bad := range []*int{nil, rating(0), rating(6)} {
		_, err := Check(requestor, r, domain.ActionAcknowledge, Input{Rating: bad})
		var ve ValidationError
		require.True(t, errors.As(err, &ve), "rating %v: got %v", bad, err)
		assert.Equal(t, "rating", ve.Field)
	}
	tr, err := Check(requestor, r, domain.ActionAcknowledge, Input{Rating: rating(5)})
	require.NoError(t, err)
	updated := tr.Apply(r, Input{Rating: rating(5)}, now)
	assert.Equal(t, domain.StatusAcknowledged, updated.Status)
	assert.Equal(t, 5, *updated.Rating)
}

func TestIllegalTransitionsRejected(t *testing.T) {
	for _, st := range domain.Statuses {
		for _, a := range domain.Actions {
			if _, ok := Lookup(st, a); ok {
				continue
			}
			_, err := Check(coordinator, request(st), a, Input{Remarks: "x"})
			var ite InvalidTransitionError
			assert.True(t, errors.As(err, &ite), "%s from %s: got %v", a, st, err)
		}
	}
}

func TestNoTransitionLeavesTerminalState(t *testing.T) {
	for _, st := range domain.Statuses {
		if st.Terminal() {
			assert.Empty(t, ActionsFrom(st), st.String())
		}
	}
	for _, tr := range transitions {
		assert.Greater(t, int(tr.To), int(tr.From), "%s regresses", tr.Action)
	}
}

func TestVisibilityPrecedence(t *testing.T) {
	both := session("H200", domain.Roles(0).With(domain.RoleDepartmentHead).With(domain.RoleFacilities).With(domain.RoleRequestor), "E100")
	v := VisibilityFor(both)
	assert.Equal(t, VisibleSubordinates, v.Kind)
	assert.True(t, v.Allows(request(domain.StatusPending)))
	mine := request(domain.StatusApproved)
	mine.RequestorID = "H200"
	assert.False(t, v.Allows(mine))

	facReq := session("F1", domain.Roles(0).With(domain.RoleFacilities).With(domain.RoleRequestor))
	assert.Equal(t, VisibleNonPending, VisibilityFor(facReq).Kind)

	v = VisibilityFor(requestor)
	assert.Equal(t, VisibleOwn, v.Kind)
	assert.True(t, v.Allows(request(domain.StatusPending)))

	assert.Equal(t, VisibleNonPending, VisibilityFor(stranger).Kind)
}

func TestFacilitiesNeverSeesPending(t *testing.T) {
	v := VisibilityFor(staff)
	for _, st := range domain.Statuses {
		assert.Equal(t, st != domain.StatusPending, v.Allows(request(st)), st.String())
	}
}

func TestHeadWithNoSubordinatesSeesNothing(t *testing.T) {
	lonely := session("H9", domain.Roles(0).With(domain.RoleDepartmentHead))
	v := VisibilityFor(lonely)
	assert.Equal(t, VisibleSubordinates, v.Kind)
	assert.False(t, v.Allows(request(domain.StatusApproved)))
}

func TestAvailableActions(t *testing.T) {
	pending := request(domain.StatusPending)
	assert.Equal(t, []domain.Action{domain.ActionCancel, domain.ActionView}, AvailableActions(requestor, pending))
	assert.Equal(t, []domain.Action{domain.ActionApprove, domain.ActionDisapprove, domain.ActionView}, AvailableActions(head, pending))
	assert.Empty(t, AvailableActions(stranger, pending))
	assert.Empty(t, AvailableActions(otherHead, pending))
	assert.Empty(t, AvailableActions(staff, pending))

	approved := request(domain.StatusApproved)
	assert.Equal(t, []domain.Action{domain.ActionOngoing, domain.ActionView}, AvailableActions(coordinator, approved))
	assert.Equal(t, []domain.Action{domain.ActionView}, AvailableActions(head, approved))

	done := request(domain.StatusDone)
	assert.Equal(t, []domain.Action{domain.ActionAcknowledge, domain.ActionView}, AvailableActions(requestor, done))

	ongoing := request(domain.StatusOngoing)
	ongoing.HandledBy = []string{"F301"}
	assert.Equal(t, []domain.Action{domain.ActionDone, domain.ActionView}, AvailableActions(staff, ongoing))
}

func TestAvailableActionsAgreeWithCheck(t *testing.T) {
	in := Input{Remarks: "x", CostAmount: cost("1"), HandledBy: []string{"F301"}, Rating: rating(4)}
	for _, s := range []domain.Session{requestor, head, otherHead, coordinator, staff, stranger} {
		for _, st := range domain.Statuses {
			r := request(st)
			r.HandledBy = []string{"F301"}
			for _, a := range AvailableActions(s, r) {
				if a == domain.ActionView {
					continue
				}
				_, err := Check(s, r, a, in)
				assert.NoError(t, err, "%s offered %s on %s", s.Actor.ID, a, st)
			}
		}
	}
}

func TestRouteCounterParty(t *testing.T) {
	byRequestor := Event{Kind: EventCancelled, Request: request(domain.StatusCancelled), ActorID: "E100"}
	r, ok := RouteFor(byRequestor)
	require.True(t, ok)
	assert.Equal(t, AudienceApprovers, r.Audience)

	byHead := Event{Kind: EventDisapproved, Request: request(domain.StatusDisapproved), ActorID: "H200", ActorName: "Hana"}
	r, ok = RouteFor(byHead)
	require.True(t, ok)
	assert.Equal(t, AudienceRequestor, r.Audience)
	assert.Equal(t, "JORF-2025-001 disapproved by Hana", r.Message(byHead))
	assert.Equal(t, "JORF_DISAPPROVED", r.Category)
}

func TestRouteUnknownEvent(t *testing.T) {
	_, ok := RouteFor(Event{Kind: "ARCHIVED"})
	assert.False(t, ok)
	_, ok = BuildNotification(Event{Kind: "ARCHIVED"}, "E100")
	assert.False(t, ok)
}

func TestBuildNotificationIsIndependent(t *testing.T) {
	evt := Event{Kind: EventApproved, Request: request(domain.StatusApproved), ActorID: "H200", At: "2025-03-04T08:00:00Z"}
	a, ok := BuildNotification(evt, "F300")
	require.True(t, ok)
	b, ok := BuildNotification(evt, "F301")
	require.True(t, ok)
	a.ReadAt = new(string)
	assert.Nil(t, b.ReadAt)
	assert.Equal(t, "JORF-2025-001 approved by H200; please assess", b.Message)
	assert.Equal(t, "ASSIGN", b.ActionRequired)
	assert.Equal(t, "F301", b.Recipient)

	_, ok = BuildNotification(evt, "  ")
	assert.False(t, ok)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Dedupe([]string{" a", "", "b", "a", "b "}))
	assert.Empty(t, Dedupe(nil))
}
