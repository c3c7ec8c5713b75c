package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jorfline/internal/config"
	"jorfline/internal/db"
	"jorfline/internal/directory"
	"jorfline/internal/domain"
	"jorfline/internal/engine"
	"jorfline/internal/migrate"
	"jorfline/internal/notify"
	"jorfline/internal/repo"
	"jorfline/internal/workflow"
)

var fixedNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

const masterlist = `employees:
  - {id: E100, name: Ana Cruz, department: Production, prodline: L1, station: S4, job_title: Operator, position: 2, approver2: H200}
  - {id: E101, name: Ben Reyes, department: Production, job_title: Operator, position: 2, approver2: H200, approver3: H201}
  - {id: E102, name: Cara Lim, department: Production, job_title: Operator, position: 2, approver2: H200, approver3: H200}
  - {id: H200, name: Hugo Tan, department: Production, job_title: Supervisor, position: 2, approver2: H201}
  - {id: H201, name: Hana Go, department: Production, job_title: Manager, position: 4}
  - {id: F300, name: Fe Santos, department: Facilities, job_title: Facility Engineer II, position: 3}
  - {id: F301, name: Fil Ramos, department: Facilities, job_title: Technician, position: 1}
  - {id: X900, name: Xia Wu, department: Production, job_title: Helper, position: 1}
  - {id: Z999, name: Zed Old, department: Production, position: 2, active: false}
`

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return fixedNow }
	ctx := context.Background()

	emps, err := directory.ParseMasterlist([]byte(masterlist))
	require.NoError(t, err)
	_, err = directory.Import(ctx, eng.Repo, emps)
	require.NoError(t, err)
	for _, rt := range []domain.RequestType{
		{Name: "Electrical", Active: true, CreatedBy: "F300", CreatedAt: fixedNow.Format(time.RFC3339)},
		{Name: "Plumbing", Active: false, CreatedBy: "F300", CreatedAt: fixedNow.Format(time.RFC3339)},
	} {
		_, err := eng.Repo.InsertRequestType(ctx, rt)
		require.NoError(t, err)
	}
	return &testEnv{Engine: eng, Ctx: ctx}
}

func (env *testEnv) session(t *testing.T, id string) domain.Session {
	t.Helper()
	s, err := env.Engine.Session(env.Ctx, id)
	require.NoError(t, err)
	return s
}

func (env *testEnv) submit(t *testing.T, requestorID string) domain.Request {
	t.Helper()
	res, err := env.Engine.Submit(env.Ctx, env.session(t, requestorID), engine.SubmitInput{
		RequestType: "electrical",
		Details:     "Replace flickering lights above station 4",
	})
	require.NoError(t, err)
	return res.Request
}

func (env *testEnv) act(t *testing.T, actorID, jorfID string, in engine.ActInput) engine.ActResult {
	t.Helper()
	res, err := env.Engine.Act(env.Ctx, env.session(t, actorID), jorfID, in)
	require.NoError(t, err)
	return res
}

func (env *testEnv) inbox(t *testing.T, id string) engine.Inbox {
	t.Helper()
	box, err := env.Engine.Notifications(env.Ctx, env.session(t, id), engine.InboxOptions{})
	require.NoError(t, err)
	return box
}

func money(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func intPtr(v int) *int { return &v }

func TestSessionRoles(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string][]string{
		"E100": {"requestor"},
		"H200": {"requestor", "department_head"},
		"H201": {"department_head"},
		"F300": {"facilities", "coordinator"},
		"F301": {"facilities"},
	}
	for id, roles := range cases {
		assert.Equal(t, roles, env.session(t, id).Actor.Roles.List(), id)
	}

	for _, id := range []string{"X900", "Z999", "NOPE", ""} {
		_, err := env.Engine.Session(env.Ctx, id)
		var ae workflow.AuthorizationError
		assert.True(t, errors.As(err, &ae), "%s: got %v", id, err)
	}
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Submit(env.Ctx, env.session(t, "E101"), engine.SubmitInput{
		RequestType: "Electrical",
		Details:     "  Socket sparks when plugging in  ",
		Attachments: []engine.AttachmentInput{
			{FileName: "socket.jpg", Path: "uploads/socket.jpg", Size: 2048, MimeType: "image/jpeg"},
			{Path: "uploads/notes.bin", Size: 10},
		},
	})
	require.NoError(t, err)

	req := res.Request
	assert.Equal(t, "JORF-2025-001", req.JorfID)
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, "Ben Reyes", req.RequestorName)
	assert.Equal(t, "Production", req.Department)
	assert.Equal(t, "Socket sparks when plugging in", req.Details)
	assert.Equal(t, "Electrical", req.RequestType)

	require.Len(t, res.Attachments, 2)
	assert.Equal(t, "image/jpeg", res.Attachments[0].MimeType)
	assert.Equal(t, "notes.bin", res.Attachments[1].FileName)
	assert.Equal(t, "application/octet-stream", res.Attachments[1].MimeType)

	assert.Equal(t, "CREATE", res.Audit.ActionType)
	assert.Equal(t, "Pending", res.Audit.NewValues["status"])
	assert.Equal(t, 2, res.Notified.Total)

	for _, id := range []string{"H200", "H201"} {
		box := env.inbox(t, id)
		require.Len(t, box.Items, 1, id)
		assert.Equal(t, "JORF_CREATED", box.Items[0].Category)
		assert.Equal(t, "REVIEW", box.Items[0].ActionRequired)
		assert.Equal(t, req.JorfID, box.Items[0].JorfID)
		assert.Equal(t, 1, box.Unread)
	}

	second := env.submit(t, "E100")
	assert.Equal(t, "JORF-2025-002", second.JorfID)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.Submit(env.Ctx, env.session(t, "F300"), engine.SubmitInput{RequestType: "Electrical", Details: "x"})
	var ae workflow.AuthorizationError
	assert.True(t, errors.As(err, &ae), "got %v", err)

	cases := []engine.SubmitInput{
		{RequestType: "Electrical", Details: "   "},
		{RequestType: "", Details: "broken door"},
		{RequestType: "Plumbing", Details: "leak"},
		{RequestType: "Carpentry", Details: "shelf"},
		{RequestType: "Electrical", Details: "big file", Attachments: []engine.AttachmentInput{{FileName: "a.mp4", Path: "a.mp4", Size: 50 << 20}}},
		{RequestType: "Electrical", Details: "no path", Attachments: []engine.AttachmentInput{{FileName: "a.png"}}},
	}
	for i, in := range cases {
		_, err := env.Engine.Submit(env.Ctx, env.session(t, "E100"), in)
		var ve workflow.ValidationError
		assert.True(t, errors.As(err, &ve), "case %d: got %v", i, err)
	}

	page, err := env.Engine.List(env.Ctx, env.session(t, "E100"), engine.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestApproveNotifiesCoordinatorOnce(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")

	res := env.act(t, "H200", req.JorfID, engine.ActInput{Action: "approve", Remarks: "Go ahead"})
	assert.Equal(t, domain.StatusApproved, res.Request.Status)
	assert.Equal(t, "APPROVE", res.Audit.ActionType)
	assert.Equal(t, "Pending", res.Audit.OldValues["status"])
	assert.Equal(t, "Approved", res.Audit.NewValues["status"])

	logs, err := env.Engine.Logs(env.Ctx, env.session(t, "E100"), req.JorfID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, logs.Total)
	assert.Equal(t, "APPROVE", logs.Items[0].ActionType)

	box := env.inbox(t, "F300")
	require.Len(t, box.Items, 1)
	assert.Equal(t, "JORF_APPROVED", box.Items[0].Category)
	assert.Equal(t, "ASSIGN", box.Items[0].ActionRequired)
	assert.Empty(t, env.inbox(t, "F301").Items)
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")

	env.act(t, "H200", req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "ok"})

	res := env.act(t, "F300", req.JorfID, engine.ActInput{
		Action:     "ASSIGN",
		Remarks:    "Fil will check the ballast",
		CostAmount: money("1500.50"),
		HandledBy:  []string{"F301", " F301 "},
	})
	assert.Equal(t, domain.StatusOngoing, res.Request.Status)
	assert.Equal(t, []string{"F301"}, res.Request.HandledBy)
	require.NotNil(t, res.Request.HandledAt)
	assert.Equal(t, "1500.50", res.Audit.NewValues["cost_amount"])

	box := env.inbox(t, "F301")
	require.Len(t, box.Items, 1)
	assert.Equal(t, "CLOSE", box.Items[0].ActionRequired)

	actions, err := env.Engine.AvailableActions(env.Ctx, env.session(t, "F301"), req.JorfID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Action{domain.ActionDone, domain.ActionView}, actions)

	res = env.act(t, "F301", req.JorfID, engine.ActInput{
		Action: "DONE", Remarks: "Ballast replaced", CostAmount: money("1200"), HandledBy: []string{"F301"},
	})
	assert.Equal(t, domain.StatusDone, res.Request.Status)
	assert.True(t, res.Request.CostAmount.Equal(decimal.NewFromInt(1200)))

	requestorBox := env.inbox(t, "E100")
	require.Len(t, requestorBox.Items, 1)
	assert.Equal(t, "JORF_DONE", requestorBox.Items[0].Category)
	assert.Equal(t, "ACKNOWLEDGE", requestorBox.Items[0].ActionRequired)

	res = env.act(t, "E100", req.JorfID, engine.ActInput{Action: "ACKNOWLEDGE", Rating: intPtr(5)})
	assert.Equal(t, domain.StatusAcknowledged, res.Request.Status)
	require.NotNil(t, res.Request.Rating)
	assert.Equal(t, 5, *res.Request.Rating)
	assert.Equal(t, 2, res.Notified.Total)

	_, err = env.Engine.Act(env.Ctx, env.session(t, "E100"), req.JorfID, engine.ActInput{Action: "CANCEL"})
	var ite workflow.InvalidTransitionError
	assert.True(t, errors.As(err, &ite), "got %v", err)

	logs, err := env.Engine.Logs(env.Ctx, env.session(t, "E100"), req.JorfID, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, logs.Total)
	assert.Equal(t, 5, logs.PageSize)
	assert.Equal(t, "ACKNOWLEDGE", logs.Items[0].ActionType)
	assert.Equal(t, "CREATE", logs.Items[4].ActionType)
}

func TestSelfApprovalRejected(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "H200")

	_, err := env.Engine.Act(env.Ctx, env.session(t, "H200"), req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "mine"})
	var ae workflow.AuthorizationError
	require.True(t, errors.As(err, &ae), "got %v", err)

	_, err = env.Engine.Act(env.Ctx, env.session(t, "H201"), req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "fine"})
	require.NoError(t, err)
}

func TestNonSubordinateCannotApprove(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")

	_, err := env.Engine.Act(env.Ctx, env.session(t, "H201"), req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "x"})
	var ae workflow.AuthorizationError
	assert.True(t, errors.As(err, &ae), "got %v", err)
}

func TestRejectedActionsLeaveNoTrace(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")
	env.act(t, "H200", req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "ok"})
	env.act(t, "F300", req.JorfID, engine.ActInput{Action: "ONGOING", Remarks: "r", CostAmount: money("10"), HandledBy: []string{"F301"}})
	env.act(t, "F301", req.JorfID, engine.ActInput{Action: "DONE", Remarks: "r", CostAmount: money("10"), HandledBy: []string{"F301"}})

	for _, r := range []int{0, 6} {
		_, err := env.Engine.Act(env.Ctx, env.session(t, "E100"), req.JorfID, engine.ActInput{Action: "ACKNOWLEDGE", Rating: intPtr(r)})
		var ve workflow.ValidationError
		assert.True(t, errors.As(err, &ve), "rating %d: got %v", r, err)
	}

	_, err := env.Engine.Act(env.Ctx, env.session(t, "E100"), req.JorfID, engine.ActInput{Action: "ESCALATE"})
	var ve workflow.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "action", ve.Field)

	_, err = env.Engine.Act(env.Ctx, env.session(t, "E100"), "JORF-2025-999", engine.ActInput{Action: "CANCEL"})
	var nf workflow.NotFoundError
	assert.True(t, errors.As(err, &nf), "got %v", err)

	got, err := env.Engine.Get(env.Ctx, env.session(t, "E100"), req.JorfID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)
	assert.Nil(t, got.Rating)

	logs, err := env.Engine.Logs(env.Ctx, env.session(t, "E100"), req.JorfID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, logs.Total)
}

func TestAssignRequiresFacilitiesHandlers(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")
	env.act(t, "H200", req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "ok"})

	_, err := env.Engine.Act(env.Ctx, env.session(t, "F300"), req.JorfID, engine.ActInput{
		Action: "ONGOING", Remarks: "r", CostAmount: money("10"), HandledBy: []string{"E101"},
	})
	var ve workflow.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "handled_by", ve.Field)

	_, err = env.Engine.Act(env.Ctx, env.session(t, "F301"), req.JorfID, engine.ActInput{
		Action: "ONGOING", Remarks: "r", CostAmount: money("10"), HandledBy: []string{"F301"},
	})
	var ae workflow.AuthorizationError
	assert.True(t, errors.As(err, &ae), "got %v", err)
}

func TestCancelAndDisapproveNotifyCounterParty(t *testing.T) {
	env := newTestEnv(t)

	cancelled := env.submit(t, "E100")
	res := env.act(t, "E100", cancelled.JorfID, engine.ActInput{Action: "CANCEL"})
	assert.Equal(t, domain.StatusCancelled, res.Request.Status)
	headBox := env.inbox(t, "H200")
	require.Len(t, headBox.Items, 2)
	assert.Equal(t, "JORF_CANCELLED", headBox.Items[0].Category)
	assert.Equal(t, "INFO", headBox.Items[0].ActionRequired)
	assert.Empty(t, env.inbox(t, "E100").Items)

	refused := env.submit(t, "E100")
	env.act(t, "H200", refused.JorfID, engine.ActInput{Action: "DISAPPROVE", Remarks: "Out of budget"})
	box := env.inbox(t, "E100")
	require.Len(t, box.Items, 1)
	assert.Equal(t, "JORF_DISAPPROVED", box.Items[0].Category)
}

func TestDuplicateApproversNotifiedOnce(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Submit(env.Ctx, env.session(t, "E102"), engine.SubmitInput{RequestType: "Electrical", Details: "fan"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified.Total)
	assert.Len(t, env.inbox(t, "H200").Items, 1)
}

func TestDeliveryFailureKeepsTransition(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")
	env.Engine.Deliverer = notify.Func(func(context.Context, domain.Notification) error {
		return errors.New("smtp down")
	})

	res := env.act(t, "H200", req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "ok"})
	assert.Equal(t, domain.StatusApproved, res.Request.Status)
	assert.Equal(t, notify.Result{Total: 1, Failed: 1}, res.Notified)

	stored, err := env.Engine.Repo.GetRequestByJorfID(env.Ctx, req.JorfID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)

	box := env.inbox(t, "F300")
	require.Len(t, box.Items, 1)
	assert.Equal(t, 1, box.Items[0].Attempts)
	assert.Nil(t, box.Items[0].DeliveredAt)
}

func TestVisibility(t *testing.T) {
	env := newTestEnv(t)
	pending := env.submit(t, "E100")
	approved := env.submit(t, "E101")
	env.act(t, "H200", approved.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "ok"})
	env.submit(t, "H200")

	list := func(id string) []string {
		page, err := env.Engine.List(env.Ctx, env.session(t, id), engine.ListOptions{SortBy: "jorf_id"})
		require.NoError(t, err)
		ids := []string{}
		for _, r := range page.Items {
			ids = append(ids, r.JorfID)
		}
		return ids
	}

	assert.Equal(t, []string{pending.JorfID}, list("E100"))
	assert.Equal(t, []string{pending.JorfID, approved.JorfID}, list("H200"))
	assert.Equal(t, []string{approved.JorfID, "JORF-2025-003"}, list("H201"))
	assert.Equal(t, []string{approved.JorfID}, list("F300"))
	assert.Equal(t, []string{approved.JorfID}, list("F301"))

	_, err := env.Engine.Get(env.Ctx, env.session(t, "F300"), pending.JorfID)
	var ae workflow.AuthorizationError
	assert.True(t, errors.As(err, &ae), "got %v", err)

	own, err := env.Engine.Get(env.Ctx, env.session(t, "H200"), "JORF-2025-003")
	require.NoError(t, err)
	assert.Equal(t, []domain.Action{domain.ActionCancel, domain.ActionView}, own.Actions)
}

func TestStatusCountsAndFilters(t *testing.T) {
	env := newTestEnv(t)
	first := env.submit(t, "E100")
	env.submit(t, "E100")
	env.act(t, "E100", first.JorfID, engine.ActInput{Action: "CANCEL"})

	counts, err := env.Engine.StatusCounts(env.Ctx, env.session(t, "E100"), "")
	require.NoError(t, err)
	require.Len(t, counts, 8)
	assert.Equal(t, domain.StatusCount{Label: "All", Status: 0, Color: "default", Count: 2}, counts[0])
	assert.Equal(t, domain.StatusCount{Label: "Pending", Status: 1, Color: "gold", Count: 1}, counts[1])
	assert.Equal(t, domain.StatusCount{Label: "Cancelled", Status: 6, Color: "volcano", Count: 1}, counts[6])

	page, err := env.Engine.List(env.Ctx, env.session(t, "E100"), engine.ListOptions{Status: "cancelled"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, first.JorfID, page.Items[0].JorfID)

	page, err = env.Engine.List(env.Ctx, env.session(t, "E100"), engine.ListOptions{Search: "2025-002"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = env.Engine.List(env.Ctx, env.session(t, "E100"), engine.ListOptions{Status: "Lost"})
	var ve workflow.ValidationError
	assert.True(t, errors.As(err, &ve))
	_, err = env.Engine.List(env.Ctx, env.session(t, "E100"), engine.ListOptions{SortBy: "details; DROP TABLE requests"})
	assert.True(t, errors.As(err, &ve))
}

func TestCriticalPending(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")

	got, err := env.Engine.Get(env.Ctx, env.session(t, "E100"), req.JorfID)
	require.NoError(t, err)
	assert.False(t, got.Critical)
	assert.Equal(t, "gold", got.StatusColor)

	env.Engine.Now = func() time.Time { return fixedNow.Add(31 * time.Minute) }
	got, err = env.Engine.Get(env.Ctx, env.session(t, "E100"), req.JorfID)
	require.NoError(t, err)
	assert.True(t, got.Critical)
}

func TestAttachmentRemoval(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Submit(env.Ctx, env.session(t, "E100"), engine.SubmitInput{
		RequestType: "Electrical",
		Details:     "lights",
		Attachments: []engine.AttachmentInput{{FileName: "a.png", Path: "uploads/a.png", Size: 1, MimeType: "image/png"}},
	})
	require.NoError(t, err)
	id := res.Attachments[0].ID

	err = env.Engine.DeleteAttachment(env.Ctx, env.session(t, "H200"), id)
	var ae workflow.AuthorizationError
	assert.True(t, errors.As(err, &ae), "got %v", err)

	require.NoError(t, env.Engine.DeleteAttachment(env.Ctx, env.session(t, "E100"), id))
	items, err := env.Engine.Attachments(env.Ctx, env.session(t, "E100"), res.Request.JorfID)
	require.NoError(t, err)
	assert.Empty(t, items)

	err = env.Engine.DeleteAttachment(env.Ctx, env.session(t, "E100"), id)
	var nf workflow.NotFoundError
	assert.True(t, errors.As(err, &nf), "got %v", err)
}

func TestAddAttachment(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")

	added, err := env.Engine.AddAttachment(env.Ctx, env.session(t, "E100"), req.JorfID, []engine.AttachmentInput{
		{Path: "uploads/panel.jpg", Size: 10, MimeType: "image/jpeg"},
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "panel.jpg", added[0].FileName)
	assert.Equal(t, "image/jpeg", added[0].MimeType)

	logs, err := env.Engine.Logs(env.Ctx, env.session(t, "E100"), req.JorfID, 1)
	require.NoError(t, err)
	assert.Equal(t, "ADD_ATTACHMENT", logs.Items[0].ActionType)

	_, err = env.Engine.AddAttachment(env.Ctx, env.session(t, "H200"), req.JorfID, []engine.AttachmentInput{{Path: "x.png"}})
	var ae workflow.AuthorizationError
	assert.True(t, errors.As(err, &ae), "got %v", err)

	_, err = env.Engine.AddAttachment(env.Ctx, env.session(t, "E100"), req.JorfID, nil)
	var ve workflow.ValidationError
	assert.True(t, errors.As(err, &ve), "got %v", err)

	env.act(t, "H200", req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "ok"})
	_, err = env.Engine.AddAttachment(env.Ctx, env.session(t, "E100"), req.JorfID, []engine.AttachmentInput{{Path: "late.png"}})
	var it workflow.InvalidTransitionError
	assert.True(t, errors.As(err, &it), "got %v", err)
}

func TestInboxMarkRead(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "E100")
	env.submit(t, "E100")

	box := env.inbox(t, "H200")
	require.Len(t, box.Items, 2)
	assert.Equal(t, 2, box.Unread)

	require.NoError(t, env.Engine.MarkNotificationRead(env.Ctx, env.session(t, "H200"), box.Items[0].ID))
	err := env.Engine.MarkNotificationRead(env.Ctx, env.session(t, "E100"), box.Items[1].ID)
	var nf workflow.NotFoundError
	assert.True(t, errors.As(err, &nf), "got %v", err)

	assert.Equal(t, 1, env.inbox(t, "H200").Unread)
	n, err := env.Engine.MarkAllNotificationsRead(env.Ctx, env.session(t, "H200"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Zero(t, env.inbox(t, "H200").Unread)
}

func TestCatalogManagement(t *testing.T) {
	env := newTestEnv(t)
	coord := env.session(t, "F300")

	_, err := env.Engine.AddRequestType(env.Ctx, env.session(t, "E100"), "Aircon")
	var ae workflow.AuthorizationError
	assert.True(t, errors.As(err, &ae), "got %v", err)

	rt, err := env.Engine.AddRequestType(env.Ctx, coord, " Aircon ")
	require.NoError(t, err)
	assert.Equal(t, "Aircon", rt.Name)
	assert.True(t, rt.Active)

	_, err = env.Engine.AddRequestType(env.Ctx, coord, "aircon")
	var ve workflow.ValidationError
	assert.True(t, errors.As(err, &ve), "got %v", err)

	rt, err = env.Engine.SetRequestTypeActive(env.Ctx, coord, "plumbing", true)
	require.NoError(t, err)
	assert.True(t, rt.Active)
	assert.Equal(t, "F300", rt.UpdatedBy)

	types, err := env.Engine.RequestTypes(env.Ctx, true)
	require.NoError(t, err)
	assert.Len(t, types, 3)

	_, err = env.Engine.Session(env.Ctx, "X900")
	require.Error(t, err)
	entry, err := env.Engine.AddRequestor(env.Ctx, coord, "X900")
	require.NoError(t, err)
	assert.Equal(t, "F300", entry.AddedBy)
	assert.Equal(t, []string{"requestor"}, env.session(t, "X900").Actor.Roles.List())

	_, err = env.Engine.AddRequestor(env.Ctx, coord, "GHOST")
	var nf workflow.NotFoundError
	assert.True(t, errors.As(err, &nf), "got %v", err)

	require.NoError(t, env.Engine.RemoveRequestor(env.Ctx, coord, "X900"))
	err = env.Engine.RemoveRequestor(env.Ctx, coord, "X900")
	assert.True(t, errors.As(err, &nf), "got %v", err)

	staff, err := env.Engine.FacilitiesEmployees(env.Ctx, coord)
	require.NoError(t, err)
	assert.Len(t, staff, 2)
}

func TestStaleWriteIsRejected(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")

	req.Status = domain.StatusCancelled
	err := env.Engine.Repo.UpdateRequestState(env.Ctx, nil, req, domain.StatusApproved)
	assert.ErrorIs(t, err, repo.ErrStale)
}

func TestPendingGuardOnAttachmentWrites(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")
	ts := fixedNow.Format(time.RFC3339)

	require.NoError(t, env.Engine.Repo.TouchRequest(env.Ctx, nil, req.ID, domain.StatusPending, ts))
	env.act(t, "H200", req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "ok"})
	assert.ErrorIs(t, env.Engine.Repo.TouchRequest(env.Ctx, nil, req.ID, domain.StatusPending, ts), repo.ErrStale)
}

func TestDoneRequiresFacilitiesHandlers(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")
	env.act(t, "H200", req.JorfID, engine.ActInput{Action: "APPROVE", Remarks: "ok"})
	env.act(t, "F300", req.JorfID, engine.ActInput{
		Action: "ONGOING", Remarks: "assigned", CostAmount: money("100"), HandledBy: []string{"F301"},
	})

	for _, handlers := range [][]string{{"E101"}, {"F301", "NOBODY"}} {
		_, err := env.Engine.Act(env.Ctx, env.session(t, "F301"), req.JorfID, engine.ActInput{
			Action: "DONE", Remarks: "fixed", CostAmount: money("100"), HandledBy: handlers,
		})
		var ve workflow.ValidationError
		require.True(t, errors.As(err, &ve), "handlers %v: got %v", handlers, err)
		assert.Equal(t, "handled_by", ve.Field)
	}

	stored, err := env.Engine.Repo.GetRequestByJorfID(env.Ctx, req.JorfID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOngoing, stored.Status)
	assert.Equal(t, []string{"F301"}, stored.HandledBy)
}

func TestAvailableActionsRespectsVisibility(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, "E100")

	_, err := env.Engine.AvailableActions(env.Ctx, env.session(t, "F301"), req.JorfID)
	var ae workflow.AuthorizationError
	assert.True(t, errors.As(err, &ae), "got %v", err)

	actions, err := env.Engine.AvailableActions(env.Ctx, env.session(t, "E100"), req.JorfID)
	require.NoError(t, err)
	assert.Contains(t, actions, domain.ActionCancel)
}

func TestRetrierSkipsLiveChannel(t *testing.T) {
	env := newTestEnv(t)
	var pushes, posts int
	live := notify.Func(func(context.Context, domain.Notification) error {
		pushes++
		return nil
	})
	hook := notify.Func(func(context.Context, domain.Notification) error {
		posts++
		if posts == 1 {
			return errors.New("gateway down")
		}
		return nil
	})
	d := notify.Multi{notify.Live{Deliverer: live}, hook}
	env.Engine.Deliverer = d

	env.submit(t, "E100")
	require.Equal(t, 1, pushes)
	require.Equal(t, 1, posts)

	r := notify.Retrier{Repo: env.Engine.Repo, Deliverer: d, Now: env.Engine.Now}
	assert.Equal(t, notify.Result{Total: 1, Delivered: 1}, r.RunOnce(env.Ctx))
	assert.Equal(t, 1, pushes)
	assert.Equal(t, 2, posts)
	assert.Equal(t, notify.Result{}, r.RunOnce(env.Ctx))
}
