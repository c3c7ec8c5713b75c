package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shopspring/decimal"

	"jorfline/internal/audit"
	"jorfline/internal/domain"
	"jorfline/internal/logging"
	"jorfline/internal/notify"
	"jorfline/internal/repo"
	"jorfline/internal/workflow"
)

const maxPageSize = 100

type AttachmentInput struct {
	FileName string
	Path     string
	Size     int64
	MimeType string
}

type SubmitInput struct {
	RequestType string
	Details     string
	Remarks     string
	Attachments []AttachmentInput
}

type SubmitResult struct {
	Request     domain.Request      `json:"request"`
	Attachments []domain.Attachment `json:"attachments"`
	Audit       domain.AuditEntry   `json:"audit"`
	Notified    notify.Result       `json:"notified"`
}

// Submit files a new Pending request on behalf of the session actor.
func (e Engine) Submit(ctx context.Context, s domain.Session, in SubmitInput) (SubmitResult, error) {
	var res SubmitResult
	if !s.Is(domain.RoleRequestor) {
		return res, workflow.AuthorizationError{ActorID: s.Actor.ID, Reason: "requestor role required to submit"}
	}
	details := strings.TrimSpace(in.Details)
	if details == "" {
		return res, workflow.ValidationError{Field: "details", Reason: "is required"}
	}
	typeName := strings.TrimSpace(in.RequestType)
	if typeName == "" {
		return res, workflow.ValidationError{Field: "request_type", Reason: "is required"}
	}
	rt, err := e.Repo.GetRequestTypeByName(ctx, typeName)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !rt.Active) {
		return res, workflow.ValidationError{Field: "request_type", Reason: fmt.Sprintf("%q is not an active request type", typeName)}
	}
	if err != nil {
		return res, err
	}
	attachments, err := e.normalizeAttachments(in.Attachments)
	if err != nil {
		return res, err
	}

	now := e.now()
	ts := now.UTC().Format(time.RFC3339)
	req := domain.Request{
		RequestorID:   s.Actor.ID,
		RequestorName: actorName(s),
		Department:    s.Actor.Department,
		ProdLine:      s.Actor.ProdLine,
		Station:       s.Actor.Station,
		RequestType:   rt.Name,
		Details:       details,
		Remarks:       strings.TrimSpace(in.Remarks),
		Status:        domain.StatusPending,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	evt := workflow.Event{Kind: workflow.EventCreated, Request: req, ActorID: s.Actor.ID, ActorName: actorName(s), At: ts}
	planned := e.Router.Plan(ctx, evt)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	req.JorfID, err = e.Repo.NextJorfID(ctx, tx, e.idPrefix(), now.Year())
	if err != nil {
		return res, err
	}
	req.ID, err = e.Repo.InsertRequest(ctx, tx, req)
	if err != nil {
		return res, err
	}
	for _, a := range attachments {
		a.RequestID = req.ID
		a.UploadedBy = s.Actor.ID
		a.UploadedAt = ts
		stored, err := e.Repo.InsertAttachment(ctx, tx, a)
		if err != nil {
			return res, err
		}
		res.Attachments = append(res.Attachments, stored)
	}
	entry, err := e.audit().Append(ctx, tx, audit.Entry{
		RequestID:  req.ID,
		ActionType: audit.ActionCreate,
		ActorID:    s.Actor.ID,
		ActorName:  actorName(s),
		Remarks:    req.Remarks,
	}, nil, req)
	if err != nil {
		return res, err
	}
	evt.Request = req
	notes, err := e.insertNotifications(ctx, tx, evt, planned)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	log := logging.FromContext(ctx)
	log.Info().Str("jorf_id", req.JorfID).Str("actor_id", s.Actor.ID).Msg("request submitted")
	notify.ObserveTransition(string(workflow.EventCreated))
	res.Request = req
	res.Audit = entry
	res.Notified = e.deliver(ctx, notes)
	return res, nil
}

func (e Engine) normalizeAttachments(in []AttachmentInput) ([]domain.Attachment, error) {
	limit := e.Config.Requests.MaxAttachmentBytes
	out := make([]domain.Attachment, 0, len(in))
	for i, a := range in {
		field := fmt.Sprintf("attachments[%d]", i)
		name := strings.TrimSpace(a.FileName)
		if name == "" {
			name = filepath.Base(strings.TrimSpace(a.Path))
		}
		if strings.TrimSpace(a.Path) == "" || name == "" || name == "." {
			return nil, workflow.ValidationError{Field: field, Reason: "requires a file name and path"}
		}
		if a.Size < 0 || (limit > 0 && a.Size > limit) {
			return nil, workflow.ValidationError{Field: field + ".size", Reason: fmt.Sprintf("must be between 0 and %d bytes", limit)}
		}
		out = append(out, domain.Attachment{
			FileName: name,
			Path:     strings.TrimSpace(a.Path),
			Size:     a.Size,
			MimeType: normalizeMime(a.MimeType),
		})
	}
	return out, nil
}

// normalizeMime maps aliases to their canonical type. Unknown types are stored
// as generic binary.
func normalizeMime(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "application/octet-stream"
	}
	if m := mimetype.Lookup(v); m != nil {
		return m.String()
	}
	return "application/octet-stream"
}

type ActInput struct {
	Action     string
	Remarks    string
	CostAmount *decimal.Decimal
	HandledBy  []string
	Rating     *int
}

type ActResult struct {
	Request  domain.Request    `json:"request"`
	Audit    domain.AuditEntry `json:"audit"`
	Notified notify.Result     `json:"notified"`
}

// Act applies one workflow action. Nothing is written unless every check
// passes; delivery failures after commit do not undo the transition.
func (e Engine) Act(ctx context.Context, s domain.Session, jorfID string, in ActInput) (ActResult, error) {
	var res ActResult
	action, ok := domain.ParseAction(in.Action)
	if !ok {
		return res, workflow.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", in.Action)}
	}
	req, err := e.loadRequest(ctx, jorfID)
	if err != nil {
		return res, err
	}
	input := workflow.Input{Remarks: in.Remarks, CostAmount: in.CostAmount, HandledBy: in.HandledBy, Rating: in.Rating}
	t, err := workflow.Check(s, req, action, input)
	if err != nil {
		return res, err
	}
	if action == domain.ActionOngoing || action == domain.ActionDone {
		if err := e.checkHandlers(ctx, input.HandledBy); err != nil {
			return res, err
		}
	}
	now := e.now()
	updated := t.Apply(req, input, now)
	evt := workflow.Event{Kind: t.Event, Request: updated, ActorID: s.Actor.ID, ActorName: actorName(s), At: updated.UpdatedAt}
	planned := e.Router.Plan(ctx, evt)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateRequestState(ctx, tx, updated, req.Status); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return res, workflow.InvalidTransitionError{From: req.Status, Action: action, Reason: "request changed concurrently"}
		}
		return res, err
	}
	entry, err := e.audit().Append(ctx, tx, audit.Entry{
		RequestID:  req.ID,
		ActionType: string(action),
		ActorID:    s.Actor.ID,
		ActorName:  actorName(s),
		Remarks:    in.Remarks,
	}, &req, updated)
	if err != nil {
		return res, err
	}
	notes, err := e.insertNotifications(ctx, tx, evt, planned)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	log := logging.FromContext(ctx)
	log.Info().
		Str("jorf_id", updated.JorfID).
		Str("action", string(action)).
		Str("from", req.Status.String()).
		Str("to", updated.Status.String()).
		Str("actor_id", s.Actor.ID).
		Msg("request transitioned")
	notify.ObserveTransition(string(t.Event))
	res.Request = updated
	res.Audit = entry
	res.Notified = e.deliver(ctx, notes)
	return res, nil
}

// checkHandlers requires every assigned handler to be an active facilities employee.
func (e Engine) checkHandlers(ctx context.Context, ids []string) error {
	staff, err := e.Directory.FacilitiesEmployees(ctx)
	if err != nil {
		return workflow.UpstreamDependencyError{Dependency: "directory", Err: err}
	}
	known := make(map[string]struct{}, len(staff))
	for _, emp := range staff {
		known[emp.ID] = struct{}{}
	}
	for _, id := range workflow.Dedupe(ids) {
		if _, ok := known[id]; !ok {
			return workflow.ValidationError{Field: "handled_by", Reason: fmt.Sprintf("%s is not a facilities employee", id)}
		}
	}
	return nil
}

// RequestView is a request decorated for the acting viewer.
type RequestView struct {
	domain.Request
	StatusLabel string          `json:"status_label"`
	StatusColor string          `json:"status_color"`
	Critical    bool            `json:"critical"`
	Actions     []domain.Action `json:"actions"`
}

func (e Engine) view(s domain.Session, r domain.Request) RequestView {
	actions := workflow.AvailableActions(s, r)
	if actions == nil {
		actions = []domain.Action{}
	}
	return RequestView{
		Request:     r,
		StatusLabel: r.Status.String(),
		StatusColor: r.Status.Color(),
		Critical:    e.Critical(r),
		Actions:     actions,
	}
}

// Critical reports a Pending request left unreviewed past the configured window.
func (e Engine) Critical(r domain.Request) bool {
	window := e.Config.CriticalAfter()
	if r.Status != domain.StatusPending || window <= 0 {
		return false
	}
	created, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return false
	}
	return e.now().Sub(created) > window
}

func (e Engine) Get(ctx context.Context, s domain.Session, jorfID string) (RequestView, error) {
	req, err := e.visibleRequest(ctx, s, jorfID)
	if err != nil {
		return RequestView{}, err
	}
	return e.view(s, req), nil
}

func (e Engine) AvailableActions(ctx context.Context, s domain.Session, jorfID string) ([]domain.Action, error) {
	req, err := e.visibleRequest(ctx, s, jorfID)
	if err != nil {
		return nil, err
	}
	actions := workflow.AvailableActions(s, req)
	if actions == nil {
		actions = []domain.Action{}
	}
	return actions, nil
}

type ListOptions struct {
	Status      string
	RequestType string
	Search      string
	SortBy      string
	Desc        bool
	Page        int
	PageSize    int
}

type ListResult struct {
	Items    []RequestView `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

func (e Engine) filter(s domain.Session, opts ListOptions) (repo.RequestFilter, error) {
	f := repo.RequestFilter{
		Visibility:  workflow.VisibilityFor(s),
		RequestType: strings.TrimSpace(opts.RequestType),
		Search:      opts.Search,
		SortBy:      strings.TrimSpace(opts.SortBy),
		Desc:        opts.Desc,
		Page:        opts.Page,
		PageSize:    opts.PageSize,
	}
	if st := strings.TrimSpace(opts.Status); st != "" && !strings.EqualFold(st, "all") {
		status, err := domain.ParseStatus(st)
		if err != nil {
			return f, workflow.ValidationError{Field: "status", Reason: err.Error()}
		}
		f.Status = status
	}
	if f.SortBy != "" && !repo.SortColumn(f.SortBy) {
		return f, workflow.ValidationError{Field: "sort_by", Reason: fmt.Sprintf("unsupported sort key %q", f.SortBy)}
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = e.Config.PageSize()
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f, nil
}

// List returns one page of the requests visible to the actor.
func (e Engine) List(ctx context.Context, s domain.Session, opts ListOptions) (ListResult, error) {
	f, err := e.filter(s, opts)
	if err != nil {
		return ListResult{}, err
	}
	page, err := e.Repo.ListRequests(ctx, f)
	if err != nil {
		return ListResult{}, err
	}
	out := ListResult{Items: make([]RequestView, 0, len(page.Items)), Total: page.Total, Page: page.Page, PageSize: page.PageSize}
	for _, r := range page.Items {
		out.Items = append(out.Items, e.view(s, r))
	}
	return out, nil
}

// StatusCounts returns the "All" bucket followed by one bucket per status,
// all under the actor's visibility.
func (e Engine) StatusCounts(ctx context.Context, s domain.Session, search string) ([]domain.StatusCount, error) {
	f, err := e.filter(s, ListOptions{Search: search})
	if err != nil {
		return nil, err
	}
	counts, err := e.Repo.CountRequestsByStatus(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StatusCount, 0, len(domain.Statuses)+1)
	total := 0
	for _, st := range domain.Statuses {
		total += counts[st]
	}
	out = append(out, domain.StatusCount{Label: "All", Status: 0, Color: "default", Count: total})
	for _, st := range domain.Statuses {
		out = append(out, domain.StatusCount{Label: st.String(), Status: int(st), Color: st.Color(), Count: counts[st]})
	}
	return out, nil
}

type LogPage struct {
	Items    []domain.AuditEntry `json:"items"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// Logs returns the request's audit trail, newest first.
func (e Engine) Logs(ctx context.Context, s domain.Session, jorfID string, page int) (LogPage, error) {
	req, err := e.visibleRequest(ctx, s, jorfID)
	if err != nil {
		return LogPage{}, err
	}
	if page <= 0 {
		page = 1
	}
	size := e.Config.LogPageSize()
	items, total, err := e.Repo.ListAuditEntries(ctx, req.ID, page, size)
	if err != nil {
		return LogPage{}, err
	}
	if items == nil {
		items = []domain.AuditEntry{}
	}
	return LogPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

func (e Engine) Attachments(ctx context.Context, s domain.Session, jorfID string) ([]domain.Attachment, error) {
	req, err := e.visibleRequest(ctx, s, jorfID)
	if err != nil {
		return nil, err
	}
	items, err := e.Repo.ListAttachments(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Attachment{}
	}
	return items, nil
}

// AddAttachment records more files on the requestor's own Pending request.
func (e Engine) AddAttachment(ctx context.Context, s domain.Session, jorfID string, in []AttachmentInput) ([]domain.Attachment, error) {
	if len(in) == 0 {
		return nil, workflow.ValidationError{Field: "attachments", Reason: "at least one file is required"}
	}
	req, err := e.loadRequest(ctx, jorfID)
	if err != nil {
		return nil, err
	}
	if req.RequestorID != s.Actor.ID {
		return nil, workflow.AuthorizationError{ActorID: s.Actor.ID, Reason: "only the requestor may attach files"}
	}
	if req.Status != domain.StatusPending {
		return nil, workflow.InvalidTransitionError{From: req.Status, Action: domain.Action(audit.ActionAddAttachment), Reason: "attachments are frozen once a request leaves Pending"}
	}
	attachments, err := e.normalizeAttachments(in)
	if err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	ts := e.timestamp()
	if err := e.touchPending(ctx, tx, req, domain.Action(audit.ActionAddAttachment), ts); err != nil {
		return nil, err
	}
	out := make([]domain.Attachment, 0, len(attachments))
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		a.RequestID = req.ID
		a.UploadedBy = s.Actor.ID
		a.UploadedAt = ts
		stored, err := e.Repo.InsertAttachment(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
		names = append(names, stored.FileName)
	}
	if _, err := e.audit().Append(ctx, tx, audit.Entry{
		RequestID:  req.ID,
		ActionType: audit.ActionAddAttachment,
		ActorID:    s.Actor.ID,
		ActorName:  actorName(s),
		Remarks:    strings.Join(names, ", "),
	}, &req, req); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAttachment soft-deletes a file while its request is still Pending.
// Only the uploader may remove it.
func (e Engine) DeleteAttachment(ctx context.Context, s domain.Session, attachmentID string) error {
	a, err := e.Repo.GetAttachment(ctx, attachmentID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && a.DeletedAt != nil) {
		return workflow.NotFoundError{Kind: "attachment", ID: attachmentID}
	}
	if err != nil {
		return err
	}
	if a.UploadedBy != s.Actor.ID {
		return workflow.AuthorizationError{ActorID: s.Actor.ID, Reason: "only the uploader may remove an attachment"}
	}
	req, err := e.Repo.GetRequest(ctx, a.RequestID)
	if err != nil {
		return err
	}
	if req.Status != domain.StatusPending {
		return workflow.InvalidTransitionError{From: req.Status, Action: domain.Action(audit.ActionRemoveAttachment), Reason: "attachments are frozen once a request leaves Pending"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ts := e.timestamp()
	if err := e.touchPending(ctx, tx, req, domain.Action(audit.ActionRemoveAttachment), ts); err != nil {
		return err
	}
	if err := e.Repo.SoftDeleteAttachment(ctx, tx, a.ID, ts); err != nil {
		return err
	}
	if _, err := e.audit().Append(ctx, tx, audit.Entry{
		RequestID:  req.ID,
		ActionType: audit.ActionRemoveAttachment,
		ActorID:    s.Actor.ID,
		ActorName:  actorName(s),
		Remarks:    a.FileName,
	}, &req, req); err != nil {
		return err
	}
	return tx.Commit()
}

// touchPending re-checks inside tx that the request is still Pending.
func (e Engine) touchPending(ctx context.Context, tx *sql.Tx, req domain.Request, action domain.Action, ts string) error {
	err := e.Repo.TouchRequest(ctx, tx, req.ID, domain.StatusPending, ts)
	if errors.Is(err, repo.ErrStale) {
		return workflow.InvalidTransitionError{From: req.Status, Action: action, Reason: "request changed concurrently"}
	}
	return err
}
