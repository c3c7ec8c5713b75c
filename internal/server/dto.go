package server

import (
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"jorfline/internal/domain"
	"jorfline/internal/engine"
	"jorfline/internal/notify"
)

// Request payloads

type AttachmentRequest struct {
	FileName string `json:"file_name,omitempty"`
	Path     string `json:"path"`
	Size     int64  `json:"size" minimum:"0"`
	MimeType string `json:"mime_type,omitempty"`
}

type SubmitRequest struct {
	RequestType string              `json:"request_type"`
	Details     string              `json:"details"`
	Remarks     string              `json:"remarks,omitempty"`
	Attachments []AttachmentRequest `json:"attachments,omitempty"`
}

func attachmentInputs(in []AttachmentRequest) []engine.AttachmentInput {
	var out []engine.AttachmentInput
	for _, a := range in {
		out = append(out, engine.AttachmentInput{FileName: a.FileName, Path: a.Path, Size: a.Size, MimeType: a.MimeType})
	}
	return out
}

// Amount is a money value carried as a JSON number. It decodes from and
// encodes to the literal digits, never through float64.
type Amount struct {
	decimal.Decimal
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (Amount) Schema(huma.Registry) *huma.Schema {
	return &huma.Schema{Type: huma.TypeNumber, Format: "decimal"}
}

type ActRequest struct {
	Action     string   `json:"action" example:"APPROVE"`
	Remarks    string   `json:"remarks,omitempty"`
	CostAmount *Amount  `json:"cost_amount,omitempty"`
	HandledBy  []string `json:"handled_by,omitempty"`
	Rating     *int     `json:"rating,omitempty"`
}

func (r ActRequest) input() engine.ActInput {
	in := engine.ActInput{Action: r.Action, Remarks: r.Remarks, HandledBy: r.HandledBy, Rating: r.Rating}
	if r.CostAmount != nil {
		d := r.CostAmount.Decimal
		in.CostAmount = &d
	}
	return in
}

type RequestTypeRequest struct {
	Name string `json:"name"`
}

type RequestTypeStatusRequest struct {
	Active bool `json:"active"`
}

type RequestorRequest struct {
	EmployeeID string `json:"employee_id"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Responses

type RequestResponse struct {
	ID            int64           `json:"id"`
	JorfID        string          `json:"jorf_id"`
	RequestorID   string          `json:"requestor_id"`
	RequestorName string          `json:"requestor_name"`
	Department    string          `json:"department"`
	ProdLine      string          `json:"prodline,omitempty"`
	Station       string          `json:"station,omitempty"`
	RequestType   string          `json:"request_type"`
	Details       string          `json:"details"`
	Remarks       string          `json:"remarks,omitempty"`
	Status        int             `json:"status"`
	StatusLabel   string          `json:"status_label"`
	StatusColor   string          `json:"status_color"`
	Critical      bool            `json:"critical"`
	CostAmount    *Amount         `json:"cost_amount,omitempty"`
	Rating        *int            `json:"rating,omitempty"`
	HandledBy     []string        `json:"handled_by"`
	HandledAt     *string         `json:"handled_at,omitempty"`
	CreatedAt     string          `json:"created_at" format:"date-time"`
	UpdatedAt     string          `json:"updated_at" format:"date-time"`
	Actions       []domain.Action `json:"actions,omitempty"`
}

func requestResponse(r domain.Request) RequestResponse {
	out := RequestResponse{
		ID:            r.ID,
		JorfID:        r.JorfID,
		RequestorID:   r.RequestorID,
		RequestorName: r.RequestorName,
		Department:    r.Department,
		ProdLine:      r.ProdLine,
		Station:       r.Station,
		RequestType:   r.RequestType,
		Details:       r.Details,
		Remarks:       r.Remarks,
		Status:        int(r.Status),
		StatusLabel:   r.Status.String(),
		StatusColor:   r.Status.Color(),
		Rating:        r.Rating,
		HandledBy:     nonNilSlice(r.HandledBy),
		HandledAt:     r.HandledAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.CostAmount != nil {
		out.CostAmount = &Amount{Decimal: *r.CostAmount}
	}
	return out
}

func viewResponse(v engine.RequestView) RequestResponse {
	out := requestResponse(v.Request)
	out.Critical = v.Critical
	out.Actions = nonNilSlice(v.Actions)
	return out
}

type ListRequestsResponse struct {
	Items    []RequestResponse `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

func listResponse(res engine.ListResult) ListRequestsResponse {
	items := make([]RequestResponse, 0, len(res.Items))
	for _, v := range res.Items {
		items = append(items, viewResponse(v))
	}
	return ListRequestsResponse{Items: items, Total: res.Total, Page: res.Page, PageSize: res.PageSize}
}

type SubmitResponse struct {
	Request     RequestResponse     `json:"request"`
	Attachments []domain.Attachment `json:"attachments"`
	Notified    notify.Result       `json:"notified"`
}

type ActResponse struct {
	Request  RequestResponse   `json:"request"`
	Audit    domain.AuditEntry `json:"audit"`
	Notified notify.Result     `json:"notified"`
}

type ActionsResponse struct {
	JorfID  string          `json:"jorf_id"`
	Actions []domain.Action `json:"actions"`
}

type MeResponse struct {
	ActorID      string   `json:"actor_id"`
	Name         string   `json:"name"`
	Department   string   `json:"department"`
	JobTitle     string   `json:"job_title,omitempty"`
	Position     int      `json:"position"`
	Roles        []string `json:"roles"`
	Subordinates []string `json:"subordinates"`
	Unread       int      `json:"unread_notifications"`
	AuthSource   string   `json:"auth_source,omitempty"`
}

func meResponse(s domain.Session, source string, unread int) MeResponse {
	subs := s.SubordinateIDs()
	sort.Strings(subs)
	return MeResponse{
		ActorID:      s.Actor.ID,
		Name:         s.Actor.Name,
		Department:   s.Actor.Department,
		JobTitle:     s.Actor.JobTitle,
		Position:     s.Actor.Position,
		Roles:        s.Actor.Roles.List(),
		Subordinates: subs,
		Unread:       unread,
		AuthSource:   source,
	}
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type CreateAPIKeyResponse struct {
	domain.APIKey
	// Key is shown once; only its hash is stored.
	Key string `json:"key"`
}

type ReadAllResponse struct {
	Updated int64 `json:"updated"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
