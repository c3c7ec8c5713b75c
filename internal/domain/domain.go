package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Status is the persisted request status code.
type Status int

const (
	StatusPending      Status = 1
	StatusApproved     Status = 2
	StatusOngoing      Status = 3
	StatusDone         Status = 4
	StatusAcknowledged Status = 5
	StatusCancelled    Status = 6
	StatusDisapproved  Status = 7
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusPending,
	StatusApproved,
	StatusOngoing,
	StatusDone,
	StatusAcknowledged,
	StatusCancelled,
	StatusDisapproved,
}

var statusLabels = map[Status]string{
	StatusPending:      "Pending",
	StatusApproved:     "Approved",
	StatusOngoing:      "Ongoing",
	StatusDone:         "Done",
	StatusAcknowledged: "Acknowledged",
	StatusCancelled:    "Cancelled",
	StatusDisapproved:  "Disapproved",
}

var statusColors = map[Status]string{
	StatusPending:      "gold",
	StatusApproved:     "lime",
	StatusOngoing:      "blue",
	StatusDone:         "green",
	StatusAcknowledged: "green",
	StatusCancelled:    "volcano",
	StatusDisapproved:  "red",
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s Status) String() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return "Unknown"
}

func (s Status) Color() string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "default"
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusAcknowledged || s == StatusCancelled || s == StatusDisapproved
}

// ParseStatus accepts a label (any case) or its numeric code.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		s := Status(n)
		if !s.Valid() {
			return 0, fmt.Errorf("invalid status code %d", n)
		}
		return s, nil
	}
	for s, label := range statusLabels {
		if strings.EqualFold(label, v) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("invalid status %q", v)
}

// Action is a workflow action label as sent by clients.
type Action string

const (
	ActionCancel      Action = "CANCEL"
	ActionApprove     Action = "APPROVE"
	ActionDisapprove  Action = "DISAPPROVE"
	ActionOngoing     Action = "ONGOING"
	ActionDone        Action = "DONE"
	ActionAcknowledge Action = "ACKNOWLEDGE"
	ActionView        Action = "VIEW"
)

// Actions is the canonical action order used for stable listings.
var Actions = []Action{
	ActionCancel,
	ActionApprove,
	ActionDisapprove,
	ActionOngoing,
	ActionDone,
	ActionAcknowledge,
	ActionView,
}

// ParseAction normalizes an action label. ASSIGN is accepted as ONGOING.
func ParseAction(v string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(v)))
	if a == "ASSIGN" {
		return ActionOngoing, true
	}
	for _, known := range Actions {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// Role is a single actor role flag.
type Role uint8

const (
	RoleRequestor Role = 1 << iota
	RoleDepartmentHead
	RoleFacilities
	RoleCoordinator
)

var roleNames = []struct {
	role Role
	name string
}{
	{RoleRequestor, "requestor"},
	{RoleDepartmentHead, "department_head"},
	{RoleFacilities, "facilities"},
	{RoleCoordinator, "coordinator"},
}

func (r Role) String() string {
	for _, rn := range roleNames {
		if rn.role == r {
			return rn.name
		}
	}
	return "unknown"
}

// Roles is the closed set of roles an actor holds.
type Roles uint8

func (rs Roles) Has(r Role) bool { return uint8(rs)&uint8(r) != 0 }

func (rs Roles) With(r Role) Roles { return Roles(uint8(rs) | uint8(r)) }

func (rs Roles) Empty() bool { return rs == 0 }

func (rs Roles) List() []string {
	out := []string{}
	for _, rn := range roleNames {
		if rs.Has(rn.role) {
			out = append(out, rn.name)
		}
	}
	return out
}

// Actor is the acting identity resolved from the directory.
type Actor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	ProdLine   string `json:"prodline,omitempty"`
	Station    string `json:"station,omitempty"`
	JobTitle   string `json:"job_title,omitempty"`
	Position   int    `json:"position"`
	Roles      Roles  `json:"-"`
}

// Session is the explicit context handed to every rule evaluation.
type Session struct {
	Actor        Actor
	Subordinates map[string]struct{}
}

func (s Session) Is(r Role) bool { return s.Actor.Roles.Has(r) }

// Manages reports whether employeeID reports to the session actor.
func (s Session) Manages(employeeID string) bool {
	if employeeID == "" {
		return false
	}
	_, ok := s.Subordinates[employeeID]
	return ok
}

func (s Session) SubordinateIDs() []string {
	out := make([]string, 0, len(s.Subordinates))
	for id := range s.Subordinates {
		out = append(out, id)
	}
	return out
}

type Request struct {
	ID            int64            `json:"id"`
	JorfID        string           `json:"jorf_id"`
	RequestorID   string           `json:"requestor_id"`
	RequestorName string           `json:"requestor_name"`
	Department    string           `json:"department"`
	ProdLine      string           `json:"prodline,omitempty"`
	Station       string           `json:"station,omitempty"`
	RequestType   string           `json:"request_type"`
	Details       string           `json:"details"`
	Remarks       string           `json:"remarks,omitempty"`
	Status        Status           `json:"status"`
	CostAmount    *decimal.Decimal `json:"cost_amount,omitempty"`
	Rating        *int             `json:"rating,omitempty"`
	HandledBy     []string         `json:"handled_by,omitempty"`
	HandledAt     *string          `json:"handled_at,omitempty"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
}

func (r Request) IsHandler(id string) bool {
	if id == "" {
		return false
	}
	for _, h := range r.HandledBy {
		if h == id {
			return true
		}
	}
	return false
}

type Attachment struct {
	ID         string  `json:"id"`
	RequestID  int64   `json:"request_id"`
	FileName   string  `json:"file_name"`
	Path       string  `json:"path"`
	Size       int64   `json:"size"`
	MimeType   string  `json:"mime_type"`
	UploadedBy string  `json:"uploaded_by"`
	UploadedAt string  `json:"uploaded_at"`
	DeletedAt  *string `json:"deleted_at,omitempty"`
}

type AuditEntry struct {
	ID         int64          `json:"id"`
	RequestID  int64          `json:"request_id"`
	ActionType string         `json:"action_type"`
	ActorID    string         `json:"actor_id"`
	ActorName  string         `json:"actor_name,omitempty"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	Remarks    string         `json:"remarks,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

type Notification struct {
	ID             string  `json:"id"`
	Recipient      string  `json:"recipient"`
	RequestID      int64   `json:"request_id"`
	JorfID         string  `json:"jorf_id"`
	Message        string  `json:"message"`
	Category       string  `json:"category"`
	ActionRequired string  `json:"action_required,omitempty"`
	ReadAt         *string `json:"read_at,omitempty"`
	DeliveredAt    *string `json:"delivered_at,omitempty"`
	Attempts       int     `json:"attempts"`
	CreatedAt      string  `json:"created_at"`
}

// Employee is one row of the external masterlist directory.
type Employee struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Department string `json:"department" yaml:"department"`
	ProdLine   string `json:"prodline,omitempty" yaml:"prodline"`
	Station    string `json:"station,omitempty" yaml:"station"`
	JobTitle   string `json:"job_title,omitempty" yaml:"job_title"`
	Position   int    `json:"position" yaml:"position"`
	Approver2  string `json:"approver2,omitempty" yaml:"approver2"`
	Approver3  string `json:"approver3,omitempty" yaml:"approver3"`
	Active     bool   `json:"active" yaml:"-"`
}

type RequestType struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	UpdatedBy string `json:"updated_by,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// RequestorEntry grants the requestor role to an identity outside the position rule.
type RequestorEntry struct {
	EmployeeID string `json:"employee_id"`
	AddedBy    string `json:"added_by"`
	AddedAt    string `json:"added_at"`
}

type StatusCount struct {
	Label  string `json:"label"`
	Status int    `json:"status"`
	Color  string `json:"color"`
	Count  int    `json:"count"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
