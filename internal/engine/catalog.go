package engine

import (
	"context"
	"errors"
	"strings"

	"jorfline/internal/domain"
	"jorfline/internal/repo"
	"jorfline/internal/workflow"
)

func requireCoordinator(s domain.Session, what string) error {
	if s.Is(domain.RoleCoordinator) {
		return nil
	}
	return workflow.AuthorizationError{ActorID: s.Actor.ID, Reason: "facilities coordinator role required to " + what}
}

func (e Engine) RequestTypes(ctx context.Context, activeOnly bool) ([]domain.RequestType, error) {
	return e.Repo.ListRequestTypes(ctx, activeOnly)
}

func (e Engine) AddRequestType(ctx context.Context, s domain.Session, name string) (domain.RequestType, error) {
	if err := requireCoordinator(s, "manage request types"); err != nil {
		return domain.RequestType{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.RequestType{}, workflow.ValidationError{Field: "name", Reason: "is required"}
	}
	t, err := e.Repo.InsertRequestType(ctx, domain.RequestType{Name: name, Active: true, CreatedBy: s.Actor.ID, CreatedAt: e.timestamp()})
	if errors.Is(err, repo.ErrConflict) {
		return t, workflow.ValidationError{Field: "name", Reason: "already exists"}
	}
	return t, err
}

func (e Engine) SetRequestTypeActive(ctx context.Context, s domain.Session, name string, active bool) (domain.RequestType, error) {
	if err := requireCoordinator(s, "manage request types"); err != nil {
		return domain.RequestType{}, err
	}
	t, err := e.Repo.SetRequestTypeActive(ctx, name, active, s.Actor.ID, e.timestamp())
	if errors.Is(err, repo.ErrNotFound) {
		return t, workflow.NotFoundError{Kind: "request type", ID: name}
	}
	return t, err
}

func (e Engine) Requestors(ctx context.Context, s domain.Session) ([]domain.RequestorEntry, error) {
	if err := requireCoordinator(s, "view the requestor list"); err != nil {
		return nil, err
	}
	return e.Repo.ListRequestors(ctx)
}

// AddRequestor grants the requestor role to a known employee outside the
// position rule.
func (e Engine) AddRequestor(ctx context.Context, s domain.Session, employeeID string) (domain.RequestorEntry, error) {
	if err := requireCoordinator(s, "manage requestors"); err != nil {
		return domain.RequestorEntry{}, err
	}
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return domain.RequestorEntry{}, workflow.ValidationError{Field: "employee_id", Reason: "is required"}
	}
	if _, err := e.Directory.Employee(ctx, employeeID); err != nil {
		return domain.RequestorEntry{}, workflow.NotFoundError{Kind: "employee", ID: employeeID}
	}
	entry := domain.RequestorEntry{EmployeeID: employeeID, AddedBy: s.Actor.ID, AddedAt: e.timestamp()}
	if err := e.Repo.AddRequestor(ctx, entry); err != nil {
		return domain.RequestorEntry{}, err
	}
	return entry, nil
}

func (e Engine) RemoveRequestor(ctx context.Context, s domain.Session, employeeID string) error {
	if err := requireCoordinator(s, "manage requestors"); err != nil {
		return err
	}
	err := e.Repo.RemoveRequestor(ctx, employeeID)
	if errors.Is(err, repo.ErrNotFound) {
		return workflow.NotFoundError{Kind: "requestor", ID: employeeID}
	}
	return err
}

// FacilitiesEmployees lists the staff a coordinator may assign as handlers.
func (e Engine) FacilitiesEmployees(ctx context.Context, s domain.Session) ([]domain.Employee, error) {
	if !s.Is(domain.RoleFacilities) && !s.Is(domain.RoleCoordinator) {
		return nil, workflow.AuthorizationError{ActorID: s.Actor.ID, Reason: "facilities role required"}
	}
	emps, err := e.Directory.FacilitiesEmployees(ctx)
	if err != nil {
		return nil, workflow.UpstreamDependencyError{Dependency: "directory", Err: err}
	}
	if emps == nil {
		emps = []domain.Employee{}
	}
	return emps, nil
}
