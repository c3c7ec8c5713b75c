// Package directory consumes the external employee masterlist: who reports
// to whom, departments and job titles. It never issues identities.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jorfline/internal/config"
	"jorfline/internal/domain"
	"jorfline/internal/repo"
)

// Directory answers the identity questions the workflow needs.
type Directory interface {
	Employee(ctx context.Context, id string) (domain.Employee, error)
	Subordinates(ctx context.Context, headID string) ([]string, error)
	Approvers(ctx context.Context, requestorID string) ([]string, error)
	FacilitiesCoordinators(ctx context.Context) ([]string, error)
	FacilitiesEmployees(ctx context.Context) ([]domain.Employee, error)
}

// ErrUnknownEmployee is returned when the masterlist has no such identity.
var ErrUnknownEmployee = errors.New("unknown employee")

// SQL serves the directory from the imported employees table.
type SQL struct {
	Repo   repo.Repo
	Config *config.Config
}

func NewSQL(r repo.Repo, cfg *config.Config) SQL {
	if cfg == nil {
		cfg = config.Default()
	}
	return SQL{Repo: r, Config: cfg}
}

func (d SQL) Employee(ctx context.Context, id string) (domain.Employee, error) {
	e, err := d.Repo.GetEmployee(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return e, fmt.Errorf("%w: %s", ErrUnknownEmployee, id)
	}
	return e, err
}

func (d SQL) Subordinates(ctx context.Context, headID string) ([]string, error) {
	return d.Repo.SubordinatesOf(ctx, headID)
}

// Approvers returns the up to two designated approvers of a requestor.
func (d SQL) Approvers(ctx context.Context, requestorID string) ([]string, error) {
	e, err := d.Employee(ctx, requestorID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range []string{e.Approver2, e.Approver3} {
		if strings.TrimSpace(id) != "" {
			out = append(out, strings.TrimSpace(id))
		}
	}
	return out, nil
}

func (d SQL) FacilitiesCoordinators(ctx context.Context) ([]string, error) {
	emps, err := d.Repo.ListEmployees(ctx, repo.EmployeeFilter{
		Department:  d.Config.Organization.FacilitiesDepartment,
		TitlePrefix: d.Config.Organization.CoordinatorTitlePrefix,
		ActiveOnly:  true,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(emps))
	for _, e := range emps {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (d SQL) FacilitiesEmployees(ctx context.Context) ([]domain.Employee, error) {
	return d.Repo.ListEmployees(ctx, repo.EmployeeFilter{
		Department: d.Config.Organization.FacilitiesDepartment,
		ActiveOnly: true,
	})
}
