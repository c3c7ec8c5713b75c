package directory

import (
	"context"
	"errors"
	"strings"

	"jorfline/internal/config"
	"jorfline/internal/domain"
	"jorfline/internal/logging"
	"jorfline/internal/workflow"
)

// Allowlist reports identities explicitly granted the requestor role.
type Allowlist interface {
	IsAllowedRequestor(ctx context.Context, id string) (bool, error)
}

// ResolveSession derives the actor's roles once and returns the explicit
// context every rule takes. Access is denied unless the employee meets the
// minimum position, belongs to facilities, or is allow-listed.
func ResolveSession(ctx context.Context, dir Directory, allow Allowlist, cfg *config.Config, id string) (domain.Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Session{}, workflow.AuthorizationError{Reason: "no identity supplied"}
	}
	emp, err := dir.Employee(ctx, id)
	if errors.Is(err, ErrUnknownEmployee) {
		return domain.Session{}, workflow.AuthorizationError{ActorID: id, Reason: "not in the employee directory"}
	}
	if err != nil {
		return domain.Session{}, workflow.UpstreamDependencyError{Dependency: "directory", Err: err}
	}
	if !emp.Active {
		return domain.Session{}, workflow.AuthorizationError{ActorID: id, Reason: "account is inactive"}
	}
	allowed := false
	if allow != nil {
		allowed, err = allow.IsAllowedRequestor(ctx, id)
		if err != nil {
			return domain.Session{}, workflow.UpstreamDependencyError{Dependency: "requestor allow-list", Err: err}
		}
	}
	org := cfg.Organization
	facilities := org.FacilitiesDepartment != "" &&
		strings.Contains(strings.ToLower(emp.Department), strings.ToLower(org.FacilitiesDepartment))
	if emp.Position < org.MinAccessPosition && !facilities && !allowed {
		return domain.Session{}, workflow.AuthorizationError{ActorID: id, Reason: "no access to facilities requests"}
	}

	var roles domain.Roles
	if emp.Position == org.RequestorPosition || allowed {
		roles = roles.With(domain.RoleRequestor)
	}
	if facilities {
		roles = roles.With(domain.RoleFacilities)
		if strings.HasPrefix(strings.ToLower(emp.JobTitle), strings.ToLower(org.CoordinatorTitlePrefix)) {
			roles = roles.With(domain.RoleCoordinator)
		}
	}
	subs := map[string]struct{}{}
	ids, err := dir.Subordinates(ctx, id)
	if err != nil {
		log := logging.FromContext(ctx)
		log.Error().Err(err).Str("actor_id", id).Msg("subordinate lookup failed; continuing without department head role")
	}
	for _, sid := range ids {
		if sid != "" && sid != id {
			subs[sid] = struct{}{}
		}
	}
	if len(subs) > 0 {
		roles = roles.With(domain.RoleDepartmentHead)
	}

	return domain.Session{
		Actor: domain.Actor{
			ID:         emp.ID,
			Name:       emp.Name,
			Department: emp.Department,
			ProdLine:   emp.ProdLine,
			Station:    emp.Station,
			JobTitle:   emp.JobTitle,
			Position:   emp.Position,
			Roles:      roles,
		},
		Subordinates: subs,
	}, nil
}
