package workflow

import (
	"sort"

	"jorfline/internal/domain"
)

type VisibilityKind string

const (
	// VisibleSubordinates limits a department head to their reports' requests.
	VisibleSubordinates VisibilityKind = "subordinates"
	// VisibleNonPending hides requests still awaiting approval.
	VisibleNonPending VisibilityKind = "non_pending"
	// VisibleOwn limits a requestor to their own requests.
	VisibleOwn VisibilityKind = "own"
)

// Visibility is the single filter that applies to an actor.
type Visibility struct {
	Kind       VisibilityKind
	Requestors []string
}

// VisibilityFor picks the filter by role precedence: department head,
// facilities, requestor, then the default. Filters are never combined.
func VisibilityFor(s domain.Session) Visibility {
	switch {
	case s.Is(domain.RoleDepartmentHead):
		ids := s.SubordinateIDs()
		sort.Strings(ids)
		return Visibility{Kind: VisibleSubordinates, Requestors: ids}
	case s.Is(domain.RoleFacilities), s.Is(domain.RoleCoordinator):
		return Visibility{Kind: VisibleNonPending}
	case s.Is(domain.RoleRequestor):
		return Visibility{Kind: VisibleOwn, Requestors: []string{s.Actor.ID}}
	default:
		return Visibility{Kind: VisibleNonPending}
	}
}

// Allows evaluates the filter against a single request.
func (v Visibility) Allows(r domain.Request) bool {
	switch v.Kind {
	case VisibleSubordinates, VisibleOwn:
		for _, id := range v.Requestors {
			if id == r.RequestorID {
				return true
			}
		}
		return false
	default:
		return r.Status != domain.StatusPending
	}
}
