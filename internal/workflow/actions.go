package workflow

import "jorfline/internal/domain"

// AvailableActions returns what the actor may invoke on the request now,
// deduplicated and in canonical order. An uninvolved actor gets an empty slice.
func AvailableActions(s domain.Session, r domain.Request) []domain.Action {
	offered := map[domain.Action]bool{}
	isRequestor := s.Actor.ID != "" && s.Actor.ID == r.RequestorID
	isHead := !isRequestor && s.Manages(r.RequestorID)
	isHandler := r.IsHandler(s.Actor.ID)
	isCoordinator := s.Is(domain.RoleCoordinator)

	if isRequestor && r.Status == domain.StatusPending {
		offered[domain.ActionCancel] = true
	}
	if isHead && r.Status == domain.StatusPending {
		offered[domain.ActionApprove] = true
		offered[domain.ActionDisapprove] = true
	}
	if isRequestor || isHead {
		offered[domain.ActionView] = true
	}

	if isCoordinator && r.Status == domain.StatusApproved {
		offered[domain.ActionOngoing] = true
	}
	if (isCoordinator || isHandler) && r.Status == domain.StatusOngoing {
		offered[domain.ActionDone] = true
	}
	if isRequestor && r.Status == domain.StatusDone {
		offered[domain.ActionAcknowledge] = true
	}
	if isHandler {
		offered[domain.ActionView] = true
	}
	if (s.Is(domain.RoleFacilities) || isCoordinator) && r.Status != domain.StatusPending {
		offered[domain.ActionView] = true
	}

	out := make([]domain.Action, 0, len(offered))
	for _, a := range domain.Actions {
		if offered[a] {
			out = append(out, a)
		}
	}
	return out
}
