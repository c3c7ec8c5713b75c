// Package audit appends the immutable request history.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wI2L/jsondiff"

	"jorfline/internal/domain"
	"jorfline/internal/repo"
)

const (
	// ActionCreate tags the entry written when a request is submitted.
	ActionCreate           = "CREATE"
	ActionAddAttachment    = "ADD_ATTACHMENT"
	ActionRemoveAttachment = "REMOVE_ATTACHMENT"
)

type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

// Entry describes who did what; the field diff is computed by Append.
type Entry struct {
	RequestID  int64
	ActionType string
	ActorID    string
	ActorName  string
	Remarks    string
}

// Append diffs the two snapshots and writes one row inside tx. A nil before
// records every populated field as new.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry, before *domain.Request, after domain.Request) (domain.AuditEntry, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	oldV, newV, err := Diff(before, after)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	entry := domain.AuditEntry{
		RequestID:  e.RequestID,
		ActionType: e.ActionType,
		ActorID:    e.ActorID,
		ActorName:  e.ActorName,
		OldValues:  oldV,
		NewValues:  newV,
		Remarks:    strings.TrimSpace(e.Remarks),
		CreatedAt:  w.Now().UTC().Format(time.RFC3339),
	}
	id, err := w.Repo.InsertAuditEntry(ctx, tx, entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	entry.ID = id
	return entry, nil
}

// Snapshot is the audited view of a request.
func Snapshot(r domain.Request) map[string]any {
	snap := map[string]any{
		"status":       r.Status.String(),
		"request_type": r.RequestType,
		"details":      r.Details,
	}
	if r.Remarks != "" {
		snap["remarks"] = r.Remarks
	}
	if r.CostAmount != nil {
		snap["cost_amount"] = r.CostAmount.StringFixed(2)
	}
	if r.Rating != nil {
		snap["rating"] = *r.Rating
	}
	if len(r.HandledBy) > 0 {
		handlers := make([]any, 0, len(r.HandledBy))
		for _, h := range r.HandledBy {
			handlers = append(handlers, h)
		}
		snap["handled_by"] = handlers
	}
	if r.HandledAt != nil {
		snap["handled_at"] = *r.HandledAt
	}
	return snap
}

// Diff returns the old and new values of every top-level field that changed.
func Diff(before *domain.Request, after domain.Request) (map[string]any, map[string]any, error) {
	next := Snapshot(after)
	if before == nil {
		return nil, next, nil
	}
	prev := Snapshot(*before)
	patch, err := jsondiff.Compare(prev, next)
	if err != nil {
		return nil, nil, fmt.Errorf("diff request snapshot: %w", err)
	}
	oldV := map[string]any{}
	newV := map[string]any{}
	for _, op := range patch {
		key := topLevelKey(op.Path)
		if key == "" {
			continue
		}
		if v, ok := prev[key]; ok {
			oldV[key] = v
		}
		if v, ok := next[key]; ok {
			newV[key] = v
		}
	}
	if len(oldV) == 0 {
		oldV = nil
	}
	if len(newV) == 0 {
		newV = nil
	}
	return oldV, newV, nil
}

func topLevelKey(pointer string) string {
	p := strings.TrimPrefix(pointer, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(p)
}
