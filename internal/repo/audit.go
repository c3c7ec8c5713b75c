package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"jorfline/internal/domain"
)

const auditColumns = `id,request_id,action_type,actor_id,COALESCE(actor_name,''),old_values,new_values,COALESCE(remarks,''),created_at`

func scanAudit(s rowScanner) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var oldV, newV sql.NullString
	if err := s.Scan(&e.ID, &e.RequestID, &e.ActionType, &e.ActorID, &e.ActorName, &oldV, &newV, &e.Remarks, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return e, ErrNotFound
		}
		return e, err
	}
	if oldV.Valid && oldV.String != "" {
		if err := json.Unmarshal([]byte(oldV.String), &e.OldValues); err != nil {
			return e, fmt.Errorf("audit %d old_values: %w", e.ID, err)
		}
	}
	if newV.Valid && newV.String != "" {
		if err := json.Unmarshal([]byte(newV.String), &e.NewValues); err != nil {
			return e, fmt.Errorf("audit %d new_values: %w", e.ID, err)
		}
	}
	return e, nil
}

// InsertAuditEntry appends one immutable history row.
func (r Repo) InsertAuditEntry(ctx context.Context, tx *sql.Tx, e domain.AuditEntry) (int64, error) {
	oldV, err := encodeValues(e.OldValues)
	if err != nil {
		return 0, err
	}
	newV, err := encodeValues(e.NewValues)
	if err != nil {
		return 0, err
	}
	res, err := r.conn(tx).ExecContext(ctx, `INSERT INTO audit_log(request_id,action_type,actor_id,actor_name,old_values,new_values,remarks,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.RequestID, e.ActionType, e.ActorID, nullable(e.ActorName), oldV, newV, nullable(e.Remarks), e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	return res.LastInsertId()
}

// ListAuditEntries returns one page of a request's history, newest first.
func (r Repo) ListAuditEntries(ctx context.Context, requestID int64, page, pageSize int) ([]domain.AuditEntry, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 5
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE request_id=?`, requestID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE request_id=? ORDER BY id DESC LIMIT ? OFFSET ?`,
		requestID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []domain.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// AuditEntriesAfter returns entries with id > after in ascending order.
func (r Repo) AuditEntriesAfter(ctx context.Context, after int64, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE id>? ORDER BY id ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r Repo) LatestAuditID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM audit_log`).Scan(&id)
	return id, err
}

func encodeValues(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode audit values: %w", err)
	}
	return string(b), nil
}
