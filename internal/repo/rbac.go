package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"jorfline/internal/domain"
)

// IsAllowedRequestor reports whether id was granted the requestor role explicitly.
func (r Repo) IsAllowedRequestor(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM requestor_allowlist WHERE employee_id=?`, strings.TrimSpace(id)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) AddRequestor(ctx context.Context, e domain.RequestorEntry) error {
	e.EmployeeID = strings.TrimSpace(e.EmployeeID)
	if e.EmployeeID == "" {
		return errors.New("employee_id required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO requestor_allowlist(employee_id, added_by, added_at) VALUES (?,?,?)`,
		e.EmployeeID, e.AddedBy, e.AddedAt)
	return err
}

func (r Repo) RemoveRequestor(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM requestor_allowlist WHERE employee_id=?`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListRequestors(ctx context.Context) ([]domain.RequestorEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT employee_id, added_by, added_at FROM requestor_allowlist ORDER BY employee_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.RequestorEntry{}
	for rows.Next() {
		var e domain.RequestorEntry
		if err := rows.Scan(&e.EmployeeID, &e.AddedBy, &e.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const requestTypeColumns = `id,name,is_active,created_by,created_at,COALESCE(updated_by,''),COALESCE(updated_at,'')`

func scanRequestType(s rowScanner) (domain.RequestType, error) {
	var t domain.RequestType
	var active int
	err := s.Scan(&t.ID, &t.Name, &active, &t.CreatedBy, &t.CreatedAt, &t.UpdatedBy, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Active = active == 1
	return t, err
}

func (r Repo) InsertRequestType(ctx context.Context, t domain.RequestType) (domain.RequestType, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, errors.New("name required")
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO request_types(name,is_active,created_by,created_at) VALUES (?,?,?,?)`,
		t.Name, boolInt(t.Active), t.CreatedBy, t.CreatedAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return t, fmt.Errorf("request type %q: %w", t.Name, ErrConflict)
		}
		return t, err
	}
	t.ID, err = res.LastInsertId()
	return t, err
}

func (r Repo) GetRequestTypeByName(ctx context.Context, name string) (domain.RequestType, error) {
	return scanRequestType(r.DB.QueryRowContext(ctx, `SELECT `+requestTypeColumns+` FROM request_types WHERE name=? COLLATE NOCASE`, strings.TrimSpace(name)))
}

func (r Repo) ListRequestTypes(ctx context.Context, activeOnly bool) ([]domain.RequestType, error) {
	query := `SELECT ` + requestTypeColumns + ` FROM request_types`
	if activeOnly {
		query += ` WHERE is_active=1`
	}
	query += ` ORDER BY name`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.RequestType{}
	for rows.Next() {
		t, err := scanRequestType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r Repo) SetRequestTypeActive(ctx context.Context, name string, active bool, by, ts string) (domain.RequestType, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE request_types SET is_active=?, updated_by=?, updated_at=? WHERE name=? COLLATE NOCASE`,
		boolInt(active), by, ts, strings.TrimSpace(name))
	if err != nil {
		return domain.RequestType{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.RequestType{}, ErrNotFound
	}
	return r.GetRequestTypeByName(ctx, name)
}
