package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"jorfline/internal/domain"
)

const employeeColumns = `id,name,department,prodline,station,job_title,position,COALESCE(approver2,''),COALESCE(approver3,''),active`

func scanEmployee(s rowScanner) (domain.Employee, error) {
	var e domain.Employee
	var active int
	err := s.Scan(&e.ID, &e.Name, &e.Department, &e.ProdLine, &e.Station, &e.JobTitle, &e.Position, &e.Approver2, &e.Approver3, &active)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	e.Active = active == 1
	return e, err
}

// UpsertEmployee replaces one directory row.
func (r Repo) UpsertEmployee(ctx context.Context, tx *sql.Tx, e domain.Employee) error {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return errors.New("employee id required")
	}
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO employees(id,name,department,prodline,station,job_title,position,approver2,approver3,active)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, department=excluded.department, prodline=excluded.prodline, station=excluded.station,
  job_title=excluded.job_title, position=excluded.position, approver2=excluded.approver2, approver3=excluded.approver3, active=excluded.active`,
		e.ID, e.Name, e.Department, e.ProdLine, e.Station, e.JobTitle, e.Position, nullable(e.Approver2), nullable(e.Approver3), boolInt(e.Active))
	return err
}

func (r Repo) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	return scanEmployee(r.DB.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=?`, strings.TrimSpace(id)))
}

type EmployeeFilter struct {
	// Department matches case-insensitively as a substring.
	Department string
	// TitlePrefix matches the start of the job title case-insensitively.
	TitlePrefix string
	ActiveOnly  bool
}

func (r Repo) ListEmployees(ctx context.Context, f EmployeeFilter) ([]domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE 1=1`
	var args []any
	if f.Department != "" {
		query += ` AND LOWER(department) LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(f.Department))+"%")
	}
	if f.TitlePrefix != "" {
		query += ` AND LOWER(job_title) LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(strings.ToLower(f.TitlePrefix))+"%")
	}
	if f.ActiveOnly {
		query += ` AND active=1`
	}
	query += ` ORDER BY name, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SubordinatesOf lists active employees naming headID as one of their approvers.
func (r Repo) SubordinatesOf(ctx context.Context, headID string) ([]string, error) {
	headID = strings.TrimSpace(headID)
	if headID == "" {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM employees WHERE (approver2=? OR approver3=?) AND active=1 ORDER BY id`, headID, headID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
