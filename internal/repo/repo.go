package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"jorfline/internal/domain"
	"jorfline/internal/workflow"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrStale means the row changed between read and guarded write.
	ErrStale = errors.New("stale status")
	// ErrConflict means a unique key is already taken.
	ErrConflict = errors.New("already exists")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const requestColumns = `id,jorf_id,requestor_id,requestor_name,department,prodline,station,request_type,details,COALESCE(remarks,''),status,cost_amount,rating,handled_by,handled_at,created_at,updated_at`

func scanRequest(s rowScanner) (domain.Request, error) {
	var (
		req       domain.Request
		status    int
		cost      sql.NullString
		rating    sql.NullInt64
		handledBy sql.NullString
		handledAt sql.NullString
	)
	err := s.Scan(&req.ID, &req.JorfID, &req.RequestorID, &req.RequestorName, &req.Department, &req.ProdLine, &req.Station,
		&req.RequestType, &req.Details, &req.Remarks, &status, &cost, &rating, &handledBy, &handledAt, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	req.Status = domain.Status(status)
	if !req.Status.Valid() {
		return req, fmt.Errorf("request %s: invalid status code %d", req.JorfID, status)
	}
	if cost.Valid && cost.String != "" {
		d, err := decimal.NewFromString(cost.String)
		if err != nil {
			return req, fmt.Errorf("request %s: invalid cost_amount: %w", req.JorfID, err)
		}
		req.CostAmount = &d
	}
	if rating.Valid {
		v := int(rating.Int64)
		req.Rating = &v
	}
	if handledBy.Valid && handledBy.String != "" {
		if err := json.Unmarshal([]byte(handledBy.String), &req.HandledBy); err != nil {
			return req, fmt.Errorf("request %s: invalid handled_by: %w", req.JorfID, err)
		}
	}
	if handledAt.Valid {
		v := handledAt.String
		req.HandledAt = &v
	}
	return req, nil
}

// NextJorfID returns the next human code for the year, e.g. JORF-2025-007.
func (r Repo) NextJorfID(ctx context.Context, tx *sql.Tx, prefix string, year int) (string, error) {
	stem := fmt.Sprintf("%s-%d-", prefix, year)
	var last int
	err := r.conn(tx).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(SUBSTR(jorf_id, ?) AS INTEGER)), 0) FROM requests WHERE jorf_id LIKE ?`,
		len(stem)+1, stem+"%").Scan(&last)
	if err != nil {
		return "", fmt.Errorf("next jorf id: %w", err)
	}
	return fmt.Sprintf("%s%03d", stem, last+1), nil
}

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req domain.Request) (int64, error) {
	handledBy, err := encodeHandlers(req.HandledBy)
	if err != nil {
		return 0, err
	}
	res, err := r.conn(tx).ExecContext(ctx, `INSERT INTO requests(jorf_id,requestor_id,requestor_name,department,prodline,station,request_type,details,remarks,status,cost_amount,rating,handled_by,handled_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.JorfID, req.RequestorID, req.RequestorName, req.Department, req.ProdLine, req.Station, req.RequestType, req.Details,
		nullable(req.Remarks), int(req.Status), nullableDecimal(req.CostAmount), nullableInt(req.Rating), handledBy, req.HandledAt,
		req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) GetRequestByJorfID(ctx context.Context, jorfID string) (domain.Request, error) {
	return scanRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE jorf_id=?`, strings.TrimSpace(jorfID)))
}

func (r Repo) GetRequest(ctx context.Context, id int64) (domain.Request, error) {
	return scanRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=?`, id))
}

// UpdateRequestState writes the lifecycle fields only if the stored status
// still equals expected.
func (r Repo) UpdateRequestState(ctx context.Context, tx *sql.Tx, req domain.Request, expected domain.Status) error {
	handledBy, err := encodeHandlers(req.HandledBy)
	if err != nil {
		return err
	}
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE requests SET status=?, remarks=?, cost_amount=?, rating=?, handled_by=?, handled_at=?, updated_at=?
WHERE id=? AND status=?`,
		int(req.Status), nullable(req.Remarks), nullableDecimal(req.CostAmount), nullableInt(req.Rating), handledBy, req.HandledAt, req.UpdatedAt,
		req.ID, int(expected))
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}
	return nil
}

// TouchRequest bumps updated_at only while the request still has the
// expected status, so side records cannot land after a concurrent transition.
func (r Repo) TouchRequest(ctx context.Context, tx *sql.Tx, id int64, expected domain.Status, ts string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE requests SET updated_at=? WHERE id=? AND status=?`, ts, id, int(expected))
	if err != nil {
		return fmt.Errorf("touch request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}
	return nil
}

// RequestFilter narrows a request listing. Visibility is always applied.
type RequestFilter struct {
	Visibility  workflow.Visibility
	Status      domain.Status
	RequestType string
	RequestorID string
	Search      string
	SortBy      string
	Desc        bool
	Page        int
	PageSize    int
}

type RequestPage struct {
	Items    []domain.Request `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

var sortColumns = map[string]string{
	"jorf_id":        "jorf_id",
	"created_at":     "created_at",
	"updated_at":     "updated_at",
	"status":         "status",
	"request_type":   "request_type",
	"requestor_name": "requestor_name",
	"department":     "department",
	"handled_at":     "handled_at",
}

// SortColumn reports whether a sort key is accepted.
func SortColumn(key string) bool {
	_, ok := sortColumns[key]
	return ok
}

func visibilityClause(v workflow.Visibility) (string, []any) {
	switch v.Kind {
	case workflow.VisibleSubordinates, workflow.VisibleOwn:
		if len(v.Requestors) == 0 {
			return "1=0", nil
		}
		args := make([]any, 0, len(v.Requestors))
		for _, id := range v.Requestors {
			args = append(args, id)
		}
		return "requestor_id IN (" + placeholders(len(args)) + ")", args
	default:
		return "status <> ?", []any{int(domain.StatusPending)}
	}
}

func searchClause(search string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	like := "%" + escapeLike(search) + "%"
	cols := []string{"jorf_id", "requestor_name", "requestor_id", "department", "prodline", "details"}
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, c+` LIKE ? ESCAPE '\'`)
		args = append(args, like)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func (f RequestFilter) where(withStatus bool) (string, []any) {
	clause, args := visibilityClause(f.Visibility)
	conds := []string{clause}
	if withStatus && f.Status != 0 {
		conds = append(conds, "status=?")
		args = append(args, int(f.Status))
	}
	if f.RequestType != "" {
		conds = append(conds, "request_type=?")
		args = append(args, f.RequestType)
	}
	if f.RequestorID != "" {
		conds = append(conds, "requestor_id=?")
		args = append(args, f.RequestorID)
	}
	if s, sargs := searchClause(f.Search); s != "" {
		conds = append(conds, s)
		args = append(args, sargs...)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilter) (RequestPage, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 10
	}
	where, args := f.where(true)
	page := RequestPage{Items: []domain.Request{}, Page: f.Page, PageSize: f.PageSize}
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`+where, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count requests: %w", err)
	}
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
		f.Desc = true
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM requests%s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`, requestColumns, where, col, dir, dir)
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return page, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, req)
	}
	return page, rows.Err()
}

// CountRequestsByStatus counts visible requests per status, ignoring any status filter.
func (r Repo) CountRequestsByStatus(ctx context.Context, f RequestFilter) (map[domain.Status]int, error) {
	where, args := f.where(false)
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM requests`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	counts := map[domain.Status]int{}
	for rows.Next() {
		var st, n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[domain.Status(st)] = n
	}
	return counts, rows.Err()
}

func encodeHandlers(ids []string) (any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode handled_by: %w", err)
	}
	return string(b), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDecimal(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
