package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jorfline/internal/config"
	"jorfline/internal/db"
	"jorfline/internal/directory"
	"jorfline/internal/domain"
	"jorfline/internal/migrate"
	"jorfline/internal/repo"
	"jorfline/internal/workflow"
)

const masterlist = `employees:
  - {id: E100, name: Ana Cruz, department: Production, position: 2, approver2: H200, approver3: H201}
  - {id: E101, name: Ben Reyes, department: Production, position: 2, approver2: H200, active: false}
  - {id: H200, name: Hugo Tan, department: Production, position: 4}
  - {id: H201, name: Hana Go, department: Production, position: 5}
  - {id: F300, name: Fe Santos, department: Facilities Management, job_title: facility engineer I, position: 3}
  - {id: F301, name: Fil Ramos, department: Facilities Management, job_title: Technician, position: 1}
  - {id: F302, name: Fay Cruz, department: Facilities Management, job_title: Facility Engineer II, position: 3, active: false}
  - {id: X900, name: Xia Wu, department: Production, position: 1}
`

func newDirectory(t *testing.T) (directory.SQL, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	emps, err := directory.ParseMasterlist([]byte(masterlist))
	require.NoError(t, err)
	n, err := directory.Import(context.Background(), r, emps)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	return directory.NewSQL(r, config.Default()), r
}

func TestParseMasterlist(t *testing.T) {
	emps, err := directory.ParseMasterlist([]byte(masterlist))
	require.NoError(t, err)
	require.Len(t, emps, 8)
	assert.True(t, emps[0].Active)
	assert.False(t, emps[1].Active)
	assert.Equal(t, "H201", emps[0].Approver3)

	_, err = directory.ParseMasterlist([]byte("employees:\n  - {name: No Id}\n"))
	assert.ErrorContains(t, err, "id is required")
	_, err = directory.ParseMasterlist([]byte("employees:\n  - {id: A, name: A}\n  - {id: A, name: B}\n"))
	assert.ErrorContains(t, err, "duplicate id")
	_, err = directory.ParseMasterlist([]byte("employees: ["))
	assert.ErrorContains(t, err, "invalid masterlist")
}

func TestImportIsIdempotent(t *testing.T) {
	d, r := newDirectory(t)
	ctx := context.Background()
	emps, err := directory.ParseMasterlist([]byte("employees:\n  - {id: H200, name: Hugo Tan Jr, department: Production, position: 4}\n"))
	require.NoError(t, err)
	_, err = directory.Import(ctx, r, emps)
	require.NoError(t, err)

	e, err := d.Employee(ctx, "H200")
	require.NoError(t, err)
	assert.Equal(t, "Hugo Tan Jr", e.Name)

	_, err = d.Employee(ctx, "NOPE")
	assert.ErrorIs(t, err, directory.ErrUnknownEmployee)
}

func TestSQLLookups(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	approvers, err := d.Approvers(ctx, "E100")
	require.NoError(t, err)
	assert.Equal(t, []string{"H200", "H201"}, approvers)

	subs, err := d.Subordinates(ctx, "H200")
	require.NoError(t, err)
	assert.Equal(t, []string{"E100"}, subs, "inactive subordinates are skipped")

	coords, err := d.FacilitiesCoordinators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"F300"}, coords)

	staff, err := d.FacilitiesEmployees(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(staff))
	for _, e := range staff {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"F300", "F301"}, ids)
}

func TestResolveSession(t *testing.T) {
	d, r := newDirectory(t)
	ctx := context.Background()
	cfg := config.Default()

	s, err := directory.ResolveSession(ctx, d, r, cfg, " E100 ")
	require.NoError(t, err)
	assert.Equal(t, "E100", s.Actor.ID)
	assert.Equal(t, []string{"requestor"}, s.Actor.Roles.List())

	s, err = directory.ResolveSession(ctx, d, r, cfg, "H200")
	require.NoError(t, err)
	assert.True(t, s.Is(domain.RoleDepartmentHead))
	assert.True(t, s.Manages("E100"))
	assert.False(t, s.Manages("E101"))

	s, err = directory.ResolveSession(ctx, d, r, cfg, "F300")
	require.NoError(t, err)
	assert.Equal(t, []string{"facilities", "coordinator"}, s.Actor.Roles.List())

	s, err = directory.ResolveSession(ctx, d, r, cfg, "F301")
	require.NoError(t, err)
	assert.Equal(t, []string{"facilities"}, s.Actor.Roles.List())

	var authErr workflow.AuthorizationError
	for _, id := range []string{"X900", "E101", "NOPE", ""} {
		_, err := directory.ResolveSession(ctx, d, r, cfg, id)
		assert.ErrorAs(t, err, &authErr, id)
	}

	require.NoError(t, r.AddRequestor(ctx, domain.RequestorEntry{EmployeeID: "X900", AddedBy: "F300", AddedAt: "2025-03-10T08:00:00Z"}))
	s, err = directory.ResolveSession(ctx, d, r, cfg, "X900")
	require.NoError(t, err)
	assert.Equal(t, []string{"requestor"}, s.Actor.Roles.List())
}

type downDirectory struct{ directory.Directory }

func (downDirectory) Employee(context.Context, string) (domain.Employee, error) {
	return domain.Employee{}, errors.New("connection refused")
}

func TestResolveSessionUpstreamFailure(t *testing.T) {
	_, err := directory.ResolveSession(context.Background(), downDirectory{}, nil, nil, "E100")
	var upErr workflow.UpstreamDependencyError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "directory", upErr.Dependency)
}
