package directory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"jorfline/internal/domain"
	"jorfline/internal/repo"
)

type masterlistFile struct {
	Employees []masterlistRow `yaml:"employees"`
}

type masterlistRow struct {
	domain.Employee `yaml:",inline"`
	Active          *bool `yaml:"active"`
}

// ParseMasterlist decodes a YAML masterlist export. Rows default to active.
func ParseMasterlist(data []byte) ([]domain.Employee, error) {
	var f masterlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid masterlist yaml: %w", err)
	}
	seen := map[string]bool{}
	out := make([]domain.Employee, 0, len(f.Employees))
	for i, row := range f.Employees {
		e := row.Employee
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("employees[%d]: id is required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("employees[%d]: duplicate id %s", i, e.ID)
		}
		seen[e.ID] = true
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("employees[%d]: name is required", i)
		}
		e.Active = row.Active == nil || *row.Active
		out = append(out, e)
	}
	return out, nil
}

// LoadMasterlist reads a YAML masterlist from disk.
func LoadMasterlist(path string) ([]domain.Employee, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMasterlist(data)
}

// Import upserts every employee in one transaction.
func Import(ctx context.Context, r repo.Repo, emps []domain.Employee) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, e := range emps {
		if err := r.UpsertEmployee(ctx, tx, e); err != nil {
			return 0, fmt.Errorf("import %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(emps), nil
}
