package fixtures

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

//go:embed employees.yaml
var rosterYAML []byte

type roster struct {
	Domain  string `yaml:"domain"`
	Leaders []struct {
		Name       string      `yaml:"name"`
		Email      string      `yaml:"email"`
		Role       string      `yaml:"role"`
		Department string      `yaml:"department"`
		Site       domain.Site `yaml:"site"`
	} `yaml:"leaders"`
	Cohorts []struct {
		Name        string   `yaml:"name"`
		Email       string   `yaml:"email"`
		Count       int      `yaml:"count"`
		Roles       []string `yaml:"roles"`
		Departments []string `yaml:"departments"`
		RWCEvery    int      `yaml:"rwc_every"`
	} `yaml:"cohorts"`
}

var (
	employeesOnce sync.Once
	employees     []domain.Employee
	employeesErr  error
)

// Employees returns the fixture roster with manager relationships set.
// Ids are stable across calls and processes.
func Employees() ([]domain.Employee, error) {
	employeesOnce.Do(func() {
		employees, employeesErr = expandRoster(rosterYAML)
	})
	if employeesErr != nil {
		return nil, employeesErr
	}
	out := make([]domain.Employee, len(employees))
	copy(out, employees)
	return out, nil
}

func expandRoster(data []byte) ([]domain.Employee, error) {
	var r roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	var out []domain.Employee
	add := func(name, local, role, dept string, site domain.Site) {
		out = append(out, domain.Employee{
			ID:         fmt.Sprintf("emp-%03d", len(out)+1),
			Name:       name,
			Email:      local + "@" + r.Domain,
			Role:       role,
			Department: dept,
			Site:       site,
		})
	}

	for _, l := range r.Leaders {
		add(l.Name, l.Email, l.Role, l.Department, l.Site)
	}
	for _, c := range r.Cohorts {
		if len(c.Roles) == 0 || len(c.Departments) == 0 || c.RWCEvery <= 0 {
			return nil, fmt.Errorf("cohort %q: roles, departments and rwc_every are required", c.Name)
		}
		for i := 0; i < c.Count; i++ {
			site := domain.SiteShenzhen
			if i%c.RWCEvery == 0 {
				site = domain.SiteRedwoodCity
			}
			add(
				fmt.Sprintf("%s %d", c.Name, i+1),
				fmt.Sprintf("%s%d", c.Email, i+1),
				c.Roles[i%len(c.Roles)],
				c.Departments[i%len(c.Departments)],
				site,
			)
		}
	}

	assignManagers(out)
	return out, nil
}

func assignManagers(staff []domain.Employee) {
	byRole := make(map[string]string)
	for _, e := range staff {
		if _, seen := byRole[e.Role]; !seen {
			byRole[e.Role] = e.ID
		}
	}

	for i := range staff {
		e := &staff[i]
		switch {
		case e.Role == "CEO":
		case e.Role == "CSO", e.Role == "Head of Safety", e.Role == "Head of Platform", e.Role == "Head of IT & Facilities":
			e.ManagerID = byRole["CEO"]
		case e.Role == "Biosecurity Officer":
			e.ManagerID = byRole["Head of Safety"]
		case e.Department == "Research":
			e.ManagerID = byRole["CSO"]
		case e.Department == "IT":
			e.ManagerID = byRole["Head of IT & Facilities"]
		case e.Department == "Platform Engineering":
			e.ManagerID = byRole["Head of Platform"]
		default:
			e.ManagerID = byRole["CEO"]
		}
	}
}

// FindByRole returns the first employee holding role
func FindByRole(staff []domain.Employee, role string) (domain.Employee, bool) {
	for _, e := range staff {
		if e.Role == role {
			return e, true
		}
	}
	return domain.Employee{}, false
}
