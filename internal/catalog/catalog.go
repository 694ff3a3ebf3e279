// Package catalog holds the named event templates operators schedule from.
// The built-in set is embedded; an override file replaces it.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

//go:embed templates.yaml
var builtin []byte

type document struct {
	Templates []domain.EventTemplate `yaml:"templates"`
}

// Catalog is a concurrency-safe, replaceable set of templates
type Catalog struct {
	mu        sync.RWMutex
	templates []domain.EventTemplate
	byName    map[string]int
	source    string
}

// Builtin returns the embedded template set
func Builtin() *Catalog {
	c, err := parse(builtin, "builtin")
	if err != nil {
		panic(fmt.Sprintf("embedded templates.yaml: %v", err))
	}
	return c
}

// Load returns the override file's templates, or the built-in set when path
// is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	return parse(data, path)
}

func parse(data []byte, source string) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", source, err)
	}
	c := &Catalog{}
	if err := c.set(doc.Templates, source); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) set(templates []domain.EventTemplate, source string) error {
	byName := make(map[string]int, len(templates))
	for i, t := range templates {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%s: template %d has no name", source, i)
		}
		if !t.Type.Valid() {
			return fmt.Errorf("%s: template %q has unknown type %q", source, t.Name, t.Type)
		}
		if _, dup := byName[strings.ToLower(t.Name)]; dup {
			return fmt.Errorf("%s: duplicate template %q", source, t.Name)
		}
		byName[strings.ToLower(t.Name)] = i
	}

	c.mu.Lock()
	c.templates = templates
	c.byName = byName
	c.source = source
	c.mu.Unlock()
	return nil
}

// Reload replaces the set with the contents of path. On error the current
// set is kept.
func (c *Catalog) Reload(path string) error {
	next, err := Load(path)
	if err != nil {
		return err
	}
	next.mu.RLock()
	defer next.mu.RUnlock()
	return c.set(next.templates, next.source)
}

// Source names where the current set came from
func (c *Catalog) Source() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

// Lookup finds a template by case-insensitive name
func (c *Catalog) Lookup(name string) (domain.EventTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return domain.EventTemplate{}, fmt.Errorf("%w: template %q", domain.ErrNotFound, name)
	}
	return c.templates[i], nil
}

// All returns every template sorted by type then name
func (c *Catalog) All() []domain.EventTemplate {
	c.mu.RLock()
	out := make([]domain.EventTemplate, len(c.templates))
	copy(out, c.templates)
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ByType returns the templates of one type, sorted by name
func (c *Catalog) ByType(t domain.EventType) []domain.EventTemplate {
	var out []domain.EventTemplate
	for _, tmpl := range c.All() {
		if tmpl.Type == t {
			out = append(out, tmpl)
		}
	}
	return out
}
