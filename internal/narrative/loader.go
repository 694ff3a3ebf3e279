// Package narrative renders executed events into the mails, chat messages
// and meeting notes of a day packet. Templates are embedded and may be
// overridden from a directory.
package narrative

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

//go:embed templates/*.md
var embeddedFS embed.FS

// Kind is the packet section a template renders into
type Kind string

const (
	KindMail    Kind = "mail"
	KindMessage Kind = "message"
	KindMeeting Kind = "meeting"
)

// Meta is a template's frontmatter
type Meta struct {
	Kind          Kind     `yaml:"kind"`
	FromRole      string   `yaml:"from_role"`
	ToRoles       []string `yaml:"to_roles"`
	AttendeeRoles []string `yaml:"attendee_roles"`
	Channel       string   `yaml:"channel"`
	Subject       string   `yaml:"subject"`
	Title         string   `yaml:"title"`
	Tags          []string `yaml:"tags"`
}

// Data is what templates are executed with
type Data struct {
	Event   domain.ScheduledEvent
	Payload map[string]any
	Date    domain.Date
}

// Rendered is one executed template
type Rendered struct {
	Meta    Meta
	Subject string
	Title   string
	Body    string
}

type compiled struct {
	meta    Meta
	body    *template.Template
	subject *template.Template
	title   *template.Template
}

// Loader resolves and caches templates
type Loader struct {
	overrideDir string
	cache       map[string]*compiled
	mu          sync.RWMutex
}

// NewLoader creates a loader. overrideDir may be empty.
func NewLoader(overrideDir string) *Loader {
	return &Loader{
		overrideDir: overrideDir,
		cache:       make(map[string]*compiled),
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns an event name into its template file stem
func Slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Render picks the template for e (by event name first, then by type) and
// executes it.
func (l *Loader) Render(e domain.ScheduledEvent, date domain.Date) (*Rendered, error) {
	c, err := l.resolve(e)
	if err != nil {
		return nil, err
	}

	data := Data{Event: e, Payload: e.Payload, Date: date}
	out := &Rendered{Meta: c.meta}
	if out.Body, err = execute(c.body, data); err != nil {
		return nil, err
	}
	if c.subject != nil {
		if out.Subject, err = execute(c.subject, data); err != nil {
			return nil, err
		}
	}
	if c.title != nil {
		if out.Title, err = execute(c.title, data); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *Loader) resolve(e domain.ScheduledEvent) (*compiled, error) {
	candidates := []string{Slug(e.Name) + ".md", string(e.Type) + ".md"}
	var lastErr error
	for _, name := range candidates {
		c, err := l.load(name)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no narrative template for %q (%s): %w", e.Name, e.Type, lastErr)
}

func (l *Loader) load(name string) (*compiled, error) {
	l.mu.RLock()
	if c, ok := l.cache[name]; ok {
		l.mu.RUnlock()
		return c, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(name)
	if err != nil {
		return nil, err
	}
	c, err := compile(name, content)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[name] = c
	l.mu.Unlock()
	return c, nil
}

// loadContent prefers the override directory over the embedded set
func (l *Loader) loadContent(name string) ([]byte, error) {
	if l.overrideDir != "" {
		if data, err := os.ReadFile(filepath.Join(l.overrideDir, name)); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, "templates/"+name)
}

func compile(name string, content []byte) (*compiled, error) {
	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	switch meta.Kind {
	case KindMail, KindMessage, KindMeeting:
	default:
		return nil, fmt.Errorf("%s: unknown kind %q", name, meta.Kind)
	}

	c := &compiled{meta: meta}
	if c.body, err = template.New(name).Parse(body); err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	if meta.Subject != "" {
		if c.subject, err = template.New(name + ":subject").Parse(meta.Subject); err != nil {
			return nil, fmt.Errorf("compile %s subject: %w", name, err)
		}
	}
	if meta.Title != "" {
		if c.title, err = template.New(name + ":title").Parse(meta.Title); err != nil {
			return nil, fmt.Errorf("compile %s title: %w", name, err)
		}
	}
	return c, nil
}

// parseFrontmatter splits content into frontmatter and body. Every narrative
// template needs frontmatter, since it names the packet section.
func parseFrontmatter(content []byte) (Meta, string, error) {
	str := string(content)
	if !strings.HasPrefix(str, "---\n") {
		return Meta{}, "", fmt.Errorf("missing frontmatter")
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return Meta{}, "", fmt.Errorf("unterminated frontmatter")
	}

	var meta Meta
	if err := yaml.Unmarshal([]byte(str[4:4+end]), &meta); err != nil {
		return Meta{}, "", err
	}
	return meta, str[4+end+5:], nil
}

func execute(t *template.Template, data Data) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
