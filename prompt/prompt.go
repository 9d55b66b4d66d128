// Package prompt manages prompt templates and assembles the system prompt
// for SQL generation.
package prompt

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// SystemTemplateName is the registered name of the default system prompt.
const SystemTemplateName = "nl2sql-system"

// systemTemplate is the default system prompt. It receives the rendered
// database schema and the database name.
const systemTemplate = `You are an expert in converting natural language questions into SQL queries.

You are connected to the MySQL database {{.Database}} through a set of tools.
Use the tools to inspect tables and run read-only queries. When you have
gathered enough data, answer the user's question in plain language.

Database schema:
{{.Schema}}

Guidelines:
- Only generate SELECT statements; never modify data.
- Prefer explicit column lists over SELECT *.
- Use the inferred relationships for joins.
- If a query fails, read the error, fix the SQL and try again.
- When the user asks for a chart or dashboard change, call the matching
  dashboard tool instead of describing the change.`

// Template represents a prompt template with variables
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate creates a new prompt template
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// Render renders the template with given variables
func (t *Template) Render(vars map[string]interface{}) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// Manager manages prompt templates
// All operations are thread-safe using RWMutex protection
type Manager struct {
	mu        sync.RWMutex // Protects templates map
	templates map[string]*Template
}

// NewManager creates a prompt manager preloaded with the default system
// template.
func NewManager() *Manager {
	m := &Manager{
		templates: make(map[string]*Template),
	}
	// The built-in template always parses.
	_ = m.RegisterString(SystemTemplateName, systemTemplate)
	return m
}

// Register adds a template to the manager
func (m *Manager) Register(tmpl *Template) error {
	if tmpl.Name == "" {
		return fmt.Errorf("template name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.templates[tmpl.Name]; exists {
		return fmt.Errorf("template %s already registered", tmpl.Name)
	}
	m.templates[tmpl.Name] = tmpl
	return nil
}

// RegisterString registers a template from string content
func (m *Manager) RegisterString(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	return m.Register(tmpl)
}

// Get retrieves a template by name
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %s not found", name)
	}
	return tmpl, nil
}

// Render renders a template by name with given variables
func (m *Manager) Render(name string, vars map[string]interface{}) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(vars)
}

// System renders the default system prompt for the given database and
// rendered schema text.
func (m *Manager) System(database, schema string) (string, error) {
	return m.Render(SystemTemplateName, map[string]interface{}{
		"Database": database,
		"Schema":   schema,
	})
}

// List returns all registered template names
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	return names
}
