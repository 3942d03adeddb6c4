// Package persona manages sub-agent persona files: markdown documents
// with YAML frontmatter living in the global and project agent
// directories.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"partydeck/internal/logging"
)

// ErrNotFound means no persona file exists for the given id and scope.
var ErrNotFound = errors.New("persona not found")

// Config is the editable content of a persona file. Tools and Skills are
// stored comma-separated in the frontmatter.
type Config struct {
	Name           string
	Description    string
	Tools          []string
	Model          string
	PermissionMode string
	Skills         []string
	SystemPrompt   string
}

// Persona is a persona file on disk.
type Persona struct {
	ID       string // file stem, e.g. "code-reviewer"
	FilePath string
	Global   bool
	Config   Config
}

// Library reads and writes persona files for one workspace plus the
// global directory.
type Library struct {
	workspace string
	globalDir string
}

func NewLibrary(workspace, globalDir string) *Library {
	return &Library{workspace: workspace, globalDir: globalDir}
}

func (l *Library) dir(global bool) string {
	if global {
		return filepath.Join(l.globalDir, "agents")
	}
	return filepath.Join(l.workspace, ".claude", "agents")
}

func (l *Library) path(id string, global bool) string {
	return filepath.Join(l.dir(global), id+".md")
}

// List returns every persona from both scopes, global first, each scope
// sorted by id.
func (l *Library) List() []Persona {
	var out []Persona
	for _, global := range []bool{true, false} {
		entries, err := os.ReadDir(l.dir(global))
		if err != nil {
			continue
		}
		var scoped []Persona
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			id := strings.TrimSuffix(e.Name(), ".md")
			p, err := l.Get(id, global)
			if err != nil {
				continue
			}
			scoped = append(scoped, p)
		}
		sort.Slice(scoped, func(i, j int) bool { return scoped[i].ID < scoped[j].ID })
		out = append(out, scoped...)
	}
	return out
}

// Get loads one persona.
func (l *Library) Get(id string, global bool) (Persona, error) {
	path := l.path(id, global)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Persona{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Persona{}, err
	}
	return Persona{
		ID:       id,
		FilePath: path,
		Global:   global,
		Config:   parseConfig(string(raw)),
	}, nil
}

// Find looks a persona up by id in either scope. The project scope wins
// when both define the same id.
func (l *Library) Find(id string) (Persona, error) {
	if p, err := l.Get(id, false); err == nil {
		return p, nil
	}
	return l.Get(id, true)
}

// Save writes a persona file, creating the scope directory if needed.
func (l *Library) Save(id string, global bool, cfg Config) (Persona, error) {
	dir := l.dir(global)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Persona{}, fmt.Errorf("create agents dir: %w", err)
	}

	path := l.path(id, global)
	if err := os.WriteFile(path, []byte(render(cfg)), 0o644); err != nil {
		return Persona{}, err
	}
	logging.Party("Saved persona %s (global=%v)", id, global)
	return Persona{ID: id, FilePath: path, Global: global, Config: cfg}, nil
}

// Delete removes a persona file.
func (l *Library) Delete(id string, global bool) error {
	err := os.Remove(l.path(id, global))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// Content returns the raw markdown of a persona file.
func (l *Library) Content(id string, global bool) (string, error) {
	raw, err := os.ReadFile(l.path(id, global))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return string(raw), err
}

// frontmatter mirrors the on-disk YAML. Tools and skills are flat
// comma-separated strings there.
type personaFrontmatter struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Tools          string `yaml:"tools"`
	Model          string `yaml:"model"`
	PermissionMode string `yaml:"permission-mode"`
	Skills         string `yaml:"skills"`
}

// parseConfig splits frontmatter from body. A file without frontmatter is
// all system prompt.
func parseConfig(content string) Config {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return Config{SystemPrompt: trimmed}
	}

	rest := trimmed[3:]
	end := strings.Index(rest, "---")
	if end < 0 {
		return Config{SystemPrompt: trimmed}
	}

	var fm personaFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return Config{SystemPrompt: trimmed}
	}

	return Config{
		Name:           fm.Name,
		Description:    fm.Description,
		Tools:          splitCSV(fm.Tools),
		Model:          fm.Model,
		PermissionMode: fm.PermissionMode,
		Skills:         splitCSV(fm.Skills),
		SystemPrompt:   strings.TrimSpace(rest[end+3:]),
	}
}

func render(cfg Config) string {
	var b strings.Builder
	b.WriteString("---\n")
	if cfg.Name != "" {
		fmt.Fprintf(&b, "name: %s\n", cfg.Name)
	}
	if cfg.Description != "" {
		fmt.Fprintf(&b, "description: %s\n", cfg.Description)
	}
	if len(cfg.Tools) > 0 {
		fmt.Fprintf(&b, "tools: %s\n", strings.Join(cfg.Tools, ", "))
	}
	if cfg.Model != "" {
		fmt.Fprintf(&b, "model: %s\n", cfg.Model)
	}
	if cfg.PermissionMode != "" {
		fmt.Fprintf(&b, "permission-mode: %s\n", cfg.PermissionMode)
	}
	if len(cfg.Skills) > 0 {
		fmt.Fprintf(&b, "skills: %s\n", strings.Join(cfg.Skills, ", "))
	}
	b.WriteString("---\n\n")
	b.WriteString(cfg.SystemPrompt)
	b.WriteString("\n")
	return b.String()
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
