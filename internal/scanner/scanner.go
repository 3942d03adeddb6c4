// Package scanner discovers capabilities on disk: memory files, plugins,
// hooks, slash commands, skills, sub-agents, and protocol server configs.
// Each source scans independently; a broken source contributes an error to
// the result instead of failing the whole scan.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"partydeck/internal/budget"
	"partydeck/internal/logging"
	"partydeck/internal/types"
)

const (
	assistantDir = ".claude"
	maxDescLen   = 150
)

// Scanner walks a workspace plus the global assistant directory and turns
// what it finds into capabilities with estimated token weights.
type Scanner struct {
	workspace string
	globalDir string // usually ~/.claude
}

func New(workspace, globalDir string) *Scanner {
	return &Scanner{workspace: workspace, globalDir: globalDir}
}

type sourceScan struct {
	name string
	fn   func() ([]types.Capability, []string)
}

// Scan runs all source scans in parallel and merges the results. A source
// that fails contributes to Errors; Items always reflects whatever scanned
// cleanly.
func (s *Scanner) Scan(ctx context.Context) types.ScanResult {
	start := time.Now()
	t := logging.StartTimer(logging.CategoryScanner, "full scan")
	defer t.Stop()

	var (
		mu    sync.Mutex
		items []types.Capability
		errs  []string
	)

	sources := []sourceScan{
		{"memory", s.scanMemoryFiles},
		{"plugins", s.scanPlugins},
		{"hooks", s.scanHooks},
		{"commands", s.scanSlashCommands},
		{"skills", s.scanSkills},
		{"agents", s.scanSubAgents},
		{"servers", s.scanProtocolServers},
	}

	g, _ := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			found, srcErrs := src.fn()
			mu.Lock()
			items = append(items, found...)
			for _, e := range srcErrs {
				errs = append(errs, src.name+": "+e)
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].ID < items[j].ID
	})

	logging.Scanner("Scan found %d capabilities (%d source errors)", len(items), len(errs))
	return types.ScanResult{
		Items:    items,
		Errors:   errs,
		Duration: time.Since(start),
	}
}

// --- memory files ---

type memoryLocation struct {
	path  string
	id    string
	scope string
}

func (s *Scanner) memoryLocations() []memoryLocation {
	var locs []memoryLocation
	if s.globalDir != "" {
		locs = append(locs, memoryLocation{
			path:  filepath.Join(s.globalDir, "CLAUDE.md"),
			id:    "memory-global",
			scope: "Global user memory (applies to all projects)",
		})
	}
	if s.workspace != "" {
		locs = append(locs,
			memoryLocation{
				path:  filepath.Join(s.workspace, "CLAUDE.md"),
				id:    "memory-project",
				scope: "Project memory (shared with team)",
			},
			memoryLocation{
				path:  filepath.Join(s.workspace, assistantDir, "CLAUDE.md"),
				id:    "memory-project-claude",
				scope: "Project memory (assistant folder)",
			},
			memoryLocation{
				path:  filepath.Join(s.workspace, "CLAUDE.local.md"),
				id:    "memory-local",
				scope: "Local project notes (personal)",
			},
		)
	}
	return locs
}

func (s *Scanner) scanMemoryFiles() ([]types.Capability, []string) {
	var out []types.Capability
	for _, loc := range s.memoryLocations() {
		raw, err := os.ReadFile(loc.path)
		if err != nil || strings.TrimSpace(string(raw)) == "" {
			continue
		}
		content := string(raw)

		name := firstHeading(content)
		if name == "" {
			name = "Memory"
		}

		out = append(out, types.Capability{
			ID:          loc.id,
			Name:        name,
			Description: loc.scope + " - " + firstParagraph(content),
			Kind:        types.KindMemoryFile,
			SourcePath:  loc.path,
			Weight:      clamp(budget.EstimateTokens(content), 500, 50_000),
		})
	}
	return out, nil
}

// --- plugins ---

type installedPlugin struct {
	Version     string `json:"version"`
	InstallPath string `json:"installPath"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// scanPlugins reads the installed-plugins manifest from the global
// directory. Development tools map to the primary slot, productivity
// plugins to the secondary.
func (s *Scanner) scanPlugins() ([]types.Capability, []string) {
	manifest := filepath.Join(s.globalDir, "plugins", "installed_plugins.json")
	raw, err := os.ReadFile(manifest)
	if err != nil {
		return nil, nil
	}

	var installed map[string]installedPlugin
	if err := json.Unmarshal(raw, &installed); err != nil {
		return nil, []string{fmt.Sprintf("parse %s: %v", manifest, err)}
	}

	var out []types.Capability
	for id, p := range installed {
		kind := types.KindPrimaryPlugin
		if p.Category == "productivity" {
			kind = types.KindSecondaryPlugin
		}

		name := id
		if at := strings.IndexByte(id, '@'); at > 0 {
			name = id[:at]
		}
		desc := p.Description
		if desc == "" {
			desc = "Plugin: " + name
		}

		out = append(out, types.Capability{
			ID:          "plugin-" + name,
			Name:        titleCase(name),
			Description: truncate(desc, maxDescLen),
			Kind:        kind,
			SourcePath:  p.InstallPath,
			Weight:      clamp(dirMarkdownTokens(p.InstallPath)+2_000, 2_000, 40_000),
		})
	}
	return out, nil
}

// --- hooks ---

var hookEvents = map[string]string{
	"PreToolUse":       "Guards operations before execution",
	"PostToolUse":      "Runs after tool execution",
	"SessionStart":     "Injects context at session start",
	"Stop":             "Intercepts exit attempts",
	"UserPromptSubmit": "Processes user input first",
}

type hookEntry struct {
	Matcher string          `json:"matcher"`
	Command json.RawMessage `json:"command"`
}

type settingsFile struct {
	Hooks   map[string][]hookEntry `json:"hooks"`
	Servers map[string]struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	} `json:"mcpServers"`
}

func (s *Scanner) settingsPaths() []struct{ path, scope string } {
	return []struct{ path, scope string }{
		{filepath.Join(s.globalDir, "settings.json"), "user"},
		{filepath.Join(s.workspace, assistantDir, "settings.json"), "project"},
	}
}

func readSettings(path string) (settingsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return settingsFile{}, err
	}
	var sf settingsFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return settingsFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return sf, nil
}

func (s *Scanner) scanHooks() ([]types.Capability, []string) {
	var out []types.Capability
	var errs []string
	for _, loc := range s.settingsPaths() {
		sf, err := readSettings(loc.path)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, err.Error())
			}
			continue
		}
		for event, entries := range sf.Hooks {
			eventDesc, known := hookEvents[event]
			if !known {
				continue
			}
			for i, e := range entries {
				cmd := hookCommand(e.Command)
				if cmd == "" {
					continue
				}
				name := event + ": " + commandStem(cmd)
				desc := eventDesc
				if e.Matcher != "" {
					name = event + " Guard: " + e.Matcher
					desc += ". Matches: " + e.Matcher
				}
				out = append(out, types.Capability{
					ID:          fmt.Sprintf("hook-%s-%s-%d", loc.scope, strings.ToLower(event), i),
					Name:        name,
					Description: truncate(desc+". Runs: "+cmd, maxDescLen),
					Kind:        types.KindHook,
					SourcePath:  loc.path,
					Weight:      clamp(500+budget.EstimateTokens(cmd), 500, 5_000),
				})
			}
		}
	}
	return out, errs
}

// hookCommand accepts both the string and array forms used in settings files.
func hookCommand(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.Join(parts, " ")
	}
	return ""
}

func commandStem(cmd string) string {
	first := cmd
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		first = cmd[:i]
	}
	return filepath.Base(first)
}

// --- slash commands ---

func (s *Scanner) scanSlashCommands() ([]types.Capability, []string) {
	return s.scanMarkdownDir("commands", types.KindSlashCommand, "cmd",
		func(name string) string { return "Slash command /" + name })
}

// --- sub-agents ---

func (s *Scanner) scanSubAgents() ([]types.Capability, []string) {
	return s.scanMarkdownDir("agents", types.KindSubAgent, "agent",
		func(name string) string { return "Sub-agent: " + titleCase(name) })
}

// scanMarkdownDir handles the two flat markdown-per-entry sources, which
// share layout (global dir + project .claude dir) and frontmatter format.
func (s *Scanner) scanMarkdownDir(sub string, kind types.Kind, idPrefix string, fallbackDesc func(string) string) ([]types.Capability, []string) {
	dirs := []struct{ path, scope string }{
		{filepath.Join(s.globalDir, sub), "user"},
		{filepath.Join(s.workspace, assistantDir, sub), "project"},
	}

	var out []types.Capability
	for _, d := range dirs {
		entries, err := os.ReadDir(d.path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			path := filepath.Join(d.path, e.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			content := string(raw)
			stem := strings.TrimSuffix(e.Name(), ".md")

			var fm frontmatter
			body := parseFrontmatter(content, &fm)

			name := fm.Name
			if name == "" {
				name = titleCase(stem)
			}
			desc := fm.Description
			if desc == "" {
				desc = firstParagraph(body)
			}
			if desc == "" {
				desc = fallbackDesc(stem)
			}

			weight := budget.EstimateTokens(content)
			if kind == types.KindSubAgent {
				// Sub-agents run in isolated context; only a small
				// management overhead counts against the budget.
				weight = clamp(len(content)/10, 100, 500)
			} else {
				weight = clamp(weight+200, 200, 10_000)
			}

			out = append(out, types.Capability{
				ID:          fmt.Sprintf("%s-%s-%s", idPrefix, d.scope, stem),
				Name:        name,
				Description: truncate(desc, maxDescLen),
				Kind:        kind,
				SourcePath:  path,
				Weight:      weight,
			})
		}
	}
	return out, nil
}

// --- skills ---

// scanSkills differs from the other markdown sources: each skill is a
// directory with a SKILL.md, and the weight covers every markdown file in
// the directory plus a fixed infrastructure overhead.
func (s *Scanner) scanSkills() ([]types.Capability, []string) {
	dirs := []struct{ path, scope string }{
		{filepath.Join(s.globalDir, "skills"), "user"},
		{filepath.Join(s.workspace, assistantDir, "skills"), "project"},
	}

	var out []types.Capability
	for _, d := range dirs {
		entries, err := os.ReadDir(d.path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			skillDir := filepath.Join(d.path, e.Name())

			var fm frontmatter
			var body string
			if raw, err := os.ReadFile(findSkillMD(skillDir)); err == nil {
				body = parseFrontmatter(string(raw), &fm)
			}

			name := fm.Name
			if name == "" {
				name = titleCase(e.Name())
			}
			desc := fm.Description
			if desc == "" {
				desc = firstParagraph(body)
			}
			if desc == "" {
				desc = "Skill: " + name
			}

			out = append(out, types.Capability{
				ID:          fmt.Sprintf("skill-%s-%s", d.scope, e.Name()),
				Name:        name,
				Description: truncate(desc, maxDescLen),
				Kind:        types.KindSkill,
				SourcePath:  skillDir,
				Weight:      clamp(dirMarkdownTokens(skillDir)+1_500, 1_000, 25_000),
			})
		}
	}
	return out, nil
}

func findSkillMD(dir string) string {
	for _, name := range []string{"SKILL.md", "skill.md", "Skill.md"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, "SKILL.md")
}

// --- protocol servers ---

func (s *Scanner) scanProtocolServers() ([]types.Capability, []string) {
	var out []types.Capability
	var errs []string
	seen := make(map[string]bool)
	for _, loc := range s.settingsPaths() {
		sf, err := readSettings(loc.path)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, err.Error())
			}
			continue
		}
		for id, cfg := range sf.Servers {
			if seen[id] {
				continue
			}
			seen[id] = true
			cmdline := strings.TrimSpace(cfg.Command + " " + strings.Join(cfg.Args, " "))
			out = append(out, types.Capability{
				ID:          "server-" + id,
				Name:        titleCase(id),
				Description: truncate("Protocol server. Runs: "+cmdline, maxDescLen),
				Kind:        types.KindProtocolServer,
				SourcePath:  loc.path,
				Weight:      clamp(1_000+budget.EstimateTokens(cmdline), 1_000, 8_000),
			})
		}
	}
	return out, errs
}

// --- shared helpers ---

// dirMarkdownTokens sums the token estimate for every .md file directly in
// dir. Missing or unreadable directories contribute zero.
func dirMarkdownTokens(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	total := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if raw, err := os.ReadFile(filepath.Join(dir, e.Name())); err == nil {
			total += budget.EstimateTokens(string(raw))
		}
	}
	return total
}

func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "# ") {
			return strings.TrimSpace(t[2:])
		}
	}
	return ""
}

// firstParagraph returns the first non-empty, non-heading line.
func firstParagraph(content string) string {
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		return truncate(t, maxDescLen)
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func titleCase(kebab string) string {
	words := strings.Split(kebab, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
