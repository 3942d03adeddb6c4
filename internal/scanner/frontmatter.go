package scanner

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter covers the fields shared by skills, sub-agents, and slash
// commands. Unknown keys are ignored.
type frontmatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Model        string   `yaml:"model"`
	Tools        []string `yaml:"tools"`
	AllowedTools []string `yaml:"allowed-tools"`
	Skills       []string `yaml:"skills"`
}

// parseFrontmatter splits a markdown document into its YAML frontmatter
// (decoded into out) and the remaining body. Documents without a leading
// "---" block, or with unparseable YAML, are returned whole.
func parseFrontmatter(content string, out *frontmatter) (body string) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return content
	}

	rest := trimmed[3:]
	end := strings.Index(rest, "---")
	if end < 0 {
		return content
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), out); err != nil {
		return content
	}
	return rest[end+3:]
}
