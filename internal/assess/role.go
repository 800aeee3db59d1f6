package assess

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// RoleProfile is the structured form of a role description file.
type RoleProfile struct {
	Title        string   `yaml:"title"`
	Level        string   `yaml:"level"`
	Summary      string   `yaml:"summary"`
	Expectations []string `yaml:"expectations"`
	FocusAreas   []string `yaml:"focus_areas"`
}

// Render formats the profile as prompt text.
func (p RoleProfile) Render() string {
	var b strings.Builder
	title := strings.TrimSpace(strings.Join([]string{p.Level, p.Title}, " "))
	if title != "" {
		b.WriteString(title + "\n")
	}
	if s := strings.TrimSpace(p.Summary); s != "" {
		b.WriteString(s + "\n")
	}
	if len(p.Expectations) > 0 {
		b.WriteString("Expectations:\n")
		for _, e := range p.Expectations {
			b.WriteString("- " + e + "\n")
		}
	}
	if len(p.FocusAreas) > 0 {
		b.WriteString("Focus areas:\n")
		for _, f := range p.FocusAreas {
			b.WriteString("- " + f + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// LoadRoleDescription reads the role description at path. YAML files
// (.yaml, .yml) are parsed as a RoleProfile; anything else is used verbatim.
// An empty path yields an empty description.
func LoadRoleDescription(fs afero.Fs, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("reading role description: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var p RoleProfile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return "", fmt.Errorf("parsing role description %s: %w", path, err)
		}
		return p.Render(), nil
	default:
		return strings.TrimSpace(string(data)), nil
	}
}
