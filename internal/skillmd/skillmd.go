// Package skillmd parses and validates the SKILL.md definition file the
// build step produces. Frontmatter is YAML between --- delimiters; the
// body is the skill's instruction text. Validation runs before packaging
// so a malformed definition never ships in an archive.
package skillmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillforge/skillforge/internal/steps"
)

// Definition is a parsed SKILL.md.
type Definition struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	License       string            `yaml:"license,omitempty"`
	Compatibility string            `yaml:"compatibility,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`
	AllowedTools  string            `yaml:"allowed-tools,omitempty"`

	Instructions string `yaml:"-"`
	Dir          string `yaml:"-"`
}

// Load reads and validates the definition in skillDir. The frontmatter
// name must match the directory name so the archive's top-level folder
// and the declared skill stay in agreement.
func Load(skillDir string) (*Definition, error) {
	raw, err := os.ReadFile(filepath.Join(skillDir, steps.SkillDefinitionFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", steps.SkillDefinitionFile, err)
	}

	def, err := Parse(string(raw))
	if err != nil {
		return nil, err
	}
	def.Dir = skillDir

	if dirName := filepath.Base(skillDir); def.Name != dirName {
		return nil, fmt.Errorf("skill name %q does not match directory name %q", def.Name, dirName)
	}
	return def, nil
}

// Parse validates SKILL.md content without touching the filesystem.
func Parse(content string) (*Definition, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	def := &Definition{}
	if err := yaml.Unmarshal([]byte(frontmatter), def); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}

	if def.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	if def.Description == "" {
		return nil, fmt.Errorf("missing required field: description")
	}
	if err := ValidateName(def.Name); err != nil {
		return nil, err
	}

	def.Instructions = strings.TrimSpace(body)
	return def, nil
}

func splitFrontmatter(content string) (frontmatter, body string, err error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", fmt.Errorf("missing frontmatter delimiter")
	}

	var fmLines []string
	bodyStart := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			bodyStart = i + 1
			break
		}
		fmLines = append(fmLines, lines[i])
	}
	if bodyStart < 0 {
		return "", "", fmt.Errorf("unclosed frontmatter")
	}

	frontmatter = strings.Join(fmLines, "\n")
	if bodyStart < len(lines) {
		body = strings.Join(lines[bodyStart:], "\n")
	}
	return frontmatter, body, nil
}

// ValidateName enforces the skill naming rules: 1-64 characters drawn
// from lowercase letters, digits and single interior hyphens. Skill names
// appear in lock rows, archive names and directory paths, so the rules
// are strict.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > 64 {
		return fmt.Errorf("name must be 1-64 characters")
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return fmt.Errorf("name cannot start or end with hyphen")
	}
	if strings.Contains(name, "--") {
		return fmt.Errorf("name cannot contain consecutive hyphens")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("name can only contain lowercase letters, numbers, and hyphens")
		}
	}
	return nil
}

// References lists the files under the definition's references directory,
// sorted by name. A missing or empty directory yields nil.
func (d *Definition) References() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.Dir, steps.ReferencesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing references: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
