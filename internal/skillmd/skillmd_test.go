package skillmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validSkill = `---
name: pdf-tools
description: Extract and transform PDF documents.
license: MIT
metadata:
  version: "1.0"
allowed-tools: Read Write Bash
---

# PDF Tools

Use the scripts in references/ to process documents.
`

func TestParseValidDefinition(t *testing.T) {
	def, err := Parse(validSkill)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Name != "pdf-tools" {
		t.Errorf("Name = %q", def.Name)
	}
	if def.Description != "Extract and transform PDF documents." {
		t.Errorf("Description = %q", def.Description)
	}
	if def.License != "MIT" || def.Metadata["version"] != "1.0" {
		t.Errorf("optional fields = %q/%v", def.License, def.Metadata)
	}
	if def.AllowedTools != "Read Write Bash" {
		t.Errorf("AllowedTools = %q", def.AllowedTools)
	}
	if !strings.HasPrefix(def.Instructions, "# PDF Tools") {
		t.Errorf("Instructions = %q", def.Instructions)
	}
}

func TestParseRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no frontmatter", "# Just markdown\n"},
		{"unclosed frontmatter", "---\nname: x\n"},
		{"missing name", "---\ndescription: d\n---\nbody"},
		{"missing description", "---\nname: x\n---\nbody"},
		{"bad yaml", "---\nname: [unclosed\n---\nbody"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.content); err == nil {
				t.Error("Parse succeeded, want error")
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"a", "pdf-tools", "skill2", strings.Repeat("a", 64)}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v", name, err)
		}
	}

	invalid := []string{"", "-leading", "trailing-", "double--hyphen", "UpperCase", "under_score", strings.Repeat("a", 65)}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) succeeded, want error", name)
		}
	}
}

func TestLoadChecksDirectoryName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wrong-name")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(validSkill), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load succeeded with mismatched directory name")
	}
}

func TestLoadAndReferences(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pdf-tools")
	refs := filepath.Join(dir, "references")
	if err := os.MkdirAll(refs, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(validSkill), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"zeta.md", "alpha.md"} {
		if err := os.WriteFile(filepath.Join(refs, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	def, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	names, err := def.References()
	if err != nil {
		t.Fatalf("References: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha.md" || names[1] != "zeta.md" {
		t.Errorf("References = %v", names)
	}
}

func TestReferencesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pdf-tools")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(validSkill), 0o644); err != nil {
		t.Fatal(err)
	}
	def, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	names, err := def.References()
	if err != nil || names != nil {
		t.Errorf("References = %v, %v; want nil, nil", names, err)
	}
}
