package packaging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

const skillDoc = `---
name: pdf-tools
description: Extract and transform PDF documents.
---

# PDF Tools
`

func buildSkillDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "pdf-tools")
	refs := filepath.Join(dir, "references")
	if err := os.MkdirAll(refs, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(skillDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(refs, "usage.md"), []byte("usage notes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestPackCreatesArchive(t *testing.T) {
	skillDir := buildSkillDir(t)
	outDir := t.TempDir()

	res, err := Pack(skillDir, outDir)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Skill != "pdf-tools" || res.FileCount != 2 {
		t.Errorf("result = %+v", res)
	}
	want := filepath.Join(outDir, "pdf-tools.skill.zip")
	if res.ArchivePath != want {
		t.Errorf("ArchivePath = %s, want %s", res.ArchivePath, want)
	}

	names, err := List(res.ArchivePath)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	wantNames := []string{"pdf-tools/SKILL.md", "pdf-tools/references/usage.md"}
	if len(names) != len(wantNames) {
		t.Fatalf("entries = %v", names)
	}
	for i, n := range wantNames {
		if names[i] != n {
			t.Errorf("entry[%d] = %s, want %s", i, names[i], n)
		}
	}
}

func TestPackIsReproducible(t *testing.T) {
	skillDir := buildSkillDir(t)
	out1, out2 := t.TempDir(), t.TempDir()

	r1, err := Pack(skillDir, out1)
	if err != nil {
		t.Fatalf("first Pack: %v", err)
	}
	r2, err := Pack(skillDir, out2)
	if err != nil {
		t.Fatalf("second Pack: %v", err)
	}

	b1, _ := os.ReadFile(r1.ArchivePath)
	b2, _ := os.ReadFile(r2.ArchivePath)
	if !bytes.Equal(b1, b2) {
		t.Error("archives differ across identical builds")
	}
}

func TestPackSkipsPreviousArchive(t *testing.T) {
	skillDir := buildSkillDir(t)
	stale := filepath.Join(skillDir, "pdf-tools.skill.zip")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Pack(skillDir, t.TempDir())
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2 (stale archive excluded)", res.FileCount)
	}
}

func TestPackRejectsInvalidDefinition(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pdf-tools")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("no frontmatter"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Pack(dir, t.TempDir()); err == nil {
		t.Fatal("Pack succeeded with invalid SKILL.md")
	}
}

func TestExtractRoundTrip(t *testing.T) {
	skillDir := buildSkillDir(t)
	outDir := t.TempDir()
	res, err := Pack(skillDir, outDir)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	target := t.TempDir()
	if err := Extract(res.ArchivePath, target); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(target, "pdf-tools", "references", "usage.md"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != "usage notes" {
		t.Errorf("extracted content = %q", got)
	}
}
