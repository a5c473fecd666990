// Package cleanup normalizes skill-build filesystem state against the
// step-indexed completion record.
package cleanup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/skillforge/skillforge/internal/logging"
	"github.com/skillforge/skillforge/internal/steps"
)

const skill = "pdf-tools"

func newEngine() *Engine {
	log := logging.New()
	log.SetOutput(io.Discard)
	return New(log)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func stepFile(root string, stepID int) string {
	out, _ := steps.For(stepID)
	return filepath.Join(steps.SkillDir(root, skill), out.Files[0])
}

func TestSweep_RemovesOnlyStepsAhead(t *testing.T) {
	work := t.TempDir()
	roots := Roots{Workdir: work}

	// On-disk output present for steps 0, 2, and 4; confirmed step is 2.
	for _, id := range []int{0, 2, 4} {
		writeFile(t, stepFile(work, id))
	}

	newEngine().Sweep(context.Background(), skill, 2, roots)

	if !exists(stepFile(work, 0)) {
		t.Error("step 0 output should survive the sweep")
	}
	if !exists(stepFile(work, 2)) {
		t.Error("step 2 output should survive the sweep")
	}
	if exists(stepFile(work, 4)) {
		t.Error("step 4 output should be removed by the sweep")
	}
}

func TestSweep_RemovesMirroredContextFiles(t *testing.T) {
	work := t.TempDir()
	published := t.TempDir()
	roots := Roots{Workdir: work, OutputRoot: published}

	writeFile(t, stepFile(work, 4))
	writeFile(t, stepFile(published, 4))

	newEngine().Sweep(context.Background(), skill, 2, roots)

	if exists(stepFile(work, 4)) || exists(stepFile(published, 4)) {
		t.Error("step 4 output should be removed from both roots")
	}
}

func TestStep_BuildResetsReferences(t *testing.T) {
	published := t.TempDir()
	roots := Roots{Workdir: t.TempDir(), OutputRoot: published}
	dir := steps.SkillDir(published, skill)

	writeFile(t, filepath.Join(dir, "SKILL.md"))
	writeFile(t, filepath.Join(dir, steps.ReferencesDir, "api.md"))
	writeFile(t, filepath.Join(dir, steps.ArchiveName(skill)))

	newEngine().Step(skill, steps.StepBuild, roots)

	if exists(filepath.Join(dir, "SKILL.md")) {
		t.Error("SKILL.md should be removed")
	}
	if exists(filepath.Join(dir, steps.ArchiveName(skill))) {
		t.Error("archive should be removed")
	}
	refs := filepath.Join(dir, steps.ReferencesDir)
	if !exists(refs) {
		t.Fatal("references directory should be recreated empty")
	}
	entries, err := os.ReadDir(refs)
	if err != nil {
		t.Fatalf("read references: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("references directory should be empty, found %d entries", len(entries))
	}
}

func TestStep_BuildLeavesEmptyReferencesAlone(t *testing.T) {
	published := t.TempDir()
	roots := Roots{Workdir: t.TempDir(), OutputRoot: published}
	refs := filepath.Join(steps.SkillDir(published, skill), steps.ReferencesDir)
	if err := os.MkdirAll(refs, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	newEngine().Step(skill, steps.StepBuild, roots)

	if !exists(refs) {
		t.Error("an already-empty references directory should be left in place")
	}
}

func TestStep_Idempotent(t *testing.T) {
	work := t.TempDir()
	roots := Roots{Workdir: work}
	writeFile(t, stepFile(work, 4))

	engine := newEngine()
	engine.Step(skill, steps.StepPlan, roots)
	// Second invocation sees only missing files; must not error or panic.
	engine.Step(skill, steps.StepPlan, roots)

	if exists(stepFile(work, 4)) {
		t.Error("step 4 output should be gone")
	}
}

func TestThorough_RemovesAllBuildArtifacts(t *testing.T) {
	published := t.TempDir()
	roots := Roots{Workdir: t.TempDir(), OutputRoot: published}
	dir := steps.SkillDir(published, skill)

	writeFile(t, filepath.Join(dir, "SKILL.md"))
	writeFile(t, filepath.Join(dir, steps.ReferencesDir, "api.md"))
	writeFile(t, filepath.Join(dir, steps.ArchiveName(skill)))

	newEngine().Thorough(skill, roots)

	if exists(filepath.Join(dir, "SKILL.md")) {
		t.Error("definition file should be absent after thorough deletion")
	}
	if exists(filepath.Join(dir, steps.ReferencesDir)) {
		t.Error("references directory should be absent after thorough deletion")
	}
	if exists(filepath.Join(dir, steps.ArchiveName(skill))) {
		t.Error("archive should be absent after thorough deletion")
	}
}

func TestThorough_CoversBothRoots(t *testing.T) {
	work := t.TempDir()
	published := t.TempDir()
	roots := Roots{Workdir: work, OutputRoot: published}

	for _, id := range steps.IDs() {
		writeFile(t, stepFile(work, id))
		writeFile(t, stepFile(published, id))
	}

	newEngine().Thorough(skill, roots)

	for _, id := range steps.IDs() {
		if exists(stepFile(work, id)) || exists(stepFile(published, id)) {
			t.Errorf("step %d output should be absent from both roots", id)
		}
	}
}
