package workflowstate

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skillforge/skillforge/internal/logging"
)

func TestParseListStyle(t *testing.T) {
	state := Parse(`# Workflow State

- Skill: pdf-tools
- Domain: documents
- Current Step: build
- Status: in-progress
- Completed Steps: intake, research, plan
- Updated: 2026-01-05T12:00:00Z
- Notes: resumed after reboot
`)
	if state.Skill != "pdf-tools" || state.Domain != "documents" {
		t.Errorf("identity fields = %q/%q", state.Skill, state.Domain)
	}
	if state.CurrentStep != "build" || state.Status != "in-progress" {
		t.Errorf("progress fields = %q/%q", state.CurrentStep, state.Status)
	}
	if state.CompletedSteps != "intake, research, plan" {
		t.Errorf("CompletedSteps = %q", state.CompletedSteps)
	}
	if state.Timestamp != "2026-01-05T12:00:00Z" || state.Notes != "resumed after reboot" {
		t.Errorf("timestamp/notes = %q/%q", state.Timestamp, state.Notes)
	}
}

func TestParseBoldKeysAndCase(t *testing.T) {
	state := Parse("**SKILL:** csv-tools\n**current step:** review\nstatus: paused\n")
	if state.Skill != "csv-tools" {
		t.Errorf("Skill = %q", state.Skill)
	}
	if state.CurrentStep != "review" {
		t.Errorf("CurrentStep = %q", state.CurrentStep)
	}
	if state.Status != "paused" {
		t.Errorf("Status = %q", state.Status)
	}
}

func TestParseIgnoresUnknownKeys(t *testing.T) {
	state := Parse("- Skill: x\n- Mood: optimistic\nplain prose line without a separator\n")
	if state.Skill != "x" {
		t.Errorf("Skill = %q", state.Skill)
	}
	if state.Empty() {
		t.Error("state with a skill should not be Empty")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if state := Parse("# Notes\n\njust prose\n"); !state.Empty() {
		t.Errorf("state = %+v, want empty", state)
	}
}

func TestLoadMissingFile(t *testing.T) {
	state, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != nil {
		t.Fatalf("state = %+v, want nil for missing file", state)
	}
}

func TestLoadReadsStateFile(t *testing.T) {
	dir := t.TempDir()
	content := "- Skill: pdf-tools\n- Status: done\n"
	if err := os.WriteFile(filepath.Join(dir, StateFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("writing state file: %v", err)
	}
	state, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Skill != "pdf-tools" || state.Status != "done" {
		t.Errorf("state = %+v", state)
	}
}

func TestWatcherDeliversEdits(t *testing.T) {
	dir := t.TempDir()
	log := logging.New()
	log.SetOutput(io.Discard)

	w, err := Watch(dir, log)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	data := "- Skill: pdf-tools\n- Current Step: plan\n"
	if err := os.WriteFile(filepath.Join(dir, StateFileName), []byte(data), 0o644); err != nil {
		t.Fatalf("writing state file: %v", err)
	}

	select {
	case state := <-w.States:
		if state.Skill != "pdf-tools" || state.CurrentStep != "plan" {
			t.Errorf("state = %+v", state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no state delivered after write")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	log := logging.New()
	log.SetOutput(io.Discard)

	w, err := Watch(dir, log)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing unrelated file: %v", err)
	}

	select {
	case state := <-w.States:
		t.Fatalf("unexpected state %+v for unrelated file", state)
	case <-time.After(300 * time.Millisecond):
	}
}
