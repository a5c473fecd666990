package transcript

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
)

func TestAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "agent-1")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	payloads := []string{
		`{"type":"system","subtype":"init"}`,
		`{"type":"assistant","message":{"content":"working"}}`,
	}
	for _, p := range payloads {
		if err := w.Append("agent-1", "pdf-tools", json.RawMessage(p)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := Read(w.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].AgentID != "agent-1" || records[0].Skill != "pdf-tools" {
		t.Errorf("record identity = %+v", records[0])
	}
	var first struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(records[0].Payload, &first); err != nil || first.Type != "system" {
		t.Errorf("payload round-trip = %s", records[0].Payload)
	}
}

func TestAppendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "agent-2")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append("agent-2", "s", json.RawMessage(`{"n":1}`)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	w2, err := NewWriter(dir, "agent-2")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w2.Append("agent-2", "s", json.RawMessage(`{"n":2}`)); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	w2.Close()

	records, err := Read(w2.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 after reopen", len(records))
	}
}

func TestReadSkipsTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "agent-3")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append("agent-3", "s", json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	f, err := os.OpenFile(w.Path(), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("opening for truncation: %v", err)
	}
	f.WriteString(`{"agent_id":"agent-3","payl`)
	f.Close()

	records, err := Read(w.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 with truncated tail dropped", len(records))
	}
}

func TestConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "agent-4")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := w.Append("agent-4", "s", json.RawMessage(`{"x":1}`)); err != nil {
					t.Errorf("Append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	w.Close()

	records, err := Read(w.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 200 {
		t.Fatalf("records = %d, want 200", len(records))
	}
}
