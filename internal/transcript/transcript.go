// Package transcript keeps the full, append-only record of one agent run.
// The event dispatcher publishes only lightweight notifications for
// high-volume messages; anything that needs the complete payload later
// (debugging a failed build, replaying a run) reads it from here.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one transcript line. Payload is the sidecar message verbatim.
type Record struct {
	AgentID    string          `json:"agent_id"`
	Skill      string          `json:"skill_name"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Writer appends records to a per-run JSONL file. Safe for concurrent use;
// each record is written as one line so a crashed run leaves at most one
// truncated tail line.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewWriter opens the transcript for agentID under dir, creating the
// directory as needed. The file is opened append-only.
func NewWriter(dir, agentID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating transcript directory: %w", err)
	}
	path := filepath.Join(dir, agentID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the transcript file location.
func (w *Writer) Path() string { return w.path }

// Append writes one record. payload must already be valid JSON.
func (w *Writer) Append(agentID, skill string, payload json.RawMessage) error {
	rec := Record{
		AgentID:    agentID,
		Skill:      skill,
		ReceivedAt: time.Now().UTC(),
		Payload:    payload,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling transcript record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending transcript record: %w", err)
	}
	return nil
}

// Close flushes and closes the transcript file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Read loads every complete record from a transcript file. A truncated
// final line, left by a crash mid-append, is skipped rather than treated
// as corruption.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return records, nil
}
