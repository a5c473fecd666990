// Package workflowstate reads the legacy STATE.md file some older builds
// left in the skill working directory. It is a best-effort fallback for
// resuming work started before step completions moved into the database;
// whenever a database record exists, the database wins.
package workflowstate

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// StateFileName is the legacy state file looked for in a skill workdir.
const StateFileName = "STATE.md"

// WorkflowState is the parsed content of a legacy state file. All fields
// are free text as written by whatever produced the file.
type WorkflowState struct {
	Skill          string
	Domain         string
	CurrentStep    string
	Status         string
	CompletedSteps string
	Timestamp      string
	Notes          string
}

// Empty reports whether nothing recognizable was parsed.
func (s *WorkflowState) Empty() bool {
	return s.Skill == "" && s.CurrentStep == "" && s.Status == "" && s.CompletedSteps == ""
}

// Load parses the legacy state file in workdir. A missing file is not an
// error; it returns (nil, nil).
func Load(workdir string) (*WorkflowState, error) {
	raw, err := os.ReadFile(stateFilePath(workdir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	return Parse(string(raw)), nil
}

func stateFilePath(workdir string) string {
	return workdir + string(os.PathSeparator) + StateFileName
}

// Parse extracts the key/value block from a legacy state document. The
// format was hand-maintained, so parsing is deliberately forgiving:
// headings are skipped, list markers and bold markers are stripped, keys
// are matched case-insensitively, and unknown keys are ignored.
func Parse(text string) *WorkflowState {
	state := &WorkflowState{}
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		line = strings.ReplaceAll(line, "**", "")

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch normalizeKey(key) {
		case "skill", "skillname":
			state.Skill = value
		case "domain":
			state.Domain = value
		case "currentstep", "step":
			state.CurrentStep = value
		case "status":
			state.Status = value
		case "completedsteps", "completed":
			state.CompletedSteps = value
		case "timestamp", "updated", "lastupdated":
			state.Timestamp = value
		case "notes":
			state.Notes = value
		}
	}
	return state
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, "_", "")
	return key
}
