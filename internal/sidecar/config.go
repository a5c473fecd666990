// Package sidecar manages the pool of external agent processes that carry
// out skill-build steps. Each sidecar is one Node.js process running the
// agent runner script; it reads a single JSON run request on stdin and
// streams JSON messages, one per line, on stdout.
package sidecar

import "encoding/json"

// Config is an immutable run request for one sidecar. It is created once
// per spawn call, owned by the pool for the process's lifetime, and never
// mutated.
type Config struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model"`
	APIKey          string   `json:"-"` // passed via environment, never the request body
	Workdir         string   `json:"workdir"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	MaxTurns        int      `json:"max_turns,omitempty"`
	PermissionMode  string   `json:"permission_mode,omitempty"`
	ResumeSessionID string   `json:"resume_session_id,omitempty"`
	Betas           []string `json:"betas,omitempty"`
	RuntimeOverride string   `json:"-"` // resolver input, not part of the request
	AgentName       string   `json:"agent_name,omitempty"`
}

// requestJSON encodes the run request as the single line written to the
// sidecar's stdin.
func (c Config) requestJSON() ([]byte, error) {
	return json.Marshal(c)
}
