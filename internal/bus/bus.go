// Package bus carries sidecar lifecycle events to the UI collaborator over
// named channels. Channel names and payload shapes are a stable boundary.
package bus

import "encoding/json"

// Channel names.
const (
	ChannelInitProgress = "init-progress"
	ChannelContent      = "content"
	ChannelExit         = "exit"
	ChannelShutdown     = "shutdown"
	ChannelInitError    = "init-error"
)

// InitProgress reports a coarse startup milestone from a sidecar.
type InitProgress struct {
	AgentID   string `json:"agent_id"`
	Subtype   string `json:"subtype"`
	Timestamp string `json:"timestamp"`
}

// Content carries one well-formed sidecar message verbatim.
type Content struct {
	AgentID string          `json:"agent_id"`
	Message json.RawMessage `json:"message"`
}

// Exit reports a sidecar process exit.
type Exit struct {
	AgentID string `json:"agent_id"`
	Success bool   `json:"success"`
}

// Shutdown reports an explicit sidecar termination.
type Shutdown struct {
	AgentID string `json:"agent_id"`
}

// InitError reports a classified spawn failure before the spawn call returns.
type InitError struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	FixHint   string `json:"fix_hint"`
}

// Publisher publishes events on named channels.
type Publisher interface {
	Publish(channel string, payload interface{}) error
	Close() error
}
