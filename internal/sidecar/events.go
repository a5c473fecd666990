package sidecar

import (
	"encoding/json"

	"github.com/skillforge/skillforge/internal/bus"
	"github.com/skillforge/skillforge/internal/logging"
)

// Dispatcher classifies sidecar stdout lines and publishes them on the
// bus. System messages become lightweight init-progress notifications;
// every other well-formed message is forwarded verbatim on the content
// channel. Malformed lines are logged and dropped, never surfaced as
// agent output.
type Dispatcher struct {
	bus bus.Publisher
	log *logging.Logger
}

// NewDispatcher wires a dispatcher to pub. Consumers needing full raw
// payloads subscribe a transcript writer to the content channel instead
// of reading through the dispatcher.
func NewDispatcher(pub bus.Publisher, log *logging.Logger) *Dispatcher {
	return &Dispatcher{bus: pub, log: log.WithComponent("dispatcher")}
}

// probe holds the routing fields of a sidecar message. Everything else in
// the payload is opaque to the dispatcher.
type probe struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Timestamp string `json:"timestamp"`
}

// DispatchLine routes one stdout line from agentID.
func (d *Dispatcher) DispatchLine(agentID string, line []byte) {
	var p probe
	if err := json.Unmarshal(line, &p); err != nil {
		d.log.Warn("dropping malformed sidecar line", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
			"bytes":    len(line),
		})
		return
	}

	if p.Type == "system" {
		d.publish(bus.ChannelInitProgress, bus.InitProgress{
			AgentID:   agentID,
			Subtype:   p.Subtype,
			Timestamp: p.Timestamp,
		})
		return
	}

	raw := make(json.RawMessage, len(line))
	copy(raw, line)
	d.publish(bus.ChannelContent, bus.Content{AgentID: agentID, Message: raw})
}

// Exited reports process termination on the exit channel.
func (d *Dispatcher) Exited(agentID string, success bool) {
	d.publish(bus.ChannelExit, bus.Exit{AgentID: agentID, Success: success})
}

// ShuttingDown announces a requested shutdown of agentID.
func (d *Dispatcher) ShuttingDown(agentID string) {
	d.publish(bus.ChannelShutdown, bus.Shutdown{AgentID: agentID})
}

// StartupFailed reports a spawn failure on the init-error channel.
func (d *Dispatcher) StartupFailed(serr *StartupError) {
	d.publish(bus.ChannelInitError, bus.InitError{
		ErrorType: serr.Type,
		Message:   serr.Message,
		FixHint:   serr.FixHint,
	})
}

func (d *Dispatcher) publish(channel string, payload interface{}) {
	if err := d.bus.Publish(channel, payload); err != nil {
		d.log.Warn("bus publish failed", map[string]interface{}{
			"channel": channel,
			"error":   err.Error(),
		})
	}
}
