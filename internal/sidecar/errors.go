package sidecar

import (
	"errors"
	"fmt"

	"github.com/skillforge/skillforge/internal/runtime"
)

// Startup error types reported on the init-error channel. The set is
// closed: consumers switch on these strings.
const (
	ErrorRuntimeNotFound = "runtime-not-found"
	ErrorVersionTooOld   = "version-too-old"
	ErrorProgramNotFound = "program-not-found"
	ErrorSDKNotFound     = "sdk-not-found"
	ErrorSpawnIO         = "spawn-io-error"
)

// StartupError describes a spawn failure in terms an operator can act on.
// FixHint is a one-line remediation, e.g. the install command for a
// missing runtime.
type StartupError struct {
	Type    string
	Message string
	FixHint string
}

func (e *StartupError) Error() string {
	if e.FixHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.FixHint)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// classifyStartup maps resolver failures onto the startup taxonomy.
// Anything the resolver did not classify is treated as a spawn I/O error.
func classifyStartup(err error) *StartupError {
	var rerr *runtime.ResolutionError
	if errors.As(err, &rerr) {
		se := &StartupError{Message: rerr.Message, FixHint: rerr.Hint}
		switch rerr.Kind {
		case runtime.KindRuntimeNotFound:
			se.Type = ErrorRuntimeNotFound
		case runtime.KindProgramNotFound:
			se.Type = ErrorProgramNotFound
		case runtime.KindSDKNotFound:
			se.Type = ErrorSDKNotFound
		default:
			se.Type = ErrorSpawnIO
		}
		return se
	}
	return &StartupError{Type: ErrorSpawnIO, Message: err.Error()}
}

// versionError builds the startup error for a runtime outside the
// supported major range.
func versionError(res *runtime.Resolution) *StartupError {
	return &StartupError{
		Type: ErrorVersionTooOld,
		Message: fmt.Sprintf("node %s at %s is outside the supported range (%d-%d)",
			res.Version, res.NodePath, runtime.MinSupportedMajor, runtime.MaxSupportedMajor),
		FixHint: fmt.Sprintf("install Node.js %d or newer, or point runtime.node_override at a supported binary", runtime.MinSupportedMajor),
	}
}
