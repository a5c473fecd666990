// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config  string `help:"Config file path (default: ./skillforge.toml)" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Build   BuildCmd   `cmd:"" help:"Run the skill-build workflow"`
	Status  StatusCmd  `cmd:"" help:"Show build progress and lock state for a skill"`
	Reset   ResetCmd   `cmd:"" help:"Erase all build output and progress for a skill"`
	Cleanup CleanupCmd `cmd:"" help:"Sweep stale step output for a skill"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// BuildCmd runs every unconfirmed step of a skill build.
type BuildCmd struct {
	Skill    string `arg:"" help:"Skill name (lowercase, hyphen-separated)"`
	Model    string `help:"Model identifier override"`
	MaxTurns int    `help:"Max agent turns per step override"`
}

// StatusCmd reports the skill's confirmed step, lock holder, and open sessions.
type StatusCmd struct {
	Skill string `arg:"" help:"Skill name"`
}

// ResetCmd performs thorough deletion and clears recorded progress.
type ResetCmd struct {
	Skill string `arg:"" help:"Skill name"`
	Force bool   `short:"f" help:"Skip confirmation"`
}

// CleanupCmd sweeps output of steps beyond the last confirmed one.
type CleanupCmd struct {
	Skill string `arg:"" help:"Skill name"`
	Step  int    `default:"-1" help:"Roll back this specific step instead of sweeping"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
