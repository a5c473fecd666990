// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the skillforge configuration.
type Config struct {
	Paths   PathsConfig   `toml:"paths"`
	Runtime RuntimeConfig `toml:"runtime"`
	Sidecar SidecarConfig `toml:"sidecar"`
	Bus     BusConfig     `toml:"bus"`
	Storage StorageConfig `toml:"storage"`
}

// PathsConfig contains filesystem layout settings.
type PathsConfig struct {
	Workspace  string `toml:"workspace"`   // Working directory for in-progress skill builds
	OutputRoot string `toml:"output_root"` // Optional separate publish directory; empty = workspace
}

// RuntimeConfig contains Node.js runtime discovery settings.
type RuntimeConfig struct {
	NodeOverride string `toml:"node_override"` // Explicit node binary path, takes priority
	Program      string `toml:"program"`       // Sidecar runner script path
	SDKDir       string `toml:"sdk_dir"`       // Agent SDK install directory
}

// SidecarConfig contains defaults applied to every spawned sidecar.
type SidecarConfig struct {
	Model          string   `toml:"model"`
	MaxTurns       int      `toml:"max_turns"`
	PermissionMode string   `toml:"permission_mode"`
	AllowedTools   []string `toml:"allowed_tools,omitempty"`
	Betas          []string `toml:"betas,omitempty"`
	GraceSeconds   int      `toml:"grace_seconds"` // Grace period before force kill
}

// BusConfig contains outbound event bus settings.
type BusConfig struct {
	URL           string `toml:"url"`            // NATS server URL; empty = in-process bus
	SubjectPrefix string `toml:"subject_prefix"` // Prefix for published subjects
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path   string `toml:"path"`    // Base directory for persistent data
	DBFile string `toml:"db_file"` // SQLite database filename under Path
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Sidecar: SidecarConfig{
			Model:          "claude-sonnet-4-5",
			MaxTurns:       50,
			PermissionMode: "acceptEdits",
			GraceSeconds:   5,
		},
		Bus: BusConfig{
			SubjectPrefix: "skillforge.sidecar",
		},
		Storage: StorageConfig{
			Path:   "~/.local/skillforge",
			DBFile: "skillforge.db",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from skillforge.toml in the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadFile(filepath.Join(cwd, "skillforge.toml"))
}

// StoragePath returns the expanded storage base directory.
func (c *Config) StoragePath() string {
	path := c.Storage.Path
	if path == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "skillforge")
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

// DatabasePath returns the full path to the SQLite database.
func (c *Config) DatabasePath() string {
	file := c.Storage.DBFile
	if file == "" {
		file = "skillforge.db"
	}
	return filepath.Join(c.StoragePath(), file)
}

// ResolveWorkspace returns the absolute workspace directory, defaulting to cwd.
func (c *Config) ResolveWorkspace() string {
	ws := c.Paths.Workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	if !filepath.IsAbs(ws) {
		ws, _ = filepath.Abs(ws)
	}
	return ws
}
