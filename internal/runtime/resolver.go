// Package runtime locates and validates the Node.js runtime and the
// sidecar program that skillforge spawns for agent invocations.
package runtime

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Supported Node.js major version range (inclusive).
const (
	MinSupportedMajor = 18
	MaxSupportedMajor = 24
)

// Source identifies where the runtime binary was discovered.
type Source string

const (
	SourceOverride Source = "override"
	SourceBundled  Source = "bundled"
	SourcePath     Source = "path"
)

// Resolution is the result of runtime discovery.
type Resolution struct {
	NodePath     string
	Version      string
	Major        int
	MeetsMinimum bool
	Source       Source
}

// Error kinds for resolution failures.
const (
	KindRuntimeNotFound = "runtime-not-found"
	KindProgramNotFound = "program-not-found"
	KindSDKNotFound     = "sdk-not-found"
)

// ResolutionError is a classified discovery failure with an actionable hint.
type ResolutionError struct {
	Kind    string
	Message string
	Hint    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// versionOutput runs the binary's self-reported version command.
// Hookable for tests.
var versionOutput = func(nodePath string) (string, error) {
	out, err := exec.Command(nodePath, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ResolveNode discovers a Node.js runtime. Search order: explicit override,
// a bundled copy next to the executable, then the system PATH. A runtime
// outside the supported range resolves successfully with MeetsMinimum=false
// so callers can surface an actionable message instead of a hard failure.
func ResolveNode(override string) (*Resolution, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return nil, &ResolutionError{
				Kind:    KindRuntimeNotFound,
				Message: fmt.Sprintf("configured node path %s does not exist", override),
				Hint:    "Fix the runtime.node_override setting or remove it to use auto-discovery.",
			}
		}
		return describe(override, SourceOverride), nil
	}

	if bundled := bundledNodePath(); bundled != "" {
		if _, err := os.Stat(bundled); err == nil {
			return describe(bundled, SourceBundled), nil
		}
	}

	if path, err := exec.LookPath("node"); err == nil {
		return describe(path, SourcePath), nil
	}

	return nil, &ResolutionError{
		Kind:    KindRuntimeNotFound,
		Message: "no Node.js runtime found",
		Hint:    fmt.Sprintf("Install Node.js %d-%d or set runtime.node_override in skillforge.toml.", MinSupportedMajor, MaxSupportedMajor),
	}
}

// describe builds a Resolution for a discovered binary.
func describe(nodePath string, source Source) *Resolution {
	res := &Resolution{
		NodePath: nodePath,
		Source:   source,
	}
	if version, err := versionOutput(nodePath); err == nil {
		res.Version = version
	}
	res.Major, _ = ParseMajor(res.Version)
	res.MeetsMinimum = MeetsMinimum(res.Version)
	return res
}

// bundledNodePath returns the expected location of a Node.js copy shipped
// alongside the skillforge binary, or "" when the executable path is unknown.
func bundledNodePath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "bundled", "node")
}

// ParseMajor extracts the major version from strings like "v20.11.0" or
// "20.11.0". Returns ok=false for empty or non-numeric input.
func ParseMajor(version string) (int, bool) {
	v := strings.TrimSpace(version)
	v = strings.TrimPrefix(v, "v")
	if v == "" {
		return 0, false
	}
	if idx := strings.IndexByte(v, '.'); idx >= 0 {
		v = v[:idx]
	}
	major, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return major, true
}

// MeetsMinimum reports whether the version's major falls inside the
// supported range. Unparseable versions never meet the minimum.
func MeetsMinimum(version string) bool {
	major, ok := ParseMajor(version)
	if !ok {
		return false
	}
	return major >= MinSupportedMajor && major <= MaxSupportedMajor
}

// ResolveProgram locates the sidecar runner script. There is no fallback:
// a missing program is a hard, classified failure.
func ResolveProgram(configured string) (string, error) {
	candidates := []string{}
	if configured != "" {
		candidates = append(candidates, configured)
	} else if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "sidecar", "runner.mjs"))
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", &ResolutionError{
		Kind:    KindProgramNotFound,
		Message: "sidecar runner script not found",
		Hint:    "Set runtime.program in skillforge.toml to the runner.mjs path.",
	}
}

// ResolveSDK locates the agent SDK install directory the runner depends on.
func ResolveSDK(configured string) (string, error) {
	candidates := []string{}
	if configured != "" {
		candidates = append(candidates, configured)
	} else if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "node_modules", "@anthropic-ai", "claude-agent-sdk"))
	}

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
			return dir, nil
		}
	}

	return "", &ResolutionError{
		Kind:    KindSDKNotFound,
		Message: "agent SDK installation not found",
		Hint:    "Install the agent SDK next to the sidecar runner, or set runtime.sdk_dir.",
	}
}
