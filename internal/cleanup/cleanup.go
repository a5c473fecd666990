// Package cleanup normalizes skill-build filesystem state against the
// step-indexed completion record. All deletion is best-effort and
// non-transactional: a failed delete is logged and the sweep continues,
// because the on-disk state is always re-derivable from the step output
// table and can be swept again.
package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/skillforge/skillforge/internal/logging"
	"github.com/skillforge/skillforge/internal/steps"
)

// Roots names the two candidate output locations for a skill's files.
type Roots struct {
	Workdir    string
	OutputRoot string // empty when no separate publish directory is configured
}

// Engine deletes stale or partial step output.
type Engine struct {
	log *logging.Logger
}

// New creates a cleanup engine.
func New(log *logging.Logger) *Engine {
	return &Engine{log: log.WithComponent("cleanup")}
}

// Step deletes one step's owned files from every location they could
// legally reside in. For the build step this also resets the references
// directory and removes the packaged archive.
func (e *Engine) Step(skill string, stepID int, roots Roots) {
	out, ok := steps.For(stepID)
	if !ok {
		return
	}
	e.log.StepCleanup(skill, stepID)

	for _, root := range e.stepLocations(stepID, roots) {
		dir := steps.SkillDir(root, skill)
		for _, name := range out.Files {
			e.remove(skill, filepath.Join(dir, name))
		}
	}

	if stepID == steps.StepBuild {
		root := steps.ResolveRoot(stepID, roots.Workdir, roots.OutputRoot)
		dir := steps.SkillDir(root, skill)
		e.resetReferences(skill, filepath.Join(dir, steps.ReferencesDir))
		e.remove(skill, filepath.Join(dir, steps.ArchiveName(skill)))
	}
}

// Sweep invokes targeted cleanup for every step id strictly greater than
// the durably confirmed step, so no stale "ahead" output survives an
// interrupted run.
func (e *Engine) Sweep(ctx context.Context, skill string, confirmedStep int, roots Roots) {
	_, span := otel.Tracer("skillforge/cleanup").Start(ctx, "cleanup.sweep")
	span.SetAttributes(
		attribute.String("skill.name", skill),
		attribute.Int("skill.confirmed_step", confirmedStep),
	)
	defer span.End()

	e.log.ReconcileSweep(skill, confirmedStep)
	for _, stepID := range steps.After(confirmedStep) {
		e.Step(skill, stepID, roots)
	}
}

// Thorough removes every step's output from every location unconditionally,
// including the references directory and the packaged archive. Used by the
// user-initiated reset, not by automatic reconciliation.
func (e *Engine) Thorough(skill string, roots Roots) {
	for _, stepID := range steps.IDs() {
		out, _ := steps.For(stepID)
		for _, root := range e.allLocations(roots) {
			dir := steps.SkillDir(root, skill)
			for _, name := range out.Files {
				e.remove(skill, filepath.Join(dir, name))
			}
			for _, sub := range out.Dirs {
				e.removeAll(skill, filepath.Join(dir, sub))
			}
			if stepID == steps.StepBuild {
				e.remove(skill, filepath.Join(dir, steps.ArchiveName(skill)))
			}
		}
	}
}

// stepLocations returns the roots a step's plain files may legally reside
// in: the working directory, plus the output root for context steps that
// can be mirrored there. Build-step files live only under their resolved
// root.
func (e *Engine) stepLocations(stepID int, roots Roots) []string {
	if stepID == steps.StepBuild {
		return []string{steps.ResolveRoot(stepID, roots.Workdir, roots.OutputRoot)}
	}
	locations := []string{roots.Workdir}
	if roots.OutputRoot != "" && steps.IsContextStep(stepID) {
		locations = append(locations, roots.OutputRoot)
	}
	return locations
}

// allLocations returns every distinct candidate root.
func (e *Engine) allLocations(roots Roots) []string {
	if roots.OutputRoot == "" || roots.OutputRoot == roots.Workdir {
		return []string{roots.Workdir}
	}
	return []string{roots.Workdir, roots.OutputRoot}
}

// resetReferences recreates the references directory empty, but only when
// it currently has contents: an empty references directory is an
// initialization invariant expected by the build step.
func (e *Engine) resetReferences(skill, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		e.log.CleanupResult(skill, dir, err)
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		e.log.CleanupResult(skill, dir, err)
		return
	}
	e.log.CleanupResult(skill, dir, nil)
}

// remove deletes one file, treating a missing file as already clean.
func (e *Engine) remove(skill, path string) {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	e.log.CleanupResult(skill, path, err)
}

// removeAll deletes one directory tree, treating absence as already clean.
func (e *Engine) removeAll(skill, path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}
	e.log.CleanupResult(skill, path, os.RemoveAll(path))
}
