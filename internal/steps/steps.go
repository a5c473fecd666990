// Package steps defines the fixed mapping from skill-build step ids to the
// filesystem output each step owns, and the rule for which root a step's
// files live under.
package steps

import "path/filepath"

// Step ids of the skill-build workflow. Steps 1 and 3 are agent-internal
// sub-phases and own no filesystem output.
const (
	StepIntake   = 0
	StepResearch = 2
	StepPlan     = 4
	StepBuild    = 5
	StepReview   = 6
)

// ReferencesDir is the directory the build step generates reference
// material into. The build step expects it to exist and be empty on entry.
const ReferencesDir = "references"

// SkillDefinitionFile is the definition document the build step produces.
const SkillDefinitionFile = "SKILL.md"

// Outputs describes the filesystem output one step owns.
type Outputs struct {
	Name  string
	Files []string // relative filenames under {root}/{skill}/
	Dirs  []string // owned directories, removed recursively during cleanup
}

// outputTable is the authoritative step-id to file-set mapping.
var outputTable = map[int]Outputs{
	StepIntake:   {Name: "intake", Files: []string{"requirements.md"}},
	StepResearch: {Name: "research", Files: []string{"research.md"}},
	StepPlan:     {Name: "plan", Files: []string{"plan.md"}},
	StepBuild:    {Name: "build", Files: []string{SkillDefinitionFile}, Dirs: []string{ReferencesDir}},
	StepReview:   {Name: "review", Files: []string{"evaluation.md"}},
}

// ids in ascending order.
var ids = []int{StepIntake, StepResearch, StepPlan, StepBuild, StepReview}

// For returns the output set for a step id.
func For(stepID int) (Outputs, bool) {
	out, ok := outputTable[stepID]
	return out, ok
}

// IDs returns all output-owning step ids in ascending order.
func IDs() []int {
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

// After returns the output-owning step ids strictly greater than confirmed.
func After(confirmed int) []int {
	var out []int
	for _, id := range ids {
		if id > confirmed {
			out = append(out, id)
		}
	}
	return out
}

// IsContextStep reports whether the step's files are working context that
// may be mirrored into the output root. Only the build step's output is
// published exclusively to the output root.
func IsContextStep(stepID int) bool {
	_, ok := outputTable[stepID]
	return ok && stepID != StepBuild
}

// ResolveRoot returns the directory root a step's final files belong under:
// the configured output root for the build step when one is set, otherwise
// the working directory.
func ResolveRoot(stepID int, workdir, outputRoot string) string {
	if stepID == StepBuild && outputRoot != "" {
		return outputRoot
	}
	return workdir
}

// ArchiveName returns the packaged archive filename the build step produces.
func ArchiveName(skill string) string {
	return skill + ".skill.zip"
}

// SkillDir returns {root}/{skill}, the directory holding a skill's step files.
func SkillDir(root, skill string) string {
	return filepath.Join(root, skill)
}
