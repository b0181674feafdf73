package agents

import (
	"context"
	"path"

	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/taxonomy"
)

// Offline implements every collaborator contract with its deterministic
// fallback. It is the degradation target of the HTTP client and a complete
// no-network substitute: planning against Offline still terminates with one
// placement per card, worst case everything under /Other.
type Offline struct{}

var _ PlanGenerator = Offline{}
var _ Validator = Offline{}
var _ Optimizer = Offline{}
var _ Classifier = Offline{}

// GeneratePlan returns the trivial single-folder catch-all plan. For a
// sub-level request the folder sits at the parent path itself, so merging it
// leaves the branch effectively unsubdivided.
func (Offline) GeneratePlan(_ context.Context, _ card.Overview, _ taxonomy.Strategy, parentPath string) Result[taxonomy.Plan] {
	return Degraded(FallbackPlan(parentPath), "plan-generation agent unavailable")
}

// ValidatePlan returns the empty report; no issues is the safe default.
func (Offline) ValidatePlan(_ context.Context, _ taxonomy.Plan, _ card.Overview, _ []card.FileCard) Result[ValidationReport] {
	return Degraded(ValidationReport{}, "validation agent unavailable")
}

// OptimizePlacements echoes the current placements unchanged.
func (Offline) OptimizePlacements(_ context.Context, _ taxonomy.Plan, batch []PlacementReview) Result[OptimizationResult] {
	return Degraded(EchoOptimization(batch), "optimization agent unavailable")
}

// Classify derives the heuristic summary and tags from file metadata.
func (Offline) Classify(_ context.Context, c card.FileCard) Result[Classification] {
	summary, tags := card.Heuristic(c)
	return Degraded(Classification{Summary: summary, Tags: tags}, "classification agent unavailable")
}

// FallbackPlan builds the single-folder catch-all plan for a branch.
// parentPath "" means the top level, which lands on /Other.
func FallbackPlan(parentPath string) taxonomy.Plan {
	folderPath := taxonomy.FallbackFolderPath
	if parentPath != "" {
		folderPath = taxonomy.NormalizeFolderPath(parentPath)
	}
	return taxonomy.Plan{
		Folders: []taxonomy.VirtualFolderSpec{
			{
				ID:          taxonomy.FallbackFolderID,
				Path:        folderPath,
				Description: "Catch-all folder for " + path.Base(folderPath),
			},
		},
		Rules: []taxonomy.PlacementRule{
			{
				ID:             taxonomy.FallbackRuleID,
				TargetFolderID: taxonomy.FallbackFolderID,
				Priority:       0,
				ReasonTemplate: "No classification available",
			},
		},
	}
}

// EchoOptimization returns every reviewed placement as-is.
func EchoOptimization(batch []PlacementReview) OptimizationResult {
	out := OptimizationResult{
		Placements: make([]taxonomy.Placement, len(batch)),
	}
	for i, review := range batch {
		out.Placements[i] = review.Current
	}
	return out
}
