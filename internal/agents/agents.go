// Package agents defines the contracts for the external collaborators the
// planning engine fans out to: plan generation, validation, optimization, and
// classification. Every call degrades to a deterministic fallback, so callers
// always receive a usable value and never branch on error kind.
package agents

import (
	"context"

	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/taxonomy"
)

// Result is a tagged collaborator response: either a parsed agent value or a
// deterministic fallback with the reason degradation happened. Value is
// always usable either way.
type Result[T any] struct {
	Value    T
	Fallback bool
	Reason   string
}

// Ok wraps a successfully parsed agent value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Degraded wraps a fallback value with the reason the agent call failed.
func Degraded[T any](v T, reason string) Result[T] {
	return Result[T]{Value: v, Fallback: true, Reason: reason}
}

// Classification is the classification agent's output for one file.
type Classification struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// ValidationReport is the validation agent's structural critique of a plan.
// The zero value (no issues, no corrections) is the safe default.
type ValidationReport struct {
	Issues                   []string                     `json:"issues,omitempty"`
	CorrectedFolders         []taxonomy.VirtualFolderSpec `json:"corrected_folders,omitempty"`
	CorrectedRules           []taxonomy.PlacementRule     `json:"corrected_rules,omitempty"`
	FilesNeedingOptimization []string                     `json:"files_needing_optimization,omitempty"`
}

// PlacementReview pairs a low-confidence card with its current placement for
// the optimization agent.
type PlacementReview struct {
	Card    card.FileCard      `json:"file_card"`
	Current taxonomy.Placement `json:"current_placement"`
}

// OptimizationResult is the optimization agent's improved placements plus any
// brand-new folders it invented for them.
type OptimizationResult struct {
	Placements []taxonomy.Placement         `json:"placements"`
	NewFolders []taxonomy.VirtualFolderSpec `json:"new_folders,omitempty"`
}

// PlanGenerator produces taxonomy plan fragments from collection overviews.
// ParentPath is "" for the top level and the branch's folder path for
// sub-levels.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, ov card.Overview, strat taxonomy.Strategy, parentPath string) Result[taxonomy.Plan]
}

// Validator critiques a repaired plan for structural problems.
type Validator interface {
	ValidatePlan(ctx context.Context, plan taxonomy.Plan, ov card.Overview, samples []card.FileCard) Result[ValidationReport]
}

// Optimizer proposes better placements for a batch of low-confidence files.
type Optimizer interface {
	OptimizePlacements(ctx context.Context, plan taxonomy.Plan, batch []PlacementReview) Result[OptimizationResult]
}

// Classifier derives a summary and tags for one file.
type Classifier interface {
	Classify(ctx context.Context, c card.FileCard) Result[Classification]
}
