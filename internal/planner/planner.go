package planner

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dkowalski/arbor/internal/agents"
	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/errors"
	"github.com/dkowalski/arbor/internal/taxonomy"
)

// Diagnostic thresholds for post-run quality warnings.
const (
	highUnmatchedRatio  = 0.25
	tooNarrowMatchCount = 1
)

// Planner is the façade over a full planning run: strategy selection,
// orchestration, repair, validation, deterministic application, optimization,
// and diagnostics. Dependencies are injected so tests can run fully offline.
type Planner struct {
	orchestrator      *Orchestrator
	validator         agents.Validator
	optimizer         agents.Optimizer
	optimizeThreshold float64
	logf              func(format string, args ...any)
}

// New creates a Planner. optimizeThreshold is the confidence below which
// placements are sent to the optimization agent.
func New(orchestrator *Orchestrator, validator agents.Validator, optimizer agents.Optimizer, optimizeThreshold float64) *Planner {
	if optimizeThreshold <= 0 {
		optimizeThreshold = 0.5
	}
	return &Planner{
		orchestrator:      orchestrator,
		validator:         validator,
		optimizer:         optimizer,
		optimizeThreshold: optimizeThreshold,
		logf:              log.Printf,
	}
}

// SetLogger replaces the planner's log function.
func (p *Planner) SetLogger(logf func(format string, args ...any)) {
	if logf != nil {
		p.logf = logf
		p.orchestrator.SetLogger(logf)
	}
}

// RunResult is the complete outcome of one planning run: the final plan and
// exactly one placement per input card, in input order.
type RunResult struct {
	RunID      string               `json:"run_id"`
	SourceID   string               `json:"source_id"`
	Strategy   taxonomy.Strategy    `json:"strategy"`
	Plan       taxonomy.Plan        `json:"plan"`
	Placements []taxonomy.Placement `json:"placements"`
}

// PlanCollection runs a full planning pass over a source's cards. It fails
// only on empty input; external-service unavailability degrades to fallbacks
// throughout, worst case routing everything to /Other with low confidence.
func (p *Planner) PlanCollection(ctx context.Context, sourceID string, cards []card.FileCard) (*RunResult, error) {
	if len(cards) == 0 {
		return nil, errors.NewEmptyCollection(sourceID)
	}

	strat := taxonomy.SelectStrategy(len(cards))
	raw := p.orchestrator.GeneratePlan(ctx, cards, strat)

	plan := p.repair(raw)
	plan, flagged := p.validate(ctx, plan, cards, strat)

	placements, unmatched := p.apply(&plan, cards)
	for id := range unmatched {
		flagged[id] = true
	}
	placements, plan = p.optimize(ctx, plan, cards, placements, flagged)

	p.diagnose(&plan, cards, placements)

	return &RunResult{
		RunID:      newRunID(),
		SourceID:   sourceID,
		Strategy:   strat,
		Plan:       plan,
		Placements: placements,
	}, nil
}

// ReoptimizePersisted re-runs only the optimization step against already
// persisted placements, without regenerating the plan. An approximate plan
// is reconstructed from the existing virtual folder structure. The returned
// slice covers every input placement in order: optimized entries replaced,
// the rest passed through unchanged.
func (p *Planner) ReoptimizePersisted(ctx context.Context, cards []card.FileCard, placements []taxonomy.Placement) []taxonomy.Placement {
	plan := planFromPlacements(placements)

	cardsByID := make(map[string]*card.FileCard, len(cards))
	for i := range cards {
		cardsByID[cards[i].FileID] = &cards[i]
	}

	var flagged map[string]bool
	updated, _ := p.runOptimizer(ctx, plan, cardsByID, placements, flagged)
	return updated
}

// repair normalizes the plan and logs every change made.
func (p *Planner) repair(plan taxonomy.Plan) taxonomy.Plan {
	repaired, warnings := taxonomy.Repair(plan)
	for _, w := range warnings {
		p.logf("planner: repair: %s", w)
	}
	// A plan with no folders at all cannot place anything; fall back to the
	// catch-all so application still covers every card.
	if len(repaired.Folders) == 0 {
		repaired = agents.FallbackPlan("")
	}
	return repaired
}

// validate submits the repaired plan for external critique, applies any
// corrections, and re-repairs the corrected plan. The returned set holds
// file ids the critique flagged for optimization regardless of confidence.
func (p *Planner) validate(ctx context.Context, plan taxonomy.Plan, cards []card.FileCard, strat taxonomy.Strategy) (taxonomy.Plan, map[string]bool) {
	flagged := make(map[string]bool)
	overview := card.BuildOverview(cards, strat.MaxTags, strat.SamplesPerTag)

	res := p.validator.ValidatePlan(ctx, plan, overview, overview.SampledCards)
	if res.Fallback {
		p.logf("planner: validation degraded: %s", res.Reason)
		return plan, flagged
	}

	report := res.Value
	for _, issue := range report.Issues {
		p.logf("planner: validation issue: %s", issue)
	}
	for _, id := range report.FilesNeedingOptimization {
		flagged[id] = true
	}
	if len(report.CorrectedFolders) == 0 && len(report.CorrectedRules) == 0 {
		return plan, flagged
	}

	for _, f := range report.CorrectedFolders {
		if existing := plan.FolderByID(f.ID); existing != nil {
			*existing = f
		} else {
			plan.Folders = append(plan.Folders, f)
		}
	}
	for _, r := range report.CorrectedRules {
		replaced := false
		for i := range plan.Rules {
			if plan.Rules[i].ID == r.ID {
				plan.Rules[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			plan.Rules = append(plan.Rules, r)
		}
	}

	return p.repair(plan), flagged
}

// apply deterministically produces one placement per card, in input order.
// It also returns the set of file ids that matched no rule, for the
// optimization batch.
func (p *Planner) apply(plan *taxonomy.Plan, cards []card.FileCard) ([]taxonomy.Placement, map[string]bool) {
	matchCounts := taxonomy.ComputeRuleMatchCounts(plan.Rules, cards)
	s := newScorer(plan, matchCounts, len(cards))
	fallbackFolder := resolveFallbackFolder(plan)

	placements := make([]taxonomy.Placement, 0, len(cards))
	unmatched := make(map[string]bool)

	for i := range cards {
		c := &cards[i]
		best := taxonomy.FindBestRule(plan.Rules, c)

		if best == nil {
			placements = append(placements, taxonomy.Placement{
				FileID:      c.FileID,
				VirtualPath: joinVirtual(fallbackFolder.Path, c.Name),
				Tags:        card.NormalizeTags(c.Tags),
				Confidence:  s.unmatched(),
				Reason:      "No matching rule → " + fallbackFolder.Path,
			})
			unmatched[c.FileID] = true
			continue
		}

		folder := plan.FolderByID(best.Rule.TargetFolderID)
		if folder == nil {
			// Unresolvable post-repair target is a repair bug, not a
			// runtime condition; log it as a defect and keep the run alive.
			p.logf("planner: DEFECT: rule %q target %q unresolved after repair", best.Rule.ID, best.Rule.TargetFolderID)
			folder = fallbackFolder
		}

		reason := best.Rule.ReasonTemplate
		if reason == "" {
			reason = fmt.Sprintf("Matched rule %s", best.Rule.ID)
		}

		placements = append(placements, taxonomy.Placement{
			FileID:      c.FileID,
			VirtualPath: joinVirtual(folder.Path, c.Name),
			Tags:        card.NormalizeTags(c.Tags),
			Confidence:  s.score(best.Rule, best.MatchQuality),
			Reason:      reason + " → " + folder.Path,
		})
	}

	return placements, unmatched
}

// optimize batches low-confidence and validation-flagged placements to the
// optimization agent and merges the returned improvements.
func (p *Planner) optimize(ctx context.Context, plan taxonomy.Plan, cards []card.FileCard, placements []taxonomy.Placement, flagged map[string]bool) ([]taxonomy.Placement, taxonomy.Plan) {
	cardsByID := make(map[string]*card.FileCard, len(cards))
	for i := range cards {
		cardsByID[cards[i].FileID] = &cards[i]
	}
	return p.runOptimizer(ctx, plan, cardsByID, placements, flagged)
}

// runOptimizer is shared by the full run and the persisted re-optimization
// entry point.
func (p *Planner) runOptimizer(ctx context.Context, plan taxonomy.Plan, cardsByID map[string]*card.FileCard, placements []taxonomy.Placement, flagged map[string]bool) ([]taxonomy.Placement, taxonomy.Plan) {
	batch := make([]agents.PlacementReview, 0)
	for _, pl := range placements {
		if pl.Confidence >= p.optimizeThreshold && !flagged[pl.FileID] {
			continue
		}
		c, ok := cardsByID[pl.FileID]
		if !ok {
			p.logf("planner: optimization: no card for file %s; skipping", pl.FileID)
			continue
		}
		batch = append(batch, agents.PlacementReview{Card: *c, Current: pl})
	}
	if len(batch) == 0 {
		return placements, plan
	}

	res := p.optimizer.OptimizePlacements(ctx, plan, batch)
	if res.Fallback {
		p.logf("planner: optimization degraded: %s", res.Reason)
	}
	result := res.Value

	// New folders are deduplicated by path before joining the plan.
	existingPaths := make(map[string]bool, len(plan.Folders))
	for _, f := range plan.Folders {
		existingPaths[f.Path] = true
	}
	for _, f := range result.NewFolders {
		f.Path = taxonomy.NormalizeFolderPath(f.Path)
		if existingPaths[f.Path] || plan.FolderByID(f.ID) != nil {
			continue
		}
		existingPaths[f.Path] = true
		plan.Folders = append(plan.Folders, f)
	}

	// Optimizer results fully replace the corresponding placements; all
	// others are untouched.
	improvedByID := make(map[string]taxonomy.Placement, len(result.Placements))
	for _, improved := range result.Placements {
		c, ok := cardsByID[improved.FileID]
		if !ok {
			p.logf("planner: optimization returned unknown file %s; ignoring", improved.FileID)
			continue
		}
		improved.VirtualPath = repairVirtualPath(improved.VirtualPath, c.Name)
		if improved.Tags == nil {
			improved.Tags = card.NormalizeTags(c.Tags)
		}
		improvedByID[improved.FileID] = improved
	}

	out := make([]taxonomy.Placement, len(placements))
	for i, pl := range placements {
		if improved, ok := improvedByID[pl.FileID]; ok {
			out[i] = improved
		} else {
			out[i] = pl
		}
	}
	return out, plan
}

// diagnose logs post-hoc quality warnings. Diagnostics never alter outputs.
func (p *Planner) diagnose(plan *taxonomy.Plan, cards []card.FileCard, placements []taxonomy.Placement) {
	matchCounts := taxonomy.ComputeRuleMatchCounts(plan.Rules, cards)
	total := len(cards)

	unmatchedCount := 0
	for i := range cards {
		if taxonomy.FindBestRule(plan.Rules, &cards[i]) == nil {
			unmatchedCount++
		}
	}
	if total > 0 {
		ratio := float64(unmatchedCount) / float64(total)
		if ratio > highUnmatchedRatio {
			p.logf("planner: diagnostics: %.0f%% of files matched no rule", ratio*100)
		}
	}

	for i := range plan.Rules {
		r := &plan.Rules[i]
		count := matchCounts[r.ID]
		if total > 0 && float64(count)/float64(total) > BroadCoverageRatio {
			p.logf("planner: diagnostics: rule %q matches %d of %d files (too broad)", r.ID, count, total)
		}
		if count == tooNarrowMatchCount {
			p.logf("planner: diagnostics: rule %q matches exactly one file (too narrow)", r.ID)
		}
		if plan.FolderByID(r.TargetFolderID) == nil {
			p.logf("planner: DEFECT: rule %q still references missing folder %q after repair", r.ID, r.TargetFolderID)
		}
	}
}

// resolveFallbackFolder picks the folder unmatched files are routed to:
// an /Other-ish folder when present, else the plan's first folder. The plan
// is guaranteed non-empty by repair.
func resolveFallbackFolder(plan *taxonomy.Plan) *taxonomy.VirtualFolderSpec {
	for i := range plan.Folders {
		p := plan.Folders[i].Path
		if p == taxonomy.FallbackFolderPath || strings.HasSuffix(p, taxonomy.FallbackFolderPath) {
			return &plan.Folders[i]
		}
	}
	return &plan.Folders[0]
}

// joinVirtual concatenates a folder path (never slash-terminated) and a file
// name into a virtual path.
func joinVirtual(folderPath, name string) string {
	return folderPath + "/" + name
}

// repairVirtualPath ensures an optimizer-returned path still ends in the
// original file name, appending it when the agent dropped it.
func repairVirtualPath(vp, name string) string {
	vp = strings.TrimSpace(strings.ReplaceAll(vp, "\\", "/"))
	vp = strings.TrimRight(vp, "/")
	if vp == "" {
		return joinVirtual(taxonomy.FallbackFolderPath, name)
	}
	if !strings.HasPrefix(vp, "/") {
		vp = "/" + vp
	}
	if path.Base(vp) != name {
		vp = joinVirtual(vp, name)
	}
	return vp
}

// planFromPlacements reconstructs an approximate plan from the folder
// structure implied by existing virtual paths. Good enough as optimizer
// context; it carries no rules.
func planFromPlacements(placements []taxonomy.Placement) taxonomy.Plan {
	var plan taxonomy.Plan
	seen := make(map[string]bool)

	for _, pl := range placements {
		dir := path.Dir(pl.VirtualPath)
		if dir == "." || dir == "" || dir == "/" {
			dir = taxonomy.FallbackFolderPath
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true
		plan.Folders = append(plan.Folders, taxonomy.VirtualFolderSpec{
			ID:   folderIDFromPath(dir),
			Path: dir,
		})
	}
	return plan
}

// folderIDFromPath derives a stable folder id from a virtual path.
func folderIDFromPath(p string) string {
	id := strings.ToLower(strings.Trim(p, "/"))
	id = strings.ReplaceAll(id, "/", "--")
	id = strings.ReplaceAll(id, " ", "-")
	if id == "" {
		id = taxonomy.FallbackFolderID
	}
	return id
}

// newRunID generates a ULID for the run.
func newRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		// crypto/rand failures are not survivable in any useful way.
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id.String()
}
