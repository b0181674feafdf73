package planner

import (
	"context"
	"log"
	"sync"

	"github.com/dkowalski/arbor/internal/agents"
	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/pool"
	"github.com/dkowalski/arbor/internal/taxonomy"
)

// Orchestrator drives plan generation for one run: a single external call
// for small collections, or a top-level call followed by concurrent per-branch
// sub-level calls for large ones.
type Orchestrator struct {
	gen  agents.PlanGenerator
	pool *pool.Pool
	logf func(format string, args ...any)
}

// NewOrchestrator wires the generator and the shared worker pool. The pool is
// an explicit dependency so tests can inject a trivially-bounded one.
func NewOrchestrator(gen agents.PlanGenerator, p *pool.Pool) *Orchestrator {
	return &Orchestrator{gen: gen, pool: p, logf: log.Printf}
}

// SetLogger replaces the orchestrator's log function.
func (o *Orchestrator) SetLogger(logf func(format string, args ...any)) {
	if logf != nil {
		o.logf = logf
	}
}

// GeneratePlan produces one merged plan honoring the strategy. The result is
// raw: callers repair it before use.
func (o *Orchestrator) GeneratePlan(ctx context.Context, cards []card.FileCard, strat taxonomy.Strategy) taxonomy.Plan {
	overview := card.BuildOverview(cards, strat.MaxTags, strat.SamplesPerTag)

	res := o.gen.GeneratePlan(ctx, overview, strat, "")
	if res.Fallback {
		o.logf("planner: top-level generation degraded: %s", res.Reason)
	}
	plan := res.Value

	if strat.Mode != taxonomy.ModeHierarchical {
		return plan
	}

	// Second level: subdivide every root folder holding enough files.
	plan = o.subdivide(ctx, plan, cards, strat, plan.Folders, strat.MinFilesForSubLevel)

	if strat.MaxDepth >= 3 && strat.MinFilesForThirdLevel > 0 {
		// Third level: reassign over the merged plan and subdivide only
		// leaf folders, so intermediate folders are never split twice.
		leaves := taxonomy.LeafFolders(plan)
		plan = o.subdivide(ctx, plan, cards, strat, leaves, strat.MinFilesForThirdLevel)
	}

	return plan
}

// branchJob is one folder's pending sub-plan request.
type branchJob struct {
	folder taxonomy.VirtualFolderSpec
	cards  []card.FileCard
}

// subdivide issues concurrent sub-plan requests for every candidate folder
// whose assigned-card count meets minFiles, then folds the completed
// sub-plans into the parent in deterministic candidate order. Branches with
// too few files are left alone rather than forced into meaningless structure.
func (o *Orchestrator) subdivide(ctx context.Context, plan taxonomy.Plan, cards []card.FileCard, strat taxonomy.Strategy, candidates []taxonomy.VirtualFolderSpec, minFiles int) taxonomy.Plan {
	groups := assignCards(&plan, cards)

	jobs := make([]branchJob, 0, len(candidates))
	for _, folder := range candidates {
		branchCards := groups[folder.ID]
		if len(branchCards) >= minFiles {
			jobs = append(jobs, branchJob{folder: folder, cards: branchCards})
		}
	}
	if len(jobs) == 0 {
		return plan
	}

	// Sibling branches run concurrently through the pool; each produces an
	// immutable sub-result slot. Reconciliation happens only after all
	// branches return.
	results := make([]agents.Result[taxonomy.Plan], len(jobs))
	var wg sync.WaitGroup
	for i := range jobs {
		i := i
		job := jobs[i]
		wg.Add(1)
		o.pool.Execute(func() {
			defer wg.Done()
			branchOverview := card.BuildOverview(job.cards, strat.MaxTags, strat.SamplesPerTag)
			results[i] = o.gen.GeneratePlan(ctx, branchOverview, strat, job.folder.Path)
		})
	}
	wg.Wait()

	// Merge is a pure fold over completed sub-results, in job order.
	for i, job := range jobs {
		if results[i].Fallback {
			o.logf("planner: sub-level generation for %s degraded: %s", job.folder.Path, results[i].Reason)
		}
		plan = taxonomy.MergeSubPlan(plan, job.folder.ID, results[i].Value)
	}
	return plan
}

// assignCards partitions cards by the folder their best-matching rule
// targets. Unmatched cards are omitted; the implicit fallback is applied
// downstream during plan application.
func assignCards(plan *taxonomy.Plan, cards []card.FileCard) map[string][]card.FileCard {
	groups := make(map[string][]card.FileCard)
	for i := range cards {
		best := taxonomy.FindBestRule(plan.Rules, &cards[i])
		if best == nil {
			continue
		}
		id := best.Rule.TargetFolderID
		groups[id] = append(groups[id], cards[i])
	}
	return groups
}
