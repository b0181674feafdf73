package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dkowalski/arbor/internal/agents"
	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/config"
	"github.com/dkowalski/arbor/internal/db"
	"github.com/dkowalski/arbor/internal/errors"
	"github.com/dkowalski/arbor/internal/planner"
	"github.com/dkowalski/arbor/internal/pool"
	"github.com/dkowalski/arbor/internal/taxonomy"
	"github.com/dkowalski/arbor/internal/vtree"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	planner *planner.Planner
}

// NewHandlers wires a Handlers instance: the agent client (degrading to the
// offline fallback without credentials), the shared worker pool, and the
// planner on top of them.
func NewHandlers(database *sql.DB, cfg *config.Config) *Handlers {
	client := agents.NewClient(cfg.AgentModel, time.Duration(cfg.AgentTimeoutSecs)*time.Second)
	p := pool.New(cfg.MaxConcurrentAgentCalls)
	orch := planner.NewOrchestrator(client, p)
	return &Handlers{
		db:      database,
		cfg:     cfg,
		planner: planner.New(orch, client, client, cfg.OptimizeThreshold),
	}
}

// Request types for each tool

// PlanRunRequest represents the arguments for plan_run.
type PlanRunRequest struct {
	SourceID string `json:"source_id"`
}

// TreeGetRequest represents the arguments for tree_get.
type TreeGetRequest struct {
	SourceID     string `json:"source_id"`
	TopLevelOnly bool   `json:"top_level_only,omitempty"`
}

// NodeChildrenRequest represents the arguments for node_children.
type NodeChildrenRequest struct {
	SourceID string `json:"source_id"`
	Path     string `json:"path"`
}

// TreeStatsRequest represents the arguments for tree_stats.
type TreeStatsRequest struct {
	SourceID string `json:"source_id"`
}

// ReoptimizeRequest represents the arguments for reoptimize.
type ReoptimizeRequest struct {
	SourceID string `json:"source_id"`
}

// PlanRunResult is the summary returned by plan_run.
type PlanRunResult struct {
	RunID          string            `json:"run_id"`
	SourceID       string            `json:"source_id"`
	Strategy       taxonomy.Strategy `json:"strategy"`
	FolderCount    int               `json:"folder_count"`
	RuleCount      int               `json:"rule_count"`
	PlacementCount int               `json:"placement_count"`
}

// ReoptimizeResult is the summary returned by reoptimize.
type ReoptimizeResult struct {
	SourceID       string `json:"source_id"`
	PlacementCount int    `json:"placement_count"`
	MovedCount     int    `json:"moved_count"`
}

// Handler implementations

// HandlePlanRun runs a full planning pass for a source and persists the
// resulting placements and run record.
func (h *Handlers) HandlePlanRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PlanRunRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.SourceID == "" {
		return errorResult(errors.NewInvalidRequest("source_id is required")), nil
	}

	cards, err := db.FileCardsBySource(h.db, input.SourceID)
	if err != nil {
		return errorResult(err), nil
	}

	run, err := h.planner.PlanCollection(ctx, input.SourceID, cards)
	if err != nil {
		return errorResult(err), nil
	}

	if err := db.SavePlacements(h.db, input.SourceID, run.RunID, run.Placements); err != nil {
		return errorResult(err), nil
	}
	if err := db.SaveRun(h.db, run.RunID, input.SourceID, run.Strategy, run.Plan, len(cards)); err != nil {
		return errorResult(err), nil
	}

	return successResult(PlanRunResult{
		RunID:          run.RunID,
		SourceID:       input.SourceID,
		Strategy:       run.Strategy,
		FolderCount:    len(run.Plan.Folders),
		RuleCount:      len(run.Plan.Rules),
		PlacementCount: len(run.Placements),
	})
}

// HandleTreeGet returns the virtual tree for a source, either in full or
// collapsed to the top-level folders for large collections.
func (h *Handlers) HandleTreeGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TreeGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.SourceID == "" {
		return errorResult(errors.NewInvalidRequest("source_id is required")), nil
	}

	if input.TopLevelOnly {
		counts, total, err := db.TopLevelCounts(h.db, input.SourceID)
		if err != nil {
			return errorResult(err), nil
		}
		if total == 0 {
			return errorResult(errors.NewNotFound(input.SourceID)), nil
		}
		return successResult(vtree.BuildTopLevelOnly(counts, total))
	}

	root, err := h.buildTree(input.SourceID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(root)
}

// HandleNodeChildren returns the direct children of one tree node.
func (h *Handlers) HandleNodeChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NodeChildrenRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.SourceID == "" || input.Path == "" {
		return errorResult(errors.NewInvalidRequest("source_id and path are required")), nil
	}

	root, err := h.buildTree(input.SourceID)
	if err != nil {
		return errorResult(err), nil
	}

	node := vtree.NodeByPath(root, input.Path)
	if node == nil {
		return errorResult(errors.NewNotFound(input.Path)), nil
	}
	return successResult(map[string]any{
		"path":     node.Path,
		"is_dir":   node.IsDir,
		"children": node.Children,
	})
}

// HandleTreeStats returns aggregate statistics over a source's tree.
func (h *Handlers) HandleTreeStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TreeStatsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.SourceID == "" {
		return errorResult(errors.NewInvalidRequest("source_id is required")), nil
	}

	root, err := h.buildTree(input.SourceID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(vtree.ComputeStats(root))
}

// HandleReoptimize re-runs only the optimization step over persisted
// placements and saves the improvements.
func (h *Handlers) HandleReoptimize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReoptimizeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.SourceID == "" {
		return errorResult(errors.NewInvalidRequest("source_id is required")), nil
	}

	cards, err := db.FileCardsBySource(h.db, input.SourceID)
	if err != nil {
		return errorResult(err), nil
	}
	placements, err := db.PlacementsBySource(h.db, input.SourceID)
	if err != nil {
		return errorResult(err), nil
	}
	if len(placements) == 0 {
		return errorResult(errors.NewNotFound(input.SourceID)), nil
	}

	runID, _, err := db.LatestRun(h.db, input.SourceID)
	if err != nil {
		return errorResult(err), nil
	}

	updated := h.planner.ReoptimizePersisted(ctx, cards, placements)

	moved := 0
	for i := range updated {
		if updated[i].VirtualPath != placements[i].VirtualPath {
			moved++
		}
	}

	if err := db.SavePlacements(h.db, input.SourceID, runID, updated); err != nil {
		return errorResult(err), nil
	}

	return successResult(ReoptimizeResult{
		SourceID:       input.SourceID,
		PlacementCount: len(updated),
		MovedCount:     moved,
	})
}

// buildTree loads a source's placements and cards and materializes the tree.
func (h *Handlers) buildTree(sourceID string) (*vtree.Node, error) {
	placements, err := db.PlacementsBySource(h.db, sourceID)
	if err != nil {
		return nil, err
	}
	if len(placements) == 0 {
		return nil, errors.NewNotFound(sourceID)
	}

	cards, err := db.FileCardsBySource(h.db, sourceID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]card.FileCard, len(cards))
	for _, c := range cards {
		byID[c.FileID] = c
	}

	root, _ := vtree.Build(placements, byID)
	return root, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if arbErr, ok := err.(*errors.ArborError); ok {
		errorObj := map[string]any{
			"code":    arbErr.Code,
			"message": arbErr.Message,
			"status":  arbErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if arbErr.Code != errors.ErrInternal && arbErr.Details != nil {
			errorObj["details"] = arbErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
