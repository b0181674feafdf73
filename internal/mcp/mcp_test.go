package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/config"
	"github.com/dkowalski/arbor/internal/db"
	"github.com/dkowalski/arbor/internal/errors"
	"github.com/dkowalski/arbor/internal/taxonomy"
	"github.com/dkowalski/arbor/internal/vtree"
)

// testSetup creates a temporary database and offline handlers.
func testSetup(t *testing.T) (*sql.DB, *Handlers) {
	t.Helper()

	// Without credentials every agent call degrades to the deterministic
	// fallback, so handler tests never touch the network.
	t.Setenv("ANTHROPIC_API_KEY", "")

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	return database, NewHandlers(database, cfg)
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultText extracts the JSON text payload from a tool result.
func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func decodeResult[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	var out T
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return out
}

// seedSource ingests two file cards for a source.
func seedSource(t *testing.T, database *sql.DB, sourceID string) {
	t.Helper()
	cards := []card.FileCard{
		{
			SourceID: sourceID, FileID: "f1", Path: "/data/docs/report.pdf",
			RelativePath: "docs/report.pdf", Name: "report.pdf", Extension: "pdf",
			Size: 1024, MTime: 1700000000, Tags: []string{"work"},
		},
		{
			SourceID: sourceID, FileID: "f2", Path: "/data/photos/beach.jpg",
			RelativePath: "photos/beach.jpg", Name: "beach.jpg", Extension: "jpg",
			Size: 2048, MTime: 1710000000, Tags: []string{"photo"},
		},
	}
	if err := db.UpsertFileCards(database, cards); err != nil {
		t.Fatalf("seed cards: %v", err)
	}
}

// seedPlacements persists a placement set with a matching run record.
func seedPlacements(t *testing.T, database *sql.DB, sourceID string) {
	t.Helper()
	placements := []taxonomy.Placement{
		{FileID: "f1", VirtualPath: "/Work/report.pdf", Confidence: 0.9, Reason: "Document"},
		{FileID: "f2", VirtualPath: "/Photos/beach.jpg", Confidence: 0.7, Reason: "Photo"},
	}
	if err := db.SavePlacements(database, sourceID, "run-1", placements); err != nil {
		t.Fatalf("seed placements: %v", err)
	}
	plan := taxonomy.Plan{Folders: []taxonomy.VirtualFolderSpec{
		{ID: "work", Path: "/Work"},
		{ID: "photos", Path: "/Photos"},
	}}
	if err := db.SaveRun(database, "run-1", sourceID, taxonomy.SelectStrategy(2), plan, 2); err != nil {
		t.Fatalf("seed run: %v", err)
	}
}

func TestHandlePlanRun(t *testing.T) {
	database, h := testSetup(t)
	seedSource(t, database, "src-1")

	res, err := h.HandlePlanRun(context.Background(), makeRequest(map[string]any{"source_id": "src-1"}))
	if err != nil {
		t.Fatalf("HandlePlanRun() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}

	out := decodeResult[PlanRunResult](t, res)
	if out.RunID == "" {
		t.Error("run_id should not be empty")
	}
	if out.PlacementCount != 2 {
		t.Errorf("placement_count = %d, want 2", out.PlacementCount)
	}
	if out.FolderCount == 0 {
		t.Error("folder_count should not be zero")
	}

	// Placements must be persisted
	placements, err := db.PlacementsBySource(database, "src-1")
	if err != nil {
		t.Fatalf("PlacementsBySource() error = %v", err)
	}
	if len(placements) != 2 {
		t.Errorf("persisted placements = %d, want 2", len(placements))
	}

	// And the run recorded
	runID, _, err := db.LatestRun(database, "src-1")
	if err != nil || runID != out.RunID {
		t.Errorf("LatestRun = %q, %v; want %q", runID, err, out.RunID)
	}
}

func TestHandlePlanRun_MissingSourceID(t *testing.T) {
	_, h := testSetup(t)

	res, err := h.HandlePlanRun(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("HandlePlanRun() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, res), string(errors.ErrInvalidRequest)) {
		t.Errorf("error = %s, want %s", resultText(t, res), errors.ErrInvalidRequest)
	}
}

func TestHandlePlanRun_EmptySource(t *testing.T) {
	_, h := testSetup(t)

	res, err := h.HandlePlanRun(context.Background(), makeRequest(map[string]any{"source_id": "nothing-here"}))
	if err != nil {
		t.Fatalf("HandlePlanRun() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for a source with no cards")
	}
	if !strings.Contains(resultText(t, res), string(errors.ErrEmptyCollection)) {
		t.Errorf("error = %s, want %s", resultText(t, res), errors.ErrEmptyCollection)
	}
}

func TestHandleTreeGet(t *testing.T) {
	database, h := testSetup(t)
	seedSource(t, database, "src-1")
	seedPlacements(t, database, "src-1")

	res, err := h.HandleTreeGet(context.Background(), makeRequest(map[string]any{"source_id": "src-1"}))
	if err != nil {
		t.Fatalf("HandleTreeGet() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}

	root := decodeResult[vtree.Node](t, res)
	if root.FileCount != 2 {
		t.Errorf("root file_count = %d, want 2", root.FileCount)
	}
	if len(root.Children) != 2 {
		t.Errorf("root children = %d, want 2 (Photos, Work)", len(root.Children))
	}
}

func TestHandleTreeGet_TopLevelOnly(t *testing.T) {
	database, h := testSetup(t)
	seedSource(t, database, "src-1")
	seedPlacements(t, database, "src-1")

	res, err := h.HandleTreeGet(context.Background(), makeRequest(map[string]any{
		"source_id":      "src-1",
		"top_level_only": true,
	}))
	if err != nil {
		t.Fatalf("HandleTreeGet() error = %v", err)
	}

	root := decodeResult[vtree.Node](t, res)
	if root.FileCount != 2 || len(root.Children) != 2 {
		t.Errorf("top-level tree = %+v, want 2 folders / 2 files", root)
	}
	for _, c := range root.Children {
		if !c.IsDir || len(c.Children) != 0 {
			t.Errorf("top-level child %s should be an unexpanded directory", c.Name)
		}
	}
}

func TestHandleTreeGet_UnknownSource(t *testing.T) {
	_, h := testSetup(t)

	res, err := h.HandleTreeGet(context.Background(), makeRequest(map[string]any{"source_id": "ghost"}))
	if err != nil {
		t.Fatalf("HandleTreeGet() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), string(errors.ErrNotFound)) {
		t.Errorf("result = %s, want NOT_FOUND", resultText(t, res))
	}
}

func TestHandleNodeChildren(t *testing.T) {
	database, h := testSetup(t)
	seedSource(t, database, "src-1")
	seedPlacements(t, database, "src-1")

	res, err := h.HandleNodeChildren(context.Background(), makeRequest(map[string]any{
		"source_id": "src-1",
		"path":      "/Work",
	}))
	if err != nil {
		t.Fatalf("HandleNodeChildren() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}

	out := decodeResult[struct {
		Path     string       `json:"path"`
		IsDir    bool         `json:"is_dir"`
		Children []vtree.Node `json:"children"`
	}](t, res)
	if out.Path != "/Work" || !out.IsDir {
		t.Errorf("node = %+v, want /Work directory", out)
	}
	if len(out.Children) != 1 || out.Children[0].Name != "report.pdf" {
		t.Errorf("children = %+v, want [report.pdf]", out.Children)
	}
}

func TestHandleNodeChildren_MissingPath(t *testing.T) {
	database, h := testSetup(t)
	seedSource(t, database, "src-1")
	seedPlacements(t, database, "src-1")

	res, err := h.HandleNodeChildren(context.Background(), makeRequest(map[string]any{
		"source_id": "src-1",
		"path":      "/Nope",
	}))
	if err != nil {
		t.Fatalf("HandleNodeChildren() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), string(errors.ErrNotFound)) {
		t.Errorf("result = %s, want NOT_FOUND", resultText(t, res))
	}
}

func TestHandleTreeStats(t *testing.T) {
	database, h := testSetup(t)
	seedSource(t, database, "src-1")
	seedPlacements(t, database, "src-1")

	res, err := h.HandleTreeStats(context.Background(), makeRequest(map[string]any{"source_id": "src-1"}))
	if err != nil {
		t.Fatalf("HandleTreeStats() error = %v", err)
	}

	stats := decodeResult[vtree.Stats](t, res)
	if stats.TotalFiles != 2 || stats.TotalFolders != 2 {
		t.Errorf("stats = %+v, want 2 files / 2 folders", stats)
	}
	wantAvg := (0.9 + 0.7) / 2
	if diff := stats.AvgConfidence - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg_confidence = %v, want %v", stats.AvgConfidence, wantAvg)
	}
}

func TestHandleReoptimize(t *testing.T) {
	database, h := testSetup(t)
	seedSource(t, database, "src-1")
	seedPlacements(t, database, "src-1")

	res, err := h.HandleReoptimize(context.Background(), makeRequest(map[string]any{"source_id": "src-1"}))
	if err != nil {
		t.Fatalf("HandleReoptimize() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}

	out := decodeResult[ReoptimizeResult](t, res)
	if out.PlacementCount != 2 {
		t.Errorf("placement_count = %d, want 2", out.PlacementCount)
	}
	// Offline optimization echoes placements; nothing moves.
	if out.MovedCount != 0 {
		t.Errorf("moved_count = %d, want 0 offline", out.MovedCount)
	}
}

func TestHandleReoptimize_NoPlacements(t *testing.T) {
	database, h := testSetup(t)
	seedSource(t, database, "src-1")

	res, err := h.HandleReoptimize(context.Background(), makeRequest(map[string]any{"source_id": "src-1"}))
	if err != nil {
		t.Fatalf("HandleReoptimize() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), string(errors.ErrNotFound)) {
		t.Errorf("result = %s, want NOT_FOUND", resultText(t, res))
	}
}

func TestServerRegistration(t *testing.T) {
	database, _ := testSetup(t)

	s := NewServer(database, config.DefaultConfig(), "test")
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	database, _ := testSetup(t)

	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"reoptimize", "tree_stats"}

	s := NewServer(database, cfg, "test")
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		unknown []string
	}{
		{"all known", []string{"plan_run", "tree_get"}, []string{}},
		{"one unknown", []string{"plan_run", "bogus"}, []string{"bogus"}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateDisabledTools(tt.input)
			if len(got) != len(tt.unknown) {
				t.Fatalf("unknown = %v, want %v", got, tt.unknown)
			}
			for i := range got {
				if got[i] != tt.unknown[i] {
					t.Errorf("unknown = %v, want %v", got, tt.unknown)
				}
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != len(toolRegistry) {
		t.Errorf("AllToolNames() = %d names, want %d", len(names), len(toolRegistry))
	}
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate tool name %s", n)
		}
		seen[n] = true
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	err := errors.NewInternal(errors.NewInvalidRequest("secret /etc/path detail"))

	res := errorResult(err)
	if !res.IsError {
		t.Fatal("expected IsError")
	}
	text := resultText(t, res)
	if strings.Contains(text, "secret") {
		t.Errorf("internal error leaked details: %s", text)
	}
	if !strings.Contains(text, "an internal error occurred") {
		t.Errorf("error = %s, want generic internal message", text)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	res := errorResult(errors.NewNotFound("src-42"))

	text := resultText(t, res)
	if !strings.Contains(text, "src-42") {
		t.Errorf("error = %s, want identifier in details", text)
	}
}
