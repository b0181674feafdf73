package db

import (
	"database/sql"
	"reflect"
	"testing"

	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/errors"
	"github.com/dkowalski/arbor/internal/taxonomy"
)

// setupTestDB creates an isolated database for a test.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// stringPtr returns a pointer to the given string.
func stringPtr(s string) *string {
	return &s
}

func testCards() []card.FileCard {
	return []card.FileCard{
		{
			SourceID:     "src-1",
			FileID:       "f1",
			Path:         "/data/docs/report.pdf",
			RelativePath: "docs/report.pdf",
			Name:         "report.pdf",
			Extension:    "pdf",
			Size:         1024,
			MTime:        1700000000,
			Summary:      stringPtr("Quarterly report"),
			Tags:         []string{"report", "work"},
		},
		{
			SourceID:     "src-1",
			FileID:       "f2",
			Path:         "/data/photos/beach.jpg",
			RelativePath: "photos/beach.jpg",
			Name:         "beach.jpg",
			Extension:    "jpg",
			Size:         204800,
			MTime:        1710000000,
		},
	}
}

func TestUpsertFileCards_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	if err := UpsertFileCards(db, testCards()); err != nil {
		t.Fatalf("UpsertFileCards() error = %v", err)
	}

	cards, err := FileCardsBySource(db, "src-1")
	if err != nil {
		t.Fatalf("FileCardsBySource() error = %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("got %d cards, want 2", len(cards))
	}

	// Ordered by relative path: docs/ before photos/
	if cards[0].FileID != "f1" || cards[1].FileID != "f2" {
		t.Errorf("order = [%s %s], want [f1 f2]", cards[0].FileID, cards[1].FileID)
	}
	if cards[0].Summary == nil || *cards[0].Summary != "Quarterly report" {
		t.Errorf("Summary = %v, want round-tripped", cards[0].Summary)
	}
	if !reflect.DeepEqual(cards[0].Tags, []string{"report", "work"}) {
		t.Errorf("Tags = %v, want [report work]", cards[0].Tags)
	}
	if cards[1].Summary != nil || cards[1].Tags != nil {
		t.Errorf("empty summary/tags should round-trip as nil, got %+v", cards[1])
	}
}

func TestUpsertFileCards_ReplacesExisting(t *testing.T) {
	db := setupTestDB(t)

	cards := testCards()
	if err := UpsertFileCards(db, cards); err != nil {
		t.Fatalf("first upsert error = %v", err)
	}

	// Re-ingest with changed metadata for f1
	cards[0].Size = 2048
	cards[0].Summary = stringPtr("Updated report")
	if err := UpsertFileCards(db, cards[:1]); err != nil {
		t.Fatalf("second upsert error = %v", err)
	}

	got, err := FileCardsBySource(db, "src-1")
	if err != nil {
		t.Fatalf("FileCardsBySource() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d cards after re-upsert, want 2 (no duplicates)", len(got))
	}
	if got[0].Size != 2048 || *got[0].Summary != "Updated report" {
		t.Errorf("f1 not replaced: %+v", got[0])
	}
}

func TestUpsertFileCards_Empty(t *testing.T) {
	db := setupTestDB(t)
	if err := UpsertFileCards(db, nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestCountFileCards(t *testing.T) {
	db := setupTestDB(t)

	if err := UpsertFileCards(db, testCards()); err != nil {
		t.Fatalf("UpsertFileCards() error = %v", err)
	}

	count, err := CountFileCards(db, "src-1")
	if err != nil {
		t.Fatalf("CountFileCards() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	count, err = CountFileCards(db, "missing")
	if err != nil || count != 0 {
		t.Errorf("count for unknown source = %d, %v; want 0, nil", count, err)
	}
}

func TestSavePlacements_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	placements := []taxonomy.Placement{
		{FileID: "f1", VirtualPath: "/Work/report.pdf", Tags: []string{"work"}, Confidence: 0.9, Reason: "Document"},
		{FileID: "f2", VirtualPath: "/Photos/beach.jpg", Confidence: 0.7, Reason: "Photo"},
	}
	if err := SavePlacements(db, "src-1", "run-1", placements); err != nil {
		t.Fatalf("SavePlacements() error = %v", err)
	}

	got, err := PlacementsBySource(db, "src-1")
	if err != nil {
		t.Fatalf("PlacementsBySource() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d placements, want 2", len(got))
	}

	// Ordered by virtual path: /Photos before /Work
	if got[0].FileID != "f2" || got[1].FileID != "f1" {
		t.Errorf("order = [%s %s], want [f2 f1]", got[0].FileID, got[1].FileID)
	}
	if got[1].Confidence != 0.9 || got[1].Reason != "Document" {
		t.Errorf("placement fields lost: %+v", got[1])
	}
	if !reflect.DeepEqual(got[1].Tags, []string{"work"}) {
		t.Errorf("Tags = %v, want [work]", got[1].Tags)
	}
}

func TestSavePlacements_NewRunSupersedes(t *testing.T) {
	db := setupTestDB(t)

	first := []taxonomy.Placement{
		{FileID: "f1", VirtualPath: "/Other/report.pdf", Confidence: 0.3, Reason: "No rule"},
	}
	if err := SavePlacements(db, "src-1", "run-1", first); err != nil {
		t.Fatalf("first save error = %v", err)
	}

	second := []taxonomy.Placement{
		{FileID: "f1", VirtualPath: "/Work/report.pdf", Confidence: 0.85, Reason: "Document"},
	}
	if err := SavePlacements(db, "src-1", "run-2", second); err != nil {
		t.Fatalf("second save error = %v", err)
	}

	got, err := PlacementsBySource(db, "src-1")
	if err != nil {
		t.Fatalf("PlacementsBySource() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d placements, want 1 (replaced, not duplicated)", len(got))
	}
	if got[0].VirtualPath != "/Work/report.pdf" || got[0].Confidence != 0.85 {
		t.Errorf("placement not superseded: %+v", got[0])
	}
}

func TestTopLevelCounts(t *testing.T) {
	db := setupTestDB(t)

	placements := []taxonomy.Placement{
		{FileID: "f1", VirtualPath: "/Work/Invoices/a.pdf", Confidence: 0.9, Reason: "r"},
		{FileID: "f2", VirtualPath: "/Work/b.txt", Confidence: 0.8, Reason: "r"},
		{FileID: "f3", VirtualPath: "/Photos/c.jpg", Confidence: 0.7, Reason: "r"},
	}
	if err := SavePlacements(db, "src-1", "run-1", placements); err != nil {
		t.Fatalf("SavePlacements() error = %v", err)
	}

	counts, total, err := TopLevelCounts(db, "src-1")
	if err != nil {
		t.Fatalf("TopLevelCounts() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	want := map[string]int{"Work": 2, "Photos": 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("counts = %v, want %v", counts, want)
	}
}

func TestSaveRun_LatestRun(t *testing.T) {
	db := setupTestDB(t)

	plan1 := taxonomy.Plan{Folders: []taxonomy.VirtualFolderSpec{{ID: "a", Path: "/A"}}}
	plan2 := taxonomy.Plan{Folders: []taxonomy.VirtualFolderSpec{{ID: "b", Path: "/B"}}}
	strat := taxonomy.SelectStrategy(10)

	if err := SaveRun(db, "run-1", "src-1", strat, plan1, 10); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := SaveRun(db, "run-2", "src-1", strat, plan2, 10); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	runID, plan, err := LatestRun(db, "src-1")
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if runID != "run-2" {
		t.Errorf("runID = %s, want run-2", runID)
	}
	if len(plan.Folders) != 1 || plan.Folders[0].ID != "b" {
		t.Errorf("plan = %+v, want run-2's plan", plan)
	}
}

func TestLatestRun_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, _, err := LatestRun(db, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestFileCardsBySource_Isolation(t *testing.T) {
	db := setupTestDB(t)

	cards := testCards()
	other := card.FileCard{
		SourceID: "src-2", FileID: "g1", Path: "/x/y.txt",
		RelativePath: "y.txt", Name: "y.txt", Extension: "txt",
	}
	if err := UpsertFileCards(db, append(cards, other)); err != nil {
		t.Fatalf("UpsertFileCards() error = %v", err)
	}

	got, err := FileCardsBySource(db, "src-2")
	if err != nil {
		t.Fatalf("FileCardsBySource() error = %v", err)
	}
	if len(got) != 1 || got[0].FileID != "g1" {
		t.Errorf("src-2 cards = %+v, want only g1", got)
	}
}
