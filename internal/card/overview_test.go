package card

import (
	"testing"
)

func strPtr(s string) *string { return &s }

func makeCards() []FileCard {
	return []FileCard{
		{FileID: "f1", RelativePath: "Finance/Invoices/a.pdf", Name: "a.pdf", Extension: "pdf", MTime: 1717200000, Tags: []string{"invoice", "2024"}},
		{FileID: "f2", RelativePath: "Finance/Invoices/b.pdf", Name: "b.pdf", Extension: "pdf", MTime: 1717200000, Tags: []string{"invoice", "2024"}},
		{FileID: "f3", RelativePath: "Photos/trip/c.jpg", Name: "c.jpg", Extension: "jpg", MTime: 1500000000, Tags: []string{"photo"}},
		{FileID: "f4", RelativePath: "d.txt", Name: "d.txt", Extension: "txt", Tags: nil, Summary: strPtr("notes")},
	}
}

func TestBuildOverview_Aggregates(t *testing.T) {
	o := BuildOverview(makeCards(), 10, 2)

	if o.FileCount != 4 {
		t.Errorf("FileCount = %d, want 4", o.FileCount)
	}
	if o.ByExtension["pdf"] != 2 {
		t.Errorf("ByExtension[pdf] = %d, want 2", o.ByExtension["pdf"])
	}
	if o.ByYear[2024] != 2 {
		t.Errorf("ByYear[2024] = %d, want 2", o.ByYear[2024])
	}
	if o.ByYear[2017] != 1 {
		t.Errorf("ByYear[2017] = %d, want 1", o.ByYear[2017])
	}
}

func TestBuildOverview_TopTagsOrdering(t *testing.T) {
	o := BuildOverview(makeCards(), 10, 0)

	if len(o.TopTags) == 0 {
		t.Fatal("TopTags should not be empty")
	}
	// "invoice" and "2024" both have count 2; ties break alphabetically.
	if o.TopTags[0].Tag != "2024" || o.TopTags[0].Count != 2 {
		t.Errorf("TopTags[0] = %+v, want {2024 2}", o.TopTags[0])
	}
	if o.TopTags[1].Tag != "invoice" {
		t.Errorf("TopTags[1] = %+v, want invoice", o.TopTags[1])
	}
}

func TestBuildOverview_TopTagsLimit(t *testing.T) {
	o := BuildOverview(makeCards(), 1, 0)
	if len(o.TopTags) != 1 {
		t.Errorf("TopTags length = %d, want 1", len(o.TopTags))
	}
}

func TestBuildOverview_PathPatterns(t *testing.T) {
	o := BuildOverview(makeCards(), 10, 0)

	found := map[string]int{}
	for _, p := range o.TopPathPatterns {
		found[p.Pattern] = p.Count
	}
	if found["Finance/Invoices"] != 2 {
		t.Errorf("pattern Finance/Invoices count = %d, want 2", found["Finance/Invoices"])
	}
	if found["Photos/trip"] != 1 {
		t.Errorf("pattern Photos/trip count = %d, want 1", found["Photos/trip"])
	}
	// Root-level files contribute no pattern.
	if _, ok := found["d.txt"]; ok {
		t.Error("root-level file should not produce a path pattern")
	}
}

func TestBuildOverview_SamplesDedupedAcrossTags(t *testing.T) {
	o := BuildOverview(makeCards(), 10, 2)

	seen := map[string]int{}
	for _, s := range o.SampledCards {
		seen[s.FileID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("card %s sampled %d times, want at most once", id, n)
		}
	}
	// f1 and f2 carry both top tags; dedupe means they appear once total.
	if seen["f1"] != 1 || seen["f2"] != 1 {
		t.Errorf("expected f1 and f2 sampled once each, got %v", seen)
	}
}

func TestBuildOverview_Deterministic(t *testing.T) {
	a := BuildOverview(makeCards(), 5, 2)
	b := BuildOverview(makeCards(), 5, 2)

	if len(a.TopTags) != len(b.TopTags) {
		t.Fatal("overview not deterministic: tag list lengths differ")
	}
	for i := range a.TopTags {
		if a.TopTags[i] != b.TopTags[i] {
			t.Errorf("TopTags[%d] differs between runs: %+v vs %+v", i, a.TopTags[i], b.TopTags[i])
		}
	}
	for i := range a.SampledCards {
		if a.SampledCards[i].FileID != b.SampledCards[i].FileID {
			t.Errorf("SampledCards[%d] differs between runs", i)
		}
	}
}
