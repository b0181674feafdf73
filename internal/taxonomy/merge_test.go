package taxonomy

import "testing"

func parentPlan() Plan {
	return Plan{
		Folders: []VirtualFolderSpec{
			{ID: "work", Path: "/Work"},
			{ID: "photos", Path: "/Photos"},
		},
		Rules: []PlacementRule{
			{ID: "work-rule", TargetFolderID: "work", RequiredTags: []string{"work"}, Priority: 50},
			{ID: "photo-rule", TargetFolderID: "photos", ExtensionIn: []string{"jpg"}, Priority: 50},
		},
	}
}

func TestMergeSubPlan_NamespacesIDs(t *testing.T) {
	sub := Plan{
		Folders: []VirtualFolderSpec{
			{ID: "invoices", Path: "/Work/Invoices"},
			{ID: "other", Path: "/Work/Other"},
		},
		Rules: []PlacementRule{
			{ID: "inv", TargetFolderID: "invoices", RequiredTags: []string{"invoice"}, Priority: 60},
			{ID: "rest", TargetFolderID: "other", Priority: 0},
		},
	}

	merged := MergeSubPlan(parentPlan(), "work", sub)

	if f := merged.FolderByID("work--invoices"); f == nil || f.Path != "/Work/Invoices" {
		t.Fatalf("namespaced sub-folder missing or wrong: %+v", f)
	}
	var invRule *PlacementRule
	for i := range merged.Rules {
		if merged.Rules[i].ID == "work--inv" {
			invRule = &merged.Rules[i]
		}
	}
	if invRule == nil {
		t.Fatal("namespaced sub-rule missing")
	}
	if invRule.TargetFolderID != "work--invoices" {
		t.Errorf("sub-rule target = %q, want %q", invRule.TargetFolderID, "work--invoices")
	}
}

func TestMergeSubPlan_RemovesParentCatchAll(t *testing.T) {
	sub := Plan{
		Folders: []VirtualFolderSpec{{ID: "all", Path: "/Work/All"}},
		Rules:   []PlacementRule{{ID: "all", TargetFolderID: "all"}},
	}

	merged := MergeSubPlan(parentPlan(), "work", sub)

	for _, r := range merged.Rules {
		if r.TargetFolderID == "work" {
			t.Errorf("parent rule targeting the subdivided folder should be removed: %+v", r)
		}
	}
	// The unrelated sibling rule survives.
	found := false
	for _, r := range merged.Rules {
		if r.ID == "photo-rule" {
			found = true
		}
	}
	if !found {
		t.Error("sibling rule should be untouched")
	}
	// The parent folder itself stays browsable.
	if merged.FolderByID("work") == nil {
		t.Error("subdivided parent folder should remain in the plan")
	}
}

// Branches routinely reuse ids like "all" or "other"; after merging N
// sub-plans every folder id must still be unique.
func TestMergeSubPlan_UniqueIDsAcrossBranches(t *testing.T) {
	generic := Plan{
		Folders: []VirtualFolderSpec{{ID: "other", Path: "/x/Other"}},
		Rules:   []PlacementRule{{ID: "catch", TargetFolderID: "other"}},
	}

	merged := parentPlan()
	merged = MergeSubPlan(merged, "work", generic)
	merged = MergeSubPlan(merged, "photos", generic)

	seen := map[string]bool{}
	for _, f := range merged.Folders {
		if seen[f.ID] {
			t.Errorf("duplicate folder id after merge: %q", f.ID)
		}
		seen[f.ID] = true
	}

	seenRules := map[string]bool{}
	for _, r := range merged.Rules {
		if seenRules[r.ID] {
			t.Errorf("duplicate rule id after merge: %q", r.ID)
		}
		seenRules[r.ID] = true
	}
}

func TestMergeSubPlan_DoesNotMutateInputs(t *testing.T) {
	parent := parentPlan()
	sub := Plan{
		Folders: []VirtualFolderSpec{{ID: "a", Path: "/Work/A"}},
		Rules:   []PlacementRule{{ID: "ra", TargetFolderID: "a"}},
	}

	_ = MergeSubPlan(parent, "work", sub)

	if sub.Folders[0].ID != "a" || sub.Rules[0].ID != "ra" {
		t.Error("sub-plan was mutated by merge")
	}
	if len(parent.Rules) != 2 {
		t.Error("parent plan was mutated by merge")
	}
}

func TestLeafFolders(t *testing.T) {
	plan := Plan{
		Folders: []VirtualFolderSpec{
			{ID: "work", Path: "/Work"},
			{ID: "inv", Path: "/Work/Invoices"},
			{ID: "photos", Path: "/Photos"},
		},
	}

	leaves := LeafFolders(plan)

	ids := map[string]bool{}
	for _, f := range leaves {
		ids[f.ID] = true
	}
	if ids["work"] {
		t.Error("/Work has a nested folder and is not a leaf")
	}
	if !ids["inv"] || !ids["photos"] {
		t.Errorf("expected inv and photos as leaves, got %v", ids)
	}
}
