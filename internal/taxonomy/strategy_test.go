package taxonomy

import "testing"

func TestSelectStrategy_Breakpoints(t *testing.T) {
	tests := []struct {
		name      string
		fileCount int
		wantMode  Mode
		wantDepth int
	}{
		{"tiny collection", 10, ModeSingle, 1},
		{"just below hierarchical", 599, ModeSingle, 1},
		{"hierarchical depth 2 lower bound", 600, ModeHierarchical, 2},
		{"hierarchical depth 2 upper bound", 1799, ModeHierarchical, 2},
		{"depth 3 lower bound", 1800, ModeHierarchical, 3},
		{"depth 3 upper bound", 3999, ModeHierarchical, 3},
		{"rich sampling", 4000, ModeHierarchical, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SelectStrategy(tt.fileCount)
			if s.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", s.Mode, tt.wantMode)
			}
			if s.MaxDepth != tt.wantDepth {
				t.Errorf("MaxDepth = %d, want %d", s.MaxDepth, tt.wantDepth)
			}
		})
	}
}

func TestSelectStrategy_LargeCollection(t *testing.T) {
	s := SelectStrategy(5500)

	if s.Mode != ModeHierarchical {
		t.Errorf("Mode = %q, want hierarchical", s.Mode)
	}
	if s.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", s.MaxDepth)
	}
	if s.TopLevelFolderCount != 12 {
		t.Errorf("TopLevelFolderCount = %d, want 12", s.TopLevelFolderCount)
	}
	if s.MinFilesForSubLevel != 15 {
		t.Errorf("MinFilesForSubLevel = %d, want 15", s.MinFilesForSubLevel)
	}
	if s.MinFilesForThirdLevel != 60 {
		t.Errorf("MinFilesForThirdLevel = %d, want 60", s.MinFilesForThirdLevel)
	}
}

func TestSelectStrategy_SamplingScalesUp(t *testing.T) {
	small := SelectStrategy(100)
	mid := SelectStrategy(1000)
	large := SelectStrategy(10000)

	if !(small.MaxTags < mid.MaxTags && mid.MaxTags < large.MaxTags) {
		t.Errorf("MaxTags should scale with size: %d, %d, %d", small.MaxTags, mid.MaxTags, large.MaxTags)
	}
	if !(small.SamplesPerTag <= mid.SamplesPerTag && mid.SamplesPerTag <= large.SamplesPerTag) {
		t.Errorf("SamplesPerTag should scale with size: %d, %d, %d", small.SamplesPerTag, mid.SamplesPerTag, large.SamplesPerTag)
	}
}
