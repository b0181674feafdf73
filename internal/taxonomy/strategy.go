package taxonomy

// Mode selects between one-shot and multi-level plan generation.
type Mode string

const (
	ModeSingle       Mode = "single"
	ModeHierarchical Mode = "hierarchical"
)

// Strategy fixes, for one planning run, how deep the hierarchy may go and how
// much signal goes into each plan-generation prompt. Derived once from the
// total file count and immutable for the run's duration.
type Strategy struct {
	Mode                  Mode `json:"mode"`
	MaxDepth              int  `json:"max_depth"`
	TopLevelFolderCount   int  `json:"top_level_folder_count"`
	MinFilesForSubLevel   int  `json:"min_files_for_sub_level"`
	MinFilesForThirdLevel int  `json:"min_files_for_third_level"`
	MaxTags               int  `json:"max_tags"`
	SamplesPerTag         int  `json:"samples_per_tag"`
}

// Collection size breakpoints.
const (
	hierarchicalMinFiles = 600
	depth3MinFiles       = 1800
	richSamplingMinFiles = 4000
)

// SelectStrategy maps a collection size to a generation strategy.
// MaxTags and SamplesPerTag scale with size to keep external prompts
// proportionally informative without being unbounded.
func SelectStrategy(fileCount int) Strategy {
	switch {
	case fileCount < hierarchicalMinFiles:
		return Strategy{
			Mode:                ModeSingle,
			MaxDepth:            1,
			TopLevelFolderCount: 8,
			MaxTags:             20,
			SamplesPerTag:       3,
		}
	case fileCount < depth3MinFiles:
		return Strategy{
			Mode:                ModeHierarchical,
			MaxDepth:            2,
			TopLevelFolderCount: 6,
			MinFilesForSubLevel: 25,
			MaxTags:             30,
			SamplesPerTag:       4,
		}
	case fileCount < richSamplingMinFiles:
		return Strategy{
			Mode:                  ModeHierarchical,
			MaxDepth:              3,
			TopLevelFolderCount:   8,
			MinFilesForSubLevel:   20,
			MinFilesForThirdLevel: 80,
			MaxTags:               40,
			SamplesPerTag:         5,
		}
	default:
		return Strategy{
			Mode:                  ModeHierarchical,
			MaxDepth:              3,
			TopLevelFolderCount:   12,
			MinFilesForSubLevel:   15,
			MinFilesForThirdLevel: 60,
			MaxTags:               60,
			SamplesPerTag:         6,
		}
	}
}
