package taxonomy

// Placement is the per-file planning output: a virtual path, a confidence
// score, and a human-readable justification. Exactly one is produced per
// input card; an optimization pass may overwrite it once, after which it is
// final for the run.
type Placement struct {
	FileID      string   `json:"file_id"`
	VirtualPath string   `json:"virtual_path"`
	Tags        []string `json:"tags,omitempty"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason"`
}
