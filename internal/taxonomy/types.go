package taxonomy

// VirtualFolderSpec describes one virtual folder in a plan. Paths are
// absolute virtual paths ("/Work/Invoices"), never real filesystem locations.
type VirtualFolderSpec struct {
	// ID is stable and unique within a plan (post-repair invariant)
	ID string `json:"id"`

	// Path starts with "/" and carries no trailing slash
	Path string `json:"path"`

	// Description is a short human-readable purpose statement
	Description string `json:"description,omitempty"`
}

// PlacementRule is a deterministic predicate routing matching cards to a
// target folder. All condition lists are optional; an absent condition group
// means "don't care", not "match nothing".
type PlacementRule struct {
	ID             string `json:"id"`
	TargetFolderID string `json:"target_folder_id"`

	// RequiredTags must all be present on the card
	RequiredTags []string `json:"required_tags,omitempty"`

	// ForbiddenTags must all be absent
	ForbiddenTags []string `json:"forbidden_tags,omitempty"`

	// PathContains matches when any substring occurs in the card's path
	PathContains []string `json:"path_contains,omitempty"`

	// ExtensionIn matches when the card's extension is a member
	ExtensionIn []string `json:"extension_in,omitempty"`

	// SummaryContainsAny matches when any keyword occurs in the summary
	SummaryContainsAny []string `json:"summary_contains_any,omitempty"`

	// Priority breaks competition between matching rules (higher wins)
	Priority int `json:"priority"`

	// ReasonTemplate is the human-readable justification for placements
	ReasonTemplate string `json:"reason_template,omitempty"`
}

// Plan is the pair of virtual folders and placement rules covering a
// collection. Sub-plans generated for a branch are merged into a parent plan
// by namespacing ids; folder paths are always already absolute.
type Plan struct {
	Folders []VirtualFolderSpec `json:"folders"`
	Rules   []PlacementRule     `json:"rules"`
}

// FolderByID returns the folder with the given id, or nil.
func (p *Plan) FolderByID(id string) *VirtualFolderSpec {
	for i := range p.Folders {
		if p.Folders[i].ID == id {
			return &p.Folders[i]
		}
	}
	return nil
}

// Clone returns a deep copy. Plans under construction are mutated by a single
// owner between phases; clones keep completed sub-results immutable.
func (p *Plan) Clone() Plan {
	out := Plan{
		Folders: make([]VirtualFolderSpec, len(p.Folders)),
		Rules:   make([]PlacementRule, len(p.Rules)),
	}
	copy(out.Folders, p.Folders)
	for i, r := range p.Rules {
		out.Rules[i] = r
		out.Rules[i].RequiredTags = cloneStrings(r.RequiredTags)
		out.Rules[i].ForbiddenTags = cloneStrings(r.ForbiddenTags)
		out.Rules[i].PathContains = cloneStrings(r.PathContains)
		out.Rules[i].ExtensionIn = cloneStrings(r.ExtensionIn)
		out.Rules[i].SummaryContainsAny = cloneStrings(r.SummaryContainsAny)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
