package taxonomy

// NamespaceSeparator joins a parent folder id with a sub-plan id during
// merging. Sub-plans routinely reuse generic ids like "all" or "other";
// prefixing keeps ids globally unique across branches.
const NamespaceSeparator = "--"

// MergeSubPlan folds a completed sub-plan for one branch into its parent
// plan, returning a new plan. Sub-plan folder ids and rule ids/targets are
// namespaced with the parent folder id. The parent's own rules targeting the
// now-subdivided folder are removed and replaced by the namespaced sub-rules;
// the parent folder itself stays so intermediate paths remain browsable.
// Folder paths in the sub-plan are already absolute and need no rewriting.
func MergeSubPlan(parent Plan, parentFolderID string, sub Plan) Plan {
	out := Plan{
		Folders: make([]VirtualFolderSpec, 0, len(parent.Folders)+len(sub.Folders)),
		Rules:   make([]PlacementRule, 0, len(parent.Rules)+len(sub.Rules)),
	}

	out.Folders = append(out.Folders, parent.Folders...)
	for _, f := range sub.Folders {
		f.ID = parentFolderID + NamespaceSeparator + f.ID
		out.Folders = append(out.Folders, f)
	}

	for _, r := range parent.Rules {
		if r.TargetFolderID == parentFolderID {
			continue
		}
		out.Rules = append(out.Rules, r)
	}
	for _, r := range sub.Rules {
		r.ID = parentFolderID + NamespaceSeparator + r.ID
		r.TargetFolderID = parentFolderID + NamespaceSeparator + r.TargetFolderID
		out.Rules = append(out.Rules, r)
	}

	return out
}

// LeafFolders returns the folders that have no other folder path nested
// beneath them. Third-level subdivision only considers leaves.
func LeafFolders(plan Plan) []VirtualFolderSpec {
	leaves := make([]VirtualFolderSpec, 0, len(plan.Folders))
	for i := range plan.Folders {
		isLeaf := true
		prefix := plan.Folders[i].Path + "/"
		for j := range plan.Folders {
			if i == j {
				continue
			}
			if len(plan.Folders[j].Path) > len(prefix) && plan.Folders[j].Path[:len(prefix)] == prefix {
				isLeaf = false
				break
			}
		}
		if isLeaf {
			leaves = append(leaves, plan.Folders[i])
		}
	}
	return leaves
}
