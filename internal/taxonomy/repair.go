package taxonomy

import (
	"fmt"
	"strings"
)

// Fallback folder identity used when a dangling rule target cannot be
// resolved against any existing folder.
const (
	FallbackFolderID   = "other"
	FallbackFolderPath = "/Other"
	FallbackRuleID     = "other-catchall"
)

// Repair normalizes a plan so downstream placement cannot be corrupted by a
// malformed folder path or a dangling rule reference. It returns the repaired
// plan and a warning per change made. Repair is idempotent: running it on an
// already-repaired plan yields no further changes.
func Repair(plan Plan) (Plan, []string) {
	out := plan.Clone()
	var warnings []string

	// Folder path normalization.
	for i := range out.Folders {
		f := &out.Folders[i]
		normalized := NormalizeFolderPath(f.Path)
		if normalized != f.Path {
			warnings = append(warnings, fmt.Sprintf("folder %q: path %q normalized to %q", f.ID, f.Path, normalized))
			f.Path = normalized
		}
	}

	// Duplicate folder ids would make rule targets ambiguous; keep the first.
	seen := make(map[string]bool, len(out.Folders))
	folders := out.Folders[:0]
	for _, f := range out.Folders {
		if seen[f.ID] {
			warnings = append(warnings, fmt.Sprintf("folder id %q duplicated; dropping later definition (path %q)", f.ID, f.Path))
			continue
		}
		seen[f.ID] = true
		folders = append(folders, f)
	}
	out.Folders = folders

	// Rule target resolution: exact id, then case-insensitive, then fallback.
	// Indexed assignment throughout: ensureFallbackFolder may append to
	// out.Rules, invalidating element pointers.
	for i := 0; i < len(out.Rules); i++ {
		ruleID := out.Rules[i].ID
		target := out.Rules[i].TargetFolderID
		if out.FolderByID(target) != nil {
			continue
		}

		if id, ok := resolveCaseInsensitive(&out, target); ok {
			warnings = append(warnings, fmt.Sprintf("rule %q: target %q resolved case-insensitively to %q", ruleID, target, id))
			out.Rules[i].TargetFolderID = id
			continue
		}

		fallbackID := ensureFallbackFolder(&out, &warnings)
		warnings = append(warnings, fmt.Sprintf("rule %q: target %q does not exist; reassigned to %q", ruleID, target, fallbackID))
		out.Rules[i].TargetFolderID = fallbackID
	}

	return out, warnings
}

// NormalizeFolderPath canonicalizes a virtual folder path: trimmed, forward
// slashes, single leading slash, no trailing slash. An empty result becomes
// the fallback path.
func NormalizeFolderPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return FallbackFolderPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func resolveCaseInsensitive(plan *Plan, target string) (string, bool) {
	lower := strings.ToLower(target)
	for i := range plan.Folders {
		if strings.ToLower(plan.Folders[i].ID) == lower {
			return plan.Folders[i].ID, true
		}
	}
	return "", false
}

// ensureFallbackFolder returns the id of the folder dangling rules should be
// reassigned to: an existing folder whose path is or ends with /Other, else
// the first folder, else a synthesized /Other folder with a catch-all rule.
func ensureFallbackFolder(plan *Plan, warnings *[]string) string {
	for i := range plan.Folders {
		p := plan.Folders[i].Path
		if p == FallbackFolderPath || strings.HasSuffix(p, FallbackFolderPath) {
			return plan.Folders[i].ID
		}
	}
	if len(plan.Folders) > 0 {
		return plan.Folders[0].ID
	}

	*warnings = append(*warnings, fmt.Sprintf("plan has no folders; synthesizing %s", FallbackFolderPath))
	plan.Folders = append(plan.Folders, VirtualFolderSpec{
		ID:          FallbackFolderID,
		Path:        FallbackFolderPath,
		Description: "Files that did not fit any other folder",
	})
	plan.Rules = append(plan.Rules, PlacementRule{
		ID:             FallbackRuleID,
		TargetFolderID: FallbackFolderID,
		Priority:       0,
		ReasonTemplate: "Unclassified file",
	})
	return FallbackFolderID
}
