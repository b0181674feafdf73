package taxonomy

import (
	"strings"

	"github.com/dkowalski/arbor/internal/card"
)

// conditionGroupCount is the number of condition kinds a rule can carry,
// used as the specificity denominator.
const conditionGroupCount = 5

// MatchResult reports whether a rule matched a card and how.
//
// MatchQuality is matched/checked condition groups. Groups short-circuit
// all-or-nothing, so the only reachable values are 0.5 (a rule with zero
// conditions matches trivially) and 1.0 (any real match). The field lets
// confidence scoring tell those two cases apart.
type MatchResult struct {
	Matches      bool
	MatchQuality float64
}

// Matches evaluates one rule against one card. Deterministic, side-effect
// free, case-insensitive throughout. Groups are evaluated in a fixed order
// and the first failing group ends evaluation.
func Matches(rule *PlacementRule, c *card.FileCard) MatchResult {
	checked := 0

	if len(rule.RequiredTags) > 0 {
		checked++
		for _, want := range rule.RequiredTags {
			if !c.HasTag(want) {
				return MatchResult{}
			}
		}
	}

	if len(rule.ForbiddenTags) > 0 {
		checked++
		for _, banned := range rule.ForbiddenTags {
			if c.HasTag(banned) {
				return MatchResult{}
			}
		}
	}

	if len(rule.PathContains) > 0 {
		checked++
		path := strings.ToLower(c.MatchPath())
		if !containsAny(path, rule.PathContains) {
			return MatchResult{}
		}
	}

	if len(rule.ExtensionIn) > 0 {
		checked++
		ext := strings.ToLower(c.Extension)
		found := false
		for _, e := range rule.ExtensionIn {
			if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
				found = true
				break
			}
		}
		if !found {
			return MatchResult{}
		}
	}

	if len(rule.SummaryContainsAny) > 0 {
		checked++
		summary := strings.ToLower(c.SummaryText())
		if !containsAny(summary, rule.SummaryContainsAny) {
			return MatchResult{}
		}
	}

	if checked == 0 {
		// Unconditional rule: matches everything, but only trivially.
		return MatchResult{Matches: true, MatchQuality: 0.5}
	}
	return MatchResult{Matches: true, MatchQuality: 1.0}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n = strings.ToLower(strings.TrimSpace(n)); n == "" {
			continue
		} else if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Specificity scores how narrowly a rule is drawn: the fraction of condition
// kinds it uses, capped at 1.
func Specificity(rule *PlacementRule) float64 {
	groups := 0
	if len(rule.RequiredTags) > 0 {
		groups++
	}
	if len(rule.ForbiddenTags) > 0 {
		groups++
	}
	if len(rule.PathContains) > 0 {
		groups++
	}
	if len(rule.ExtensionIn) > 0 {
		groups++
	}
	if len(rule.SummaryContainsAny) > 0 {
		groups++
	}
	s := float64(groups) / conditionGroupCount
	if s > 1 {
		s = 1
	}
	return s
}

// BestMatch is the winning rule for a card plus the match detail that
// produced it.
type BestMatch struct {
	Rule         *PlacementRule
	MatchQuality float64
}

// FindBestRule picks, among all matching rules, the one maximizing
// priority + specificity*10. Ties resolve to the earlier-listed rule, so
// results are stable for a given rule order. Returns nil when nothing matches.
func FindBestRule(rules []PlacementRule, c *card.FileCard) *BestMatch {
	var best *BestMatch
	var bestScore float64

	for i := range rules {
		rule := &rules[i]
		res := Matches(rule, c)
		if !res.Matches {
			continue
		}
		score := float64(rule.Priority) + Specificity(rule)*10
		if best == nil || score > bestScore {
			best = &BestMatch{Rule: rule, MatchQuality: res.MatchQuality}
			bestScore = score
		}
	}
	return best
}

// ComputeRuleMatchCounts precomputes, for every rule, how many cards it
// matches. Used for the coverage penalty in confidence scoring and for
// quality diagnostics.
func ComputeRuleMatchCounts(rules []PlacementRule, cards []card.FileCard) map[string]int {
	counts := make(map[string]int, len(rules))
	for i := range rules {
		counts[rules[i].ID] = 0
	}
	for i := range rules {
		rule := &rules[i]
		for j := range cards {
			if Matches(rule, &cards[j]).Matches {
				counts[rule.ID]++
			}
		}
	}
	return counts
}
