package planner

import (
	"github.com/dkowalski/arbor/internal/taxonomy"
)

// Confidence formula constants. Kept as named values so property tests can
// assert the exact formula without recomputing magic numbers.
const (
	// baseConfidence = BaseFloor + normalizedPriority * BaseSpan
	BaseFloor = 0.4
	BaseSpan  = 0.55

	// baseConfidence when every rule in the plan shares one priority
	EqualPriorityBase = 0.7

	// specificityMultiplier = SpecificityFloor + specificity * SpecificitySpan
	SpecificityFloor = 0.9
	SpecificitySpan  = 0.2

	// matchQualityMultiplier = MatchQualityFloor + matchQuality * MatchQualitySpan
	MatchQualityFloor = 0.95
	MatchQualitySpan  = 0.1

	// coveragePenalty kicks in above BroadCoverageRatio:
	// CoverageFloor + (1 - coverageRatio) * CoverageSpan
	BroadCoverageRatio = 0.5
	CoverageFloor      = 0.85
	CoverageSpan       = 0.15

	// matched confidence is clamped to [ConfidenceMin, ConfidenceMax]
	ConfidenceMin = 0.3
	ConfidenceMax = 0.98

	// unmatched files get baseConfidence(minPriority) * UnmatchedFactor,
	// deliberately below the matched clamp floor in the all-distinct case
	UnmatchedFactor = 0.6
)

// scorer computes placement confidence for one plan against one collection.
// All inputs are fixed at construction; scoring is pure.
type scorer struct {
	minPriority int
	maxPriority int
	totalFiles  int
	matchCounts map[string]int
}

func newScorer(plan *taxonomy.Plan, matchCounts map[string]int, totalFiles int) *scorer {
	s := &scorer{
		totalFiles:  totalFiles,
		matchCounts: matchCounts,
	}
	for i, r := range plan.Rules {
		if i == 0 || r.Priority < s.minPriority {
			s.minPriority = r.Priority
		}
		if i == 0 || r.Priority > s.maxPriority {
			s.maxPriority = r.Priority
		}
	}
	return s
}

// base normalizes a rule's priority into the plan's priority range.
func (s *scorer) base(priority int) float64 {
	if s.maxPriority == s.minPriority {
		return EqualPriorityBase
	}
	normalized := float64(priority-s.minPriority) / float64(s.maxPriority-s.minPriority)
	return BaseFloor + normalized*BaseSpan
}

// score computes the confidence of placing a file via the given rule.
func (s *scorer) score(rule *taxonomy.PlacementRule, matchQuality float64) float64 {
	base := s.base(rule.Priority)
	specificityMult := SpecificityFloor + taxonomy.Specificity(rule)*SpecificitySpan
	qualityMult := MatchQualityFloor + matchQuality*MatchQualitySpan

	coveragePenalty := 1.0
	if s.totalFiles > 0 {
		coverageRatio := float64(s.matchCounts[rule.ID]) / float64(s.totalFiles)
		if coverageRatio > BroadCoverageRatio {
			coveragePenalty = CoverageFloor + (1-coverageRatio)*CoverageSpan
		}
	}

	return clamp(base*specificityMult*qualityMult*coveragePenalty, ConfidenceMin, ConfidenceMax)
}

// unmatched is the confidence assigned to files no rule matched. It is not
// clamped into the matched range: it must sit strictly below every matched
// file's confidence.
func (s *scorer) unmatched() float64 {
	return s.base(s.minPriority) * UnmatchedFactor
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
