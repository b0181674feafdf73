package card

import (
	"sort"
	"strings"
	"time"
)

// TagCount pairs a tag with the number of cards carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// PatternCount pairs a leading directory pattern with its card count.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// Overview is the aggregate collection summary handed to the plan-generation
// agent: enough signal to propose folders without shipping every card.
type Overview struct {
	FileCount       int            `json:"file_count"`
	ByExtension     map[string]int `json:"by_extension"`
	ByYear          map[int]int    `json:"by_year"`
	TopTags         []TagCount     `json:"top_tags"`
	TopPathPatterns []PatternCount `json:"top_path_patterns"`
	SampledCards    []FileCard     `json:"sampled_file_cards"`
}

// BuildOverview aggregates the cards into an Overview. maxTags bounds the
// TopTags list and samplesPerTag the per-tag card samples; both come from the
// run's strategy. The result is deterministic given a deterministic card order.
func BuildOverview(cards []FileCard, maxTags, samplesPerTag int) Overview {
	o := Overview{
		FileCount:   len(cards),
		ByExtension: make(map[string]int),
		ByYear:      make(map[int]int),
	}

	tagCounts := make(map[string]int)
	patternCounts := make(map[string]int)

	for i := range cards {
		c := &cards[i]
		if c.Extension != "" {
			o.ByExtension[strings.ToLower(c.Extension)]++
		}
		if c.MTime > 0 {
			o.ByYear[time.Unix(c.MTime, 0).UTC().Year()]++
		}
		for _, t := range c.Tags {
			if t = NormalizeTag(t); t != "" {
				tagCounts[t]++
			}
		}
		if p := leadingPattern(c.MatchPath()); p != "" {
			patternCounts[p]++
		}
	}

	o.TopTags = topTagCounts(tagCounts, maxTags)
	o.TopPathPatterns = topPatternCounts(patternCounts, maxTags)
	o.SampledCards = sampleByTag(cards, o.TopTags, samplesPerTag)
	return o
}

// leadingPattern extracts up to the first two directory segments of a path.
func leadingPattern(p string) string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	segs := strings.Split(p, "/")
	if len(segs) < 2 {
		// File at the root: no directory pattern.
		return ""
	}
	// Last segment is the file name.
	dirs := segs[:len(segs)-1]
	if len(dirs) > 2 {
		dirs = dirs[:2]
	}
	return strings.Join(dirs, "/")
}

func topTagCounts(counts map[string]int, limit int) []TagCount {
	result := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		result = append(result, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Tag < result[j].Tag
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func topPatternCounts(counts map[string]int, limit int) []PatternCount {
	result := make([]PatternCount, 0, len(counts))
	for p, n := range counts {
		result = append(result, PatternCount{Pattern: p, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Pattern < result[j].Pattern
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// sampleByTag picks up to samplesPerTag cards for each top tag, deduplicated
// by file ID, preserving input order within a tag.
func sampleByTag(cards []FileCard, topTags []TagCount, samplesPerTag int) []FileCard {
	if samplesPerTag <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	samples := make([]FileCard, 0, len(topTags)*samplesPerTag)

	for _, tc := range topTags {
		taken := 0
		for i := range cards {
			if taken >= samplesPerTag {
				break
			}
			c := &cards[i]
			if seen[c.FileID] || !c.HasTag(tc.Tag) {
				continue
			}
			seen[c.FileID] = true
			samples = append(samples, *c)
			taken++
		}
	}

	if len(samples) == 0 {
		return nil
	}
	return samples
}
