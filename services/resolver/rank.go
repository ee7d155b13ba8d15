package resolver

import (
	"sort"
	"strings"

	"farsistream/models"
)

// DetectQuality derives a quality label from a stream URL. Mirrors the
// heuristics the source sites themselves use in their player markup.
func DetectQuality(streamURL string) string {
	lower := strings.ToLower(streamURL)
	switch {
	case strings.Contains(lower, "1080") || strings.Contains(lower, "fhd"):
		return "1080p"
	case strings.Contains(lower, "720") || strings.Contains(lower, "hd"):
		return "720p"
	case strings.Contains(lower, "480"):
		return "480p"
	case strings.Contains(lower, "360"):
		return "360p"
	default:
		return ""
	}
}

// QualityRank returns the priority index of a label, lower is better.
// Labels outside the priority list rank after every listed one.
func QualityRank(priority []string, label string) int {
	for i, q := range priority {
		if strings.EqualFold(q, label) {
			return i
		}
	}
	return len(priority)
}

// Rank orders candidates by quality priority. The sort is stable so
// alternate mirrors of the same quality keep their source order; that order
// is the failover order for the whole session.
func Rank(candidates []models.SourceCandidate, priority []string) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return QualityRank(priority, candidates[i].QualityLabel) < QualityRank(priority, candidates[j].QualityLabel)
	})
}
