package sqlite

import (
	"fmt"
	"math"
	"sort"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex"
)

// cosineSimilarity calculates the cosine similarity between two vectors,
// clamped to [0, 1].
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	score := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// sortByScore sorts hits by score (descending, stable) and limits the result count.
func sortByScore(hits []*vectorindex.Hit, limit int) []*vectorindex.Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}

	return hits
}

// matchesFilters reports whether the metadata satisfies every filter entry.
//
// Values are compared on their string rendering so that JSON round-tripped
// numbers (float64) still match integer filters.
func matchesFilters(metadata map[string]interface{}, filters map[string]interface{}) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
