package search

// rrfK is the standard reciprocal-rank-fusion constant.
const rrfK = 60

// ReciprocalRankFusion merges ranked ID lists: each document accumulates
// 1/(k+rank) per list it appears in. When normalize is set, scores are
// min-max scaled to [0,1]; identical scores collapse to 0.5.
func ReciprocalRankFusion(rankings [][]string, k int, normalize bool) map[string]float64 {
	if k <= 0 {
		k = rrfK
	}

	scores := make(map[string]float64)
	for _, ranking := range rankings {
		for rank, id := range ranking {
			scores[id] += 1.0 / float64(k+rank+1)
		}
	}

	if normalize && len(scores) > 0 {
		minScore, maxScore := scores[first(scores)], scores[first(scores)]
		for _, s := range scores {
			if s < minScore {
				minScore = s
			}
			if s > maxScore {
				maxScore = s
			}
		}
		for id := range scores {
			if maxScore > minScore {
				scores[id] = (scores[id] - minScore) / (maxScore - minScore)
			} else {
				scores[id] = 0.5
			}
		}
	}
	return scores
}

func first(m map[string]float64) string {
	for k := range m {
		return k
	}
	return ""
}
