package search

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

// VectorSearcher is the vector-index side of hybrid retrieval.
type VectorSearcher interface {
	SearchScores(ctx context.Context, query string, k int) ([]model.Memory, error)
}

// Hybrid fuses vector and keyword results with weights chosen from the
// query's characteristics, then ranks by weighted reciprocal rank fusion.
type Hybrid struct {
	vector  VectorSearcher
	keyword *KeywordIndex
}

// NewHybrid creates a hybrid searcher over both retrieval paths.
func NewHybrid(vector VectorSearcher, keyword *KeywordIndex) *Hybrid {
	return &Hybrid{vector: vector, keyword: keyword}
}

// Search runs both retrieval paths and returns up to k fused results. The
// keyword path searches each quoted phrase separately when the query
// contains them. A vector-side failure degrades to keyword-only results
// rather than failing the query.
func (h *Hybrid) Search(ctx context.Context, query string, k int) ([]model.Memory, error) {
	if k <= 0 {
		k = 5
	}

	chars := AnalyzeQuery(query)
	vectorWeight, keywordWeight := chars.Weights()

	var rankings [][]string
	content := make(map[string]model.Memory)
	inVector := make(map[string]bool)
	inKeyword := make(map[string]bool)

	vecResults, err := h.vector.SearchScores(ctx, query, k*3)
	if err != nil {
		if keywordWeight == 0 {
			return nil, err
		}
		zap.L().Warn("vector search failed, degrading to keyword-only", zap.Error(err))
	}
	if len(vecResults) > 0 {
		ranking := make([]string, 0, len(vecResults))
		for _, m := range vecResults {
			ranking = append(ranking, m.ID)
			content[m.ID] = m
			inVector[m.ID] = true
		}
		rankings = append(rankings, ranking)
	}

	for _, hits := range h.keywordRankings(chars, query, k) {
		ranking := make([]string, 0, len(hits))
		for _, hit := range hits {
			ranking = append(ranking, hit.ID)
			inKeyword[hit.ID] = true
			if _, ok := content[hit.ID]; !ok {
				content[hit.ID] = model.Memory{ID: hit.ID, Text: hit.Text, Metadata: hit.Metadata}
			}
		}
		rankings = append(rankings, ranking)
	}

	fused := ReciprocalRankFusion(rankings, rrfK, true)

	results := make([]model.Memory, 0, len(fused))
	for id, score := range fused {
		m, ok := content[id]
		if !ok {
			continue
		}

		switch {
		case inVector[id] && inKeyword[id]:
			m.Score = score
		case inVector[id]:
			m.Score = score * vectorWeight
		default:
			m.Score = score * keywordWeight
		}
		results = append(results, m)
	}

	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].ID < results[b].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (h *Hybrid) keywordRankings(chars QueryCharacteristics, query string, k int) [][]Hit {
	if h.keyword == nil {
		return nil
	}

	if len(chars.ExactPhrases) > 0 {
		rankings := make([][]Hit, 0, len(chars.ExactPhrases))
		for _, phrase := range chars.ExactPhrases {
			rankings = append(rankings, h.keyword.Search(phrase, k*2))
		}
		return rankings
	}
	return [][]Hit{h.keyword.Search(query, k*3)}
}
