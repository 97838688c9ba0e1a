package search

import (
	"math"
	"sort"
	"sync"
)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Document is one indexed chunk.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Hit is a scored keyword-search result.
type Hit struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// KeywordIndex is an in-memory BM25 index rebuilt from the chunk mirror on
// startup and updated incrementally as memories change. Safe for concurrent
// use.
type KeywordIndex struct {
	mu     sync.RWMutex
	docs   []Document
	tokens [][]string

	// derived stats
	termFreq []map[string]int
	docFreq  map[string]int
	totalLen int
}

// NewKeywordIndex creates an empty index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{docFreq: make(map[string]int)}
}

// Replace swaps the entire corpus, dropping whatever was indexed before.
func (ki *KeywordIndex) Replace(docs []Document) {
	ki.mu.Lock()
	defer ki.mu.Unlock()

	ki.docs = nil
	ki.tokens = nil
	for _, d := range docs {
		ki.appendLocked(d)
	}
	ki.rebuildStatsLocked()
}

// Add indexes new documents. Documents with an already-indexed ID are
// replaced.
func (ki *KeywordIndex) Add(docs ...Document) {
	ki.mu.Lock()
	defer ki.mu.Unlock()

	for _, d := range docs {
		if d.Text == "" {
			continue
		}
		if i := ki.indexOfLocked(d.ID); i >= 0 {
			ki.docs[i] = d
			ki.tokens[i] = Tokenize(d.Text)
			continue
		}
		ki.appendLocked(d)
	}
	ki.rebuildStatsLocked()
}

// Remove drops documents by ID.
func (ki *KeywordIndex) Remove(ids ...string) {
	ki.mu.Lock()
	defer ki.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	docs := ki.docs[:0]
	tokens := ki.tokens[:0]
	for i, d := range ki.docs {
		if _, gone := drop[d.ID]; gone {
			continue
		}
		docs = append(docs, d)
		tokens = append(tokens, ki.tokens[i])
	}
	ki.docs = docs
	ki.tokens = tokens
	ki.rebuildStatsLocked()
}

// Clear drops everything.
func (ki *KeywordIndex) Clear() {
	ki.mu.Lock()
	defer ki.mu.Unlock()
	ki.docs = nil
	ki.tokens = nil
	ki.rebuildStatsLocked()
}

// Len returns the number of indexed documents.
func (ki *KeywordIndex) Len() int {
	ki.mu.RLock()
	defer ki.mu.RUnlock()
	return len(ki.docs)
}

// Search scores the corpus against the query with Okapi BM25 and returns up
// to k positive-scoring hits, best first.
func (ki *KeywordIndex) Search(query string, k int) []Hit {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || k <= 0 {
		return nil
	}

	ki.mu.RLock()
	defer ki.mu.RUnlock()

	n := len(ki.docs)
	if n == 0 {
		return nil
	}
	avgLen := float64(ki.totalLen) / float64(n)
	if avgLen == 0 {
		return nil
	}

	hits := make([]Hit, 0, n)
	for i, d := range ki.docs {
		score := ki.scoreLocked(queryTokens, i, avgLen)
		if score > 0 {
			hits = append(hits, Hit{ID: d.ID, Score: score, Text: d.Text, Metadata: d.Metadata})
		}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (ki *KeywordIndex) scoreLocked(queryTokens []string, doc int, avgLen float64) float64 {
	n := float64(len(ki.docs))
	dl := float64(len(ki.tokens[doc]))

	var score float64
	for _, t := range queryTokens {
		tf := float64(ki.termFreq[doc][t])
		if tf == 0 {
			continue
		}
		df := float64(ki.docFreq[t])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		score += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*dl/avgLen))
	}
	return score
}

func (ki *KeywordIndex) appendLocked(d Document) {
	ki.docs = append(ki.docs, d)
	ki.tokens = append(ki.tokens, Tokenize(d.Text))
}

func (ki *KeywordIndex) indexOfLocked(id string) int {
	for i, d := range ki.docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (ki *KeywordIndex) rebuildStatsLocked() {
	ki.termFreq = make([]map[string]int, len(ki.tokens))
	ki.docFreq = make(map[string]int)
	ki.totalLen = 0

	for i, toks := range ki.tokens {
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		for t := range tf {
			ki.docFreq[t]++
		}
		ki.termFreq[i] = tf
		ki.totalLen += len(toks)
	}
}
