// Package ranker scores documents against an OR-of-terms query with the
// lnc.ltc vector-space model: document weights are the length-normalized
// log term frequencies stored in the index, query weights are idf values
// normalized to unit length.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
)

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// IDF is log10(N/df). It is zero when either count is zero.
func IDF(corpusCount, docFreq int) float64 {
	if corpusCount <= 0 || docFreq <= 0 {
		return 0
	}
	return math.Log10(float64(corpusCount) / float64(docFreq))
}

// Rank scores every document that contains at least one query term. Terms
// without postings contribute nothing. When every matched term occurs in
// every document the query vector has no length and all matches score 0.
func Rank(postings index.TermPostings, corpusCount int) map[int]float64 {
	idf := make(map[string]float64, len(postings))
	var sumSquares float64
	for term, docs := range postings {
		if len(docs) == 0 {
			continue
		}
		w := IDF(corpusCount, len(docs))
		idf[term] = w
		sumSquares += w * w
	}
	norm := math.Sqrt(sumSquares)

	scores := make(map[int]float64)
	for term, w := range idf {
		for docID, lnc := range postings[term] {
			var contribution float64
			if norm > 0 {
				contribution = lnc * w / norm
			}
			scores[docID] += contribution
		}
	}
	return scores
}
