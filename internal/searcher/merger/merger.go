package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/ranker"
)

const DefaultLimit = 10

// TopK returns the limit best scored documents, highest score first and
// lower docID first among equal scores.
func TopK(scores map[int]float64, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		limit = DefaultLimit
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for docID, score := range scores {
		heap.Push(h, ranker.ScoredDoc{DocID: docID, Score: score})
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap: the root is the worst document kept so far.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
