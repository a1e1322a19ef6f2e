package ranker

import "container/heap"

// topK keeps the k best documents seen so far in a min-heap whose root is
// the weakest kept document.
type topK struct {
	k int
	h scoredDocHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(scoredDocHeap, 0, k)}
}

func (t *topK) Offer(doc ScoredDoc) {
	if t.h.Len() < t.k {
		heap.Push(&t.h, doc)
		return
	}
	if before(doc, t.h[0]) {
		t.h[0] = doc
		heap.Fix(&t.h, 0)
	}
}

// Sorted drains the heap, best first.
func (t *topK) Sorted() []ScoredDoc {
	result := make([]ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ScoredDoc)
	}
	return result
}

type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return before(h[j], h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
