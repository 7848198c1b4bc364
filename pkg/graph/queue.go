package graph

import (
	"container/heap"

	"github.com/odvcencio/weave/pkg/object"
)

type queueItem struct {
	hash   object.Hash
	when   int64
	commit *object.CommitObj
}

// commitHeap is a max-heap on commit time. Ties break on the smaller hash so
// pop order is deterministic.
type commitHeap []queueItem

func (h commitHeap) Len() int { return len(h) }

func (h commitHeap) Less(i, j int) bool {
	if h[i].when == h[j].when {
		return h[i].hash < h[j].hash
	}
	return h[i].when > h[j].when
}

func (h commitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *commitHeap) Push(x any) {
	*h = append(*h, x.(queueItem))
}

func (h *commitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queueItem{}
	*h = old[:n-1]
	return item
}

// Queue is a priority frontier of commits, newest commit time first.
type Queue struct {
	items commitHeap
}

// Push adds a decoded commit to the frontier.
func (q *Queue) Push(h object.Hash, c *object.CommitObj) {
	heap.Push(&q.items, queueItem{hash: h, when: c.When(), commit: c})
}

// Pop removes and returns the newest commit. It panics on an empty queue.
func (q *Queue) Pop() (object.Hash, *object.CommitObj) {
	item := heap.Pop(&q.items).(queueItem)
	return item.hash, item.commit
}

func (q *Queue) Len() int { return len(q.items) }
