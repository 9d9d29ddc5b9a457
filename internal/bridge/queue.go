package bridge

import (
	"container/heap"
	"context"
	"sync"
)

// Task asks the engine to drive one record through the pipeline.
type Task struct {
	UserID   string
	RecordID string
	Priority int

	seq   uint64
	index int
}

// Queue is an in-memory priority queue of tasks, one per record.
// Higher priority pops first; equal priorities pop in arrival order.
// The store, not the queue, decides ownership: a popped task still has to
// win the claim before any work happens.
type Queue struct {
	mu     sync.Mutex
	items  taskHeap
	byID   map[string]*Task
	seq    uint64
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		byID:   make(map[string]*Task),
		notify: make(chan struct{}, 1),
	}
}

// Push adds t. If the record is already waiting, its priority is raised to
// the higher of the two and Push returns false.
func (q *Queue) Push(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byID[t.RecordID]; ok {
		if t.Priority > existing.Priority {
			existing.Priority = t.Priority
			heap.Fix(&q.items, existing.index)
		}
		return false
	}

	q.seq++
	task := &Task{UserID: t.UserID, RecordID: t.RecordID, Priority: t.Priority, seq: q.seq}
	heap.Push(&q.items, task)
	q.byID[t.RecordID] = task
	q.signal()
	return true
}

// Pop blocks until a task is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (Task, bool) {
	for {
		if t, ok := q.TryPop(); ok {
			return t, true
		}
		select {
		case <-ctx.Done():
			return Task{}, false
		case <-q.notify:
		}
	}
}

// TryPop returns the next task without waiting.
func (q *Queue) TryPop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Task{}, false
	}
	t := heap.Pop(&q.items).(*Task)
	delete(q.byID, t.RecordID)
	if len(q.items) > 0 {
		q.signal()
	}
	return *t, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// signal wakes one waiter. Caller holds q.mu.
func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
