package dispatch

import (
	"container/heap"
	"sort"
)

type taskItem struct {
	task *Task
	seq  uint64 // submission order, breaks created_at ties
}

type taskHeap []taskItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	if h[i].task.CreatedAt != h[j].task.CreatedAt {
		return h[i].task.CreatedAt < h[j].task.CreatedAt
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(taskItem)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// WorkQueue is a binary heap of tasks keyed by (priority, created_at).
type WorkQueue struct {
	heap    taskHeap
	taskMap map[string]*Task
	seq     uint64
}

// NewWorkQueue creates an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{
		heap:    taskHeap{},
		taskMap: make(map[string]*Task),
	}
}

// Size returns the number of queued tasks.
func (q *WorkQueue) Size() int {
	return q.heap.Len()
}

// IsEmpty reports an empty queue.
func (q *WorkQueue) IsEmpty() bool {
	return q.heap.Len() == 0
}

// Enqueue adds a task and marks it QUEUED.
func (q *WorkQueue) Enqueue(task *Task) {
	task.Status = TaskQueued
	q.seq++
	heap.Push(&q.heap, taskItem{task: task, seq: q.seq})
	q.taskMap[task.TaskID] = task
}

// Dequeue removes and returns the highest-priority task, or nil when empty.
func (q *WorkQueue) Dequeue() *Task {
	if q.heap.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.heap).(taskItem)
	delete(q.taskMap, item.task.TaskID)
	return item.task
}

// Peek returns the highest-priority task without removing it.
func (q *WorkQueue) Peek() *Task {
	if q.heap.Len() == 0 {
		return nil
	}
	return q.heap[0].task
}

// Tasks returns the queued tasks in priority order (for snapshots).
func (q *WorkQueue) Tasks() []*Task {
	items := append(taskHeap(nil), q.heap...)
	sort.Slice(items, func(i, j int) bool { return taskHeap(items).Less(i, j) })
	out := make([]*Task, len(items))
	for i, item := range items {
		out[i] = item.task
	}
	return out
}

// Steal removes up to count tasks from the LOW-priority end of the queue and
// returns them, cheapest work first to move. Kept tasks are re-enqueued in
// sorted order; since the heap key is the (priority, created_at) total order,
// dequeue behavior is unchanged by the rebuild.
func (q *WorkQueue) Steal(count int) []*Task {
	if q.heap.Len() == 0 || count <= 0 {
		return nil
	}

	tasks := q.Tasks()
	if count > len(tasks) {
		count = len(tasks)
	}

	stolen := tasks[len(tasks)-count:]
	kept := tasks[:len(tasks)-count]

	q.heap = taskHeap{}
	q.taskMap = make(map[string]*Task)
	for _, task := range kept {
		q.Enqueue(task)
	}

	return stolen
}
