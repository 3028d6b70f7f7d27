package maintenance

import (
	"container/heap"
	"context"
	"time"
)

// =============================================================================
// Types
// =============================================================================

// Task is one fixed-interval maintenance job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time)
}

// taskItem represents a task in the schedule heap.
type taskItem struct {
	task  Task
	next  time.Time // when the task is next due
	runs  int
	index int // heap index
}

// =============================================================================
// Heap Implementation
// =============================================================================

// taskHeap implements heap.Interface ordered by due time.
type taskHeap []*taskItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].next.Before(h[j].next)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item := x.(*taskItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// =============================================================================
// Schedule Loop
// =============================================================================

// schedule runs tasks on their intervals until ctx ends. Each run is
// rescheduled from its previous due time, so intervals do not drift with
// task duration. A run that falls more than one interval behind skips ahead.
func schedule(ctx context.Context, tasks []Task) {
	if len(tasks) == 0 {
		<-ctx.Done()
		return
	}

	start := time.Now()
	h := make(taskHeap, 0, len(tasks))
	for _, t := range tasks {
		heap.Push(&h, &taskItem{task: t, next: start.Add(t.Interval)})
	}

	timer := time.NewTimer(time.Until(h[0].next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := time.Now()
		for h.Len() > 0 && !h[0].next.After(now) {
			item := h[0]
			runTask(item.task, now)
			item.runs++

			item.next = item.next.Add(item.task.Interval)
			if !item.next.After(now) {
				item.next = now.Add(item.task.Interval)
			}
			heap.Fix(&h, 0)
		}
		timer.Reset(time.Until(h[0].next))
	}
}

// runTask executes one task with panic recovery.
func runTask(t Task, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in maintenance task", "task", t.Name, "panic", r)
		}
	}()
	t.Run(now)
}
