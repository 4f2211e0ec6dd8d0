package audiotab

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Priority enumerates scheduling priority levels, highest first. The
// numeric order here is the admission order (smallest pops first off the
// waiting heap), which is the inverse of a "higher value = more urgent"
// numbering; the ordering is the same, only the literal values differ.
// pipeline_config JSON carries priorities by name ("Critical", "High",
// "Normal", "Low"), never by number.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "Critical"
	case PriorityHigh:
		return "High"
	case PriorityNormal:
		return "Normal"
	case PriorityLow:
		return "Low"
	default:
		return "Normal"
	}
}

// MarshalJSON encodes Priority as its capitalized name, matching the wire
// form pipeline_config.priority uses.
func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON parses one of "Critical"/"High"/"Normal"/"Low".
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "Critical":
		*p = PriorityCritical
	case "High":
		*p = PriorityHigh
	case "Normal":
		*p = PriorityNormal
	case "Low":
		*p = PriorityLow
	default:
		return fmt.Errorf("unknown priority %q", s)
	}
	return nil
}

// schedItem is one pending admission request in the priority heap.
type schedItem struct {
	priority Priority
	seq      uint64 // FIFO tie-break within the same priority
	admit    chan struct{}
}

type schedHeap []*schedItem

func (h schedHeap) Len() int { return len(h) }
func (h schedHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h schedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *schedHeap) Push(x any)        { *h = append(*h, x.(*schedItem)) }
func (h *schedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityScheduler admits work up to a fixed concurrency ceiling,
// preferring higher-priority requests and breaking ties in arrival order.
type PriorityScheduler struct {
	mu            sync.Mutex
	maxConcurrent int
	inFlight      int
	nextSeq       uint64
	waiting       schedHeap
	tasks         sync.WaitGroup
}

// NewPriorityScheduler returns a scheduler admitting up to maxConcurrent
// concurrent tasks.
func NewPriorityScheduler(maxConcurrent int) *PriorityScheduler {
	return &PriorityScheduler{maxConcurrent: maxConcurrent}
}

// Acquire blocks until admitted at the given priority or ctx is cancelled.
// The returned release func must be called exactly once to free the slot.
func (s *PriorityScheduler) Acquire(ctx context.Context, p Priority) (release func(), err error) {
	s.mu.Lock()
	if s.inFlight < s.maxConcurrent {
		s.inFlight++
		s.mu.Unlock()
		return s.releaseFunc(), nil
	}

	item := &schedItem{priority: p, seq: s.nextSeq, admit: make(chan struct{})}
	s.nextSeq++
	heap.Push(&s.waiting, item)
	s.mu.Unlock()

	select {
	case <-item.admit:
		return s.releaseFunc(), nil
	case <-ctx.Done():
		s.mu.Lock()
		s.removeWaiting(item)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (s *PriorityScheduler) removeWaiting(target *schedItem) {
	for i, it := range s.waiting {
		if it == target {
			heap.Remove(&s.waiting, i)
			return
		}
	}
}

func (s *PriorityScheduler) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if len(s.waiting) > 0 {
				next := heap.Pop(&s.waiting).(*schedItem)
				close(next.admit)
				return
			}
			s.inFlight--
		})
	}
}

// Schedule admits task at the given priority, matching the engine design's
// schedule(priority, task) -> bool operation: if fewer than maxConcurrent
// tasks are currently active the task starts immediately and Schedule
// returns true; otherwise task is enqueued behind higher- or
// equal-priority work and Schedule returns false. In both cases task runs
// asynchronously; use WaitAll to block until every scheduled task (active
// or still queued) has completed.
func (s *PriorityScheduler) Schedule(ctx context.Context, p Priority, task func(context.Context)) bool {
	s.mu.Lock()
	immediate := s.inFlight < s.maxConcurrent
	if immediate {
		// claim the slot here, not in the goroutine, so two back-to-back
		// Schedule calls can't both observe a free slot
		s.inFlight++
	}
	s.mu.Unlock()

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		var release func()
		if immediate {
			release = s.releaseFunc()
		} else {
			var err error
			release, err = s.Acquire(ctx, p)
			if err != nil {
				return
			}
		}
		defer release()
		task(ctx)
	}()
	return immediate
}

// WaitAll blocks until every task passed to Schedule, active or still
// queued, has run to completion. It is also the scheduler's quiescence
// barrier: a caller tearing down the engine can call WaitAll to be sure no
// admitted pipeline instance is still running before releasing shared
// resources (e.g. the kernel runtime's devices).
func (s *PriorityScheduler) WaitAll() {
	s.tasks.Wait()
}

// InFlight reports the current number of admitted tasks, for monitoring.
func (s *PriorityScheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Waiting reports the current queue depth, for monitoring.
func (s *PriorityScheduler) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting)
}
