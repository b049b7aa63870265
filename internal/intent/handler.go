package intent

import (
	"container/heap"

	"github.com/talgya/blockswarm/internal/grid"
)

// TaskIntention is a queued intention bound to one task assignment. The
// handler needs to identify it to drop the task or warn it about a
// preempting escape.
type TaskIntention interface {
	Queued
	TaskName() string
	// Drop switches the intention into its abandon sequence.
	Drop(ctx *Context)
	// OnEscape lets the intention adjust to being preempted by a hazard.
	OnEscape(ctx *Context)
}

type queueEntry struct {
	intention Queued
	seq       int
}

type intentQueue []queueEntry

func (q intentQueue) Len() int { return len(q) }
func (q intentQueue) Less(i, j int) bool {
	pi, pj := q[i].intention.Priority(), q[j].intention.Priority()
	if pi != pj {
		return pi < pj
	}
	return q[i].seq < q[j].seq
}
func (q intentQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *intentQueue) Push(v any)   { *q = append(*q, v.(queueEntry)) }
func (q *intentQueue) Pop() any {
	old := *q
	n := len(old)
	v := old[n-1]
	*q = old[:n-1]
	return v
}

// Handler keeps one agent's intention queue. The lowest priority value is
// the current intention; the exploration trio stays queued for the whole
// match so there is always something to do.
type Handler struct {
	queue intentQueue
	seq   int
}

// NewHandler seeds the queue with the always-present base intentions.
func NewHandler() *Handler {
	h := &Handler{}
	heap.Init(&h.queue)
	h.Add(NewExplore())
	h.Add(NewSurveyMap())
	h.Add(NewIdle())
	return h
}

// Add queues an intention.
func (h *Handler) Add(q Queued) {
	h.seq++
	heap.Push(&h.queue, queueEntry{intention: q, seq: h.seq})
}

// Select generates this step's options and returns the current intention.
// A hazard inserts an escape unless one is already queued; a reconnect
// inserts a reset. When the allocator wants the task dropped, or an escape
// preempts task work, the task intention is notified before selection.
func (h *Handler) Select(ctx *Context, needReset, dropTask bool) Queued {
	if ctx.InHazard() && !h.hasEscape() {
		h.Add(NewEscape())
	}
	if needReset && !h.hasReset() {
		h.Add(NewReset())
	}
	if dropTask {
		if t, ok := h.taskIntention(); ok {
			t.Drop(ctx)
		}
	}

	current := h.queue[0].intention
	if _, escaping := current.(*Escape); escaping {
		if t, ok := h.taskIntention(); ok {
			t.OnEscape(ctx)
		}
	}
	return current
}

// CheckFinished pops the current intention when it reports completion.
// SurveyMap and Idle never finish, so selection always has a floor.
func (h *Handler) CheckFinished(ctx *Context) {
	for h.queue.Len() > 0 && h.queue[0].intention.Finished(ctx) {
		heap.Pop(&h.queue)
	}
}

// TaskIntention returns the queued task intention, if any.
func (h *Handler) TaskIntention() (TaskIntention, bool) { return h.taskIntention() }

func (h *Handler) taskIntention() (TaskIntention, bool) {
	for _, e := range h.queue {
		if t, ok := e.intention.(TaskIntention); ok {
			return t, true
		}
	}
	return nil, false
}

// AbandonTask removes the queued task intention outright, used when the
// allocator reassigns the agent before any abandon sequence is needed.
func (h *Handler) AbandonTask() {
	for i, e := range h.queue {
		if _, ok := e.intention.(TaskIntention); ok {
			heap.Remove(&h.queue, i)
			return
		}
	}
}

// BusyWithTask reports whether a task intention is queued.
func (h *Handler) BusyWithTask() bool {
	_, ok := h.taskIntention()
	return ok
}

func (h *Handler) hasEscape() bool {
	for _, e := range h.queue {
		if _, ok := e.intention.(*Escape); ok {
			return true
		}
	}
	return false
}

func (h *Handler) hasReset() bool {
	for _, e := range h.queue {
		if _, ok := e.intention.(*Reset); ok {
			return true
		}
	}
	return false
}

// Shift translates every queued intention's coordinates after a map merge.
func (h *Handler) Shift(offset grid.Coordinate, g grid.Geometry) {
	for _, e := range h.queue {
		e.intention.Shift(offset, g)
	}
}

// Normalize re-reduces every queued intention's coordinates after a
// dimension discovery.
func (h *Handler) Normalize(g grid.Geometry) {
	for _, e := range h.queue {
		e.intention.Normalize(g)
	}
}
