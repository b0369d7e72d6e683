package priority

import "sync"

// Reasons returned when an enqueue request is rejected.
const (
	ReasonCompleted = "already completed"
	ReasonQueued    = "already queued"
	ReasonUnknown   = "unknown item"
)

// Queue is the caller-mutable list of item ids that must be processed before
// the catalog cursor advances further. It is safe for concurrent use: the
// serving layer enqueues while the worker consumes.
type Queue struct {
	completed func(id string) bool
	known     func(id string) bool

	mu      sync.Mutex
	entries []string
	queued  map[string]struct{}
	active  bool
	preempt bool
	wake    chan struct{}
}

// New builds a queue. completed is consulted on insertion so finished items
// are rejected; known filters ids absent from the catalog. Either may be nil.
func New(completed, known func(id string) bool) *Queue {
	return &Queue{
		completed: completed,
		known:     known,
		queued:    make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// Enqueue appends id unless it is unknown, already queued, or already
// completed. When the worker is mid-item the preempt flag is raised so the
// current item is abandoned at the next sub-item boundary.
func (q *Queue) Enqueue(id string) (bool, string) {
	if q.known != nil && !q.known(id) {
		return false, ReasonUnknown
	}
	if q.completed != nil && q.completed(id) {
		return false, ReasonCompleted
	}

	q.mu.Lock()
	if _, ok := q.queued[id]; ok {
		q.mu.Unlock()
		return false, ReasonQueued
	}
	q.queued[id] = struct{}{}
	q.entries = append(q.entries, id)
	if q.active {
		q.preempt = true
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true, ""
}

// Pop removes and returns the front entry.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return "", false
	}
	id := q.entries[0]
	q.entries = q.entries[1:]
	delete(q.queued, id)
	return id, true
}

// Remove deletes id from the queue if present. Used when the cursor reaches
// an item that is also queued, to avoid double processing.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[id]; !ok {
		return false
	}
	delete(q.queued, id)
	for i, entry := range q.entries {
		if entry == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the queued ids in FIFO order.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make([]string, len(q.entries))
	copy(cp, q.entries)
	return cp
}

// BeginItem arms preemption for the duration of one item pass. Any enqueue
// between BeginItem and EndItem raises the preempt flag.
func (q *Queue) BeginItem() {
	q.mu.Lock()
	q.active = true
	q.preempt = false
	q.mu.Unlock()
}

// EndItem disarms preemption.
func (q *Queue) EndItem() {
	q.mu.Lock()
	q.active = false
	q.preempt = false
	q.mu.Unlock()
}

// TakePreempt reports and clears the preempt flag. The worker checks it at
// sub-item boundaries, never mid-transfer.
func (q *Queue) TakePreempt() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	raised := q.preempt
	q.preempt = false
	return raised
}

// Wake signals when new work arrives; the worker selects on it while idle.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
