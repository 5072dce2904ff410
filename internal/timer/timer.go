package timer

import (
	"container/heap"
	"log/slog"
)

// Handle identifies a scheduled timer. The zero Handle is invalid.
// IDs are never reused, so a stale handle never resolves to a newer timer.
type Handle struct {
	id uint64
}

// IsValid reports whether h was returned by Schedule.
func (h Handle) IsValid() bool {
	return h.id != 0
}

// Service is the timer contract used by the effect container.
type Service interface {
	// Now returns the current simulation time in seconds.
	Now() float64
	// Schedule runs fn after delay seconds, then every delay seconds if repeating.
	Schedule(delay float64, repeating bool, fn func()) Handle
	// ScheduleNextTick runs fn on the next Advance before any other due timer.
	ScheduleNextTick(fn func()) Handle
	// Cancel stops h. Cancelling an unknown or fired handle is a no-op.
	Cancel(h Handle)
	// Remaining returns seconds until h fires, or -1 if h is not scheduled.
	Remaining(h Handle) float64
	// Exists reports whether h is still scheduled.
	Exists(h Handle) bool
}

type entry struct {
	id        uint64
	due       float64
	period    float64
	repeating bool
	fn        func()
	seq       uint64 // tie-break for equal due times
	index     int
}

// Manager is a single-threaded timer service driven by Advance. Callbacks
// run synchronously on the goroutine calling Advance, in due-time order;
// equal due times fire in scheduling order.
//
// Not safe for concurrent use.
type Manager struct {
	now     float64
	nextID  uint64
	nextSeq uint64
	live    map[uint64]*entry
	queue   entryHeap
}

// NewManager creates a Manager with the clock at zero.
func NewManager() *Manager {
	return &Manager{live: make(map[uint64]*entry)}
}

// Now returns the current simulation time.
func (m *Manager) Now() float64 {
	return m.now
}

// Schedule implements Service.
func (m *Manager) Schedule(delay float64, repeating bool, fn func()) Handle {
	if repeating && delay <= 0 {
		slog.Warn("timer: repeating timer needs positive period", "delay", delay)
		return Handle{}
	}
	return m.add(m.now+max(delay, 0), delay, repeating, fn)
}

// ScheduleNextTick implements Service.
func (m *Manager) ScheduleNextTick(fn func()) Handle {
	return m.add(m.now, 0, false, fn)
}

func (m *Manager) add(due, period float64, repeating bool, fn func()) Handle {
	m.nextID++
	m.nextSeq++
	e := &entry{
		id:        m.nextID,
		due:       due,
		period:    period,
		repeating: repeating,
		fn:        fn,
		seq:       m.nextSeq,
	}
	m.live[e.id] = e
	heap.Push(&m.queue, e)
	return Handle{id: e.id}
}

// Cancel implements Service.
func (m *Manager) Cancel(h Handle) {
	e := m.lookup(h)
	if e == nil {
		return
	}
	delete(m.live, e.id)
	heap.Remove(&m.queue, e.index)
}

// Remaining implements Service.
func (m *Manager) Remaining(h Handle) float64 {
	e := m.lookup(h)
	if e == nil {
		return -1
	}
	return e.due - m.now
}

// Exists implements Service.
func (m *Manager) Exists(h Handle) bool {
	return m.lookup(h) != nil
}

// Pending returns the number of scheduled timers.
func (m *Manager) Pending() int {
	return len(m.live)
}

func (m *Manager) lookup(h Handle) *entry {
	if !h.IsValid() {
		return nil
	}
	return m.live[h.id]
}

// Advance moves the clock forward by dt seconds and fires every timer due
// up to the new time. A repeating timer fires once per elapsed period.
// Returns the number of callbacks run.
func (m *Manager) Advance(dt float64) int {
	target := m.now + max(dt, 0)
	fired := 0

	for m.queue.Len() > 0 {
		e := m.queue[0]
		if e.due > target {
			break
		}
		heap.Pop(&m.queue)
		m.now = max(m.now, e.due)

		if e.repeating {
			// Re-arm before the callback so it can cancel itself.
			m.nextSeq++
			e.due += e.period
			e.seq = m.nextSeq
			heap.Push(&m.queue, e)
		} else {
			delete(m.live, e.id)
		}

		e.fn()
		fired++
	}

	m.now = target
	return fired
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
