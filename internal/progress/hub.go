package progress

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/subtitles/internal/domain"
)

// finishedRetention is how long a terminal snapshot is kept for late subscribers.
const finishedRetention = 10 * time.Minute

// Hub is an in-process publisher that streams snapshots to local subscribers,
// such as server-sent-event handlers. A slow subscriber loses its oldest
// buffered snapshots rather than blocking the pipeline, so the newest one
// (terminal included) always arrives.
type Hub struct {
	mu       sync.Mutex
	buffer   int
	subs     map[string]map[int]chan domain.ProgressSnapshot
	last     map[string]domain.ProgressSnapshot
	finished map[string]time.Time
	retain   time.Duration
	now      func() time.Time
	nextID   int
}

// NewHub creates a Hub whose subscriber channels hold buffer snapshots.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		buffer:   buffer,
		subs:     make(map[string]map[int]chan domain.ProgressSnapshot),
		last:     make(map[string]domain.ProgressSnapshot),
		finished: make(map[string]time.Time),
		retain:   finishedRetention,
		now:      time.Now,
	}
}

func (h *Hub) Name() string { return "hub" }

// Publish implements Publisher.
func (h *Hub) Publish(_ context.Context, jobID string, snapshot domain.ProgressSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.evict(now)
	h.last[jobID] = snapshot
	if snapshot.Status.IsTerminal() {
		h.finished[jobID] = now
	} else {
		delete(h.finished, jobID)
	}

	for _, ch := range h.subs[jobID] {
		offer(ch, snapshot)
	}
	return nil
}

// offer sends s without blocking, discarding the oldest buffered snapshot
// when ch is full. Only Publish sends on ch and it holds the hub lock.
func offer(ch chan domain.ProgressSnapshot, s domain.ProgressSnapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// evict forgets finished jobs older than the retention window.
func (h *Hub) evict(now time.Time) {
	for jobID, at := range h.finished {
		if now.Sub(at) > h.retain {
			delete(h.finished, jobID)
			delete(h.last, jobID)
		}
	}
}

// Subscribe returns a channel of snapshots for jobID, primed with the latest
// snapshot if one is known. A job that finished recently is primed with its
// terminal snapshot. Call cancel to release it; the channel is closed then.
func (h *Hub) Subscribe(jobID string) (<-chan domain.ProgressSnapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.evict(h.now())
	ch := make(chan domain.ProgressSnapshot, h.buffer)
	if s, ok := h.last[jobID]; ok {
		ch <- s
	}

	id := h.nextID
	h.nextID++
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[int]chan domain.ProgressSnapshot)
	}
	h.subs[jobID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[jobID], id)
			if len(h.subs[jobID]) == 0 {
				delete(h.subs, jobID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscriptions for jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
