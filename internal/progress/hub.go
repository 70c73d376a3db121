package progress

import (
	"log/slog"
	"sync"
)

// Hub fans progress events out to per-job subscribers. Slow subscribers are
// skipped rather than blocking the pipeline.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener for one job's events. The returned channel
// is buffered; callers must drain it and call Unsubscribe when done.
func (h *Hub) Subscribe(jobID string) chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan Event]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a listener registered with Subscribe.
func (h *Hub) Unsubscribe(jobID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[jobID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, jobID)
		}
	}
}

// Publish delivers an event to every subscriber of its job.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("progress.subscriber.slow", "job_id", ev.JobID, "step", ev.CurrentStep)
		}
	}
}
