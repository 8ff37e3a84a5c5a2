package controller

import (
	"sync"
	"time"
)

// Progress is one snapshot of a running export job, pushed to the client
// over the progress channel.
type Progress struct {
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Failed  int    `json:"failed"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	ProgressRunning = "running"
	ProgressDone    = "done"
	ProgressError   = "error"
)

// Terminal reports whether no further updates will follow this snapshot.
func (p Progress) Terminal() bool { return p.Status != ProgressRunning }

// progressGracePeriod keeps a finished job's state around long enough for a
// late-attaching subscriber to observe the terminal snapshot.
const progressGracePeriod = 5 * time.Second

// progressHub fans export-job progress out to SSE subscribers, keyed by the
// client-generated progress id. State is created implicitly by whichever
// side (publisher or subscriber) shows up first, and garbage collected a
// grace period after the job reaches a terminal status.
type progressHub struct {
	mu    sync.Mutex
	grace time.Duration
	jobs  map[string]*progressJob
}

type progressJob struct {
	last    Progress
	hasLast bool
	subs    map[chan Progress]struct{}
}

func newProgressHub(grace time.Duration) *progressHub {
	return &progressHub{
		grace: grace,
		jobs:  map[string]*progressJob{},
	}
}

func (h *progressHub) job(id string) *progressJob {
	j, ok := h.jobs[id]
	if !ok {
		j = &progressJob{subs: map[chan Progress]struct{}{}}
		h.jobs[id] = j
	}
	return j
}

// Publish records the latest snapshot and forwards it to all subscribers.
// Slow subscribers have stale intermediate updates dropped; the snapshot
// itself always carries the full current state, so losing an intermediate
// message loses nothing. A terminal snapshot schedules the job's removal.
func (h *progressHub) Publish(id string, p Progress) {
	if id == "" {
		return
	}
	h.mu.Lock()
	j := h.job(id)
	j.last = p
	j.hasLast = true
	for ch := range j.subs {
		// drain one stale element if the buffer is full, then push
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
	h.mu.Unlock()

	if p.Terminal() {
		time.AfterFunc(h.grace, func() { h.drop(id) })
	}
}

// Subscribe attaches to a progress id, creating the job state when it does
// not exist yet (the channel is opened before the export request is sent).
// The returned snapshot is the last published one, if any. cancel detaches
// and must be called exactly once.
func (h *progressHub) Subscribe(id string) (last Progress, hasLast bool, updates <-chan Progress, cancel func()) {
	ch := make(chan Progress, 8)

	h.mu.Lock()
	j := h.job(id)
	j.subs[ch] = struct{}{}
	last, hasLast = j.last, j.hasLast
	h.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			h.mu.Lock()
			if j, ok := h.jobs[id]; ok {
				delete(j.subs, ch)
			}
			h.mu.Unlock()
		})
	}
	return last, hasLast, ch, cancel
}

// drop removes the job and closes all remaining subscriber channels.
func (h *progressHub) drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[id]
	if !ok {
		return
	}
	for ch := range j.subs {
		close(ch)
	}
	delete(h.jobs, id)
}
