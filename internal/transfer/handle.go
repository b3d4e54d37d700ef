// Package transfer implements TransferHandle/Part and the download/upload
// orchestration described in SPEC_FULL.md §4.G/§4.H.
package transfer

import (
	"sync"
	"sync/atomic"
)

// Status is the terminal-or-not state of a TransferHandle.
type Status string

const (
	NotStarted Status = "NotStarted"
	InProgress Status = "InProgress"
	Completed  Status = "Completed"
	Failed     Status = "Failed"
	Cancelled  Status = "Cancelled"
	Aborted    Status = "Aborted"
)

// Part is one chunk of a transfer.
type Part struct {
	Number   int
	Offset   int64
	Size     int64
	ETag     string
	Attempts int
	Err      error
}

// Handle tracks one download or upload as it moves its Parts between the
// queued, pending, completed, and failed buckets.
type Handle struct {
	mu   sync.Mutex
	cond *sync.Cond

	Key      string
	UploadID string // non-empty only for a multipart upload in progress

	status Status

	queued    map[int]*Part
	pending   map[int]*Part
	completed map[int]*Part
	failed    map[int]*Part

	cancelled atomic.Bool
}

// NewHandle creates a handle in the NotStarted state.
func NewHandle(key string) *Handle {
	h := &Handle{
		Key:       key,
		status:    NotStarted,
		queued:    make(map[int]*Part),
		pending:   make(map[int]*Part),
		completed: make(map[int]*Part),
		failed:    make(map[int]*Part),
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddQueuePart registers a part that has been enqueued to the worker pool
// but not yet picked up.
func (h *Handle) AddQueuePart(p *Part) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queued[p.Number] = p
}

// AddPendingPart moves a part from queued to pending, transitioning the
// handle NotStarted -> InProgress on the first part picked up.
func (h *Handle) AddPendingPart(p *Part) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.queued, p.Number)
	h.pending[p.Number] = p
	if h.status == NotStarted {
		h.status = InProgress
	}
}

// ChangePartToCompleted records a part's success. Returns true iff this
// call is the one that transitioned the whole handle to Completed (so the
// caller knows it is responsible for any finalization, e.g. completing a
// multipart upload).
func (h *Handle) ChangePartToCompleted(number int, etag string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := h.pending[number]
	if p == nil {
		p = &Part{Number: number}
	}
	delete(h.pending, number)
	p.ETag = etag
	h.completed[number] = p

	justFinished := false
	if h.status == InProgress && len(h.queued) == 0 && len(h.pending) == 0 && len(h.failed) == 0 {
		h.status = Completed
		justFinished = true
	}
	h.cond.Broadcast()
	return justFinished
}

// ChangePartToFailed records a part's exhausted-retry failure. Returns true
// iff this call transitioned the handle to Failed.
func (h *Handle) ChangePartToFailed(number int, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := h.pending[number]
	if p == nil {
		p = &Part{Number: number}
	}
	delete(h.pending, number)
	p.Err = err
	h.failed[number] = p

	justFailed := false
	if h.status == InProgress {
		h.status = Failed
		justFailed = true
	}
	h.cond.Broadcast()
	return justFailed
}

// Cancel flips the handle to Cancelled from any non-terminal-for-upload
// state and sets the cancel flag workers consult via ShouldContinue.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled.Store(true)
	switch h.status {
	case Completed, Aborted:
		// terminal; no regression
	default:
		h.status = Cancelled
	}
	h.cond.Broadcast()
}

// MarkAborted transitions Cancelled -> Aborted, the one permitted escape
// from a terminal status, after the remote multipart upload has been
// explicitly aborted. Returns false if the handle was not Cancelled.
func (h *Handle) MarkAborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != Cancelled {
		return false
	}
	h.status = Aborted
	h.cond.Broadcast()
	return true
}

// ShouldContinue reports whether a worker should keep processing parts for
// this handle.
func (h *Handle) ShouldContinue() bool {
	return !h.cancelled.Load()
}

// Status returns the handle's current status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Failures returns a snapshot of the currently failed parts.
func (h *Handle) Failures() []*Part {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Part, 0, len(h.failed))
	for _, p := range h.failed {
		out = append(out, p)
	}
	return out
}

// CompletedParts returns a snapshot of completed parts, unsorted.
func (h *Handle) CompletedParts() []*Part {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Part, 0, len(h.completed))
	for _, p := range h.completed {
		out = append(out, p)
	}
	return out
}

// WaitUntilFinished blocks until the handle reaches a terminal status with
// no part left pending, then returns that status.
func (h *Handle) WaitUntilFinished() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		terminal := h.status == Completed || h.status == Failed || h.status == Cancelled || h.status == Aborted
		if terminal && len(h.pending) == 0 {
			return h.status
		}
		h.cond.Wait()
	}
}
