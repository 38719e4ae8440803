package browser

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// idleTracker implements the networkidle0 completion condition: the network
// counts as idle once no requests have been in flight for a full quiet
// period. Request lifecycle events are fed in via Handle; Arm starts the
// quiet-period clock (after navigation has begun, so a slow browser launch
// cannot signal idleness before the first request is ever sent).
type idleTracker struct {
	mu       sync.Mutex
	quiet    time.Duration
	inflight map[network.RequestID]struct{}
	timer    *time.Timer
	armed    bool
	done     bool
	idle     chan struct{}
}

func newIdleTracker(quiet time.Duration) *idleTracker {
	return &idleTracker{
		quiet:    quiet,
		inflight: make(map[network.RequestID]struct{}),
		idle:     make(chan struct{}),
	}
}

// Idle is closed once the network has stayed quiet for the full period.
func (t *idleTracker) Idle() <-chan struct{} { return t.idle }

// Handle consumes one CDP event. Intended as a chromedp.ListenTarget
// callback; events other than request lifecycle notifications are ignored.
func (t *idleTracker) Handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.begin(e.RequestID)
	case *network.EventLoadingFinished:
		t.end(e.RequestID)
	case *network.EventLoadingFailed:
		t.end(e.RequestID)
	}
}

// Arm starts idleness detection. Requests observed before Arm still count
// toward the in-flight set.
func (t *idleTracker) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = true
	if len(t.inflight) == 0 {
		t.scheduleLocked()
	}
}

func (t *idleTracker) begin(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.inflight[id] = struct{}{}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *idleTracker) end(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	delete(t.inflight, id)
	if t.armed && len(t.inflight) == 0 {
		t.scheduleLocked()
	}
}

func (t *idleTracker) scheduleLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.quiet, t.fire)
}

func (t *idleTracker) fire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || !t.armed || len(t.inflight) > 0 {
		return
	}
	t.done = true
	close(t.idle)
}
