package browser

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

const quiet = 20 * time.Millisecond

func sent(id string) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{RequestID: network.RequestID(id)}
}

func finished(id string) *network.EventLoadingFinished {
	return &network.EventLoadingFinished{RequestID: network.RequestID(id)}
}

func failed(id string) *network.EventLoadingFailed {
	return &network.EventLoadingFailed{RequestID: network.RequestID(id)}
}

func assertIdleWithin(t *testing.T, tr *idleTracker, d time.Duration) {
	t.Helper()
	select {
	case <-tr.Idle():
	case <-time.After(d):
		t.Fatal("tracker did not signal idle")
	}
}

func assertNotIdleFor(t *testing.T, tr *idleTracker, d time.Duration) {
	t.Helper()
	select {
	case <-tr.Idle():
		t.Fatal("tracker signaled idle too early")
	case <-time.After(d):
	}
}

func TestIdleTracker_SignalsAfterQuietPeriod(t *testing.T) {
	tr := newIdleTracker(quiet)
	tr.Handle(sent("1"))
	tr.Handle(finished("1"))
	tr.Arm()
	assertIdleWithin(t, tr, 10*quiet)
}

func TestIdleTracker_NotArmedNeverSignals(t *testing.T) {
	tr := newIdleTracker(quiet)
	tr.Handle(sent("1"))
	tr.Handle(finished("1"))
	assertNotIdleFor(t, tr, 3*quiet)
}

func TestIdleTracker_InflightBlocksSignal(t *testing.T) {
	tr := newIdleTracker(quiet)
	tr.Handle(sent("1"))
	tr.Handle(sent("2"))
	tr.Handle(finished("1"))
	tr.Arm()
	assertNotIdleFor(t, tr, 3*quiet)

	tr.Handle(finished("2"))
	assertIdleWithin(t, tr, 10*quiet)
}

func TestIdleTracker_NewRequestResetsClock(t *testing.T) {
	tr := newIdleTracker(10 * quiet)
	tr.Arm()

	// Keep interrupting the quiet period before it elapses.
	for i := 0; i < 3; i++ {
		time.Sleep(quiet)
		tr.Handle(sent("r"))
		time.Sleep(quiet)
		tr.Handle(finished("r"))
	}

	select {
	case <-tr.Idle():
		t.Fatal("tracker signaled idle while requests kept arriving")
	default:
	}

	assertIdleWithin(t, tr, 30*quiet)
}

func TestIdleTracker_FailedRequestCountsAsDone(t *testing.T) {
	tr := newIdleTracker(quiet)
	tr.Handle(sent("1"))
	tr.Arm()
	assertNotIdleFor(t, tr, 3*quiet)

	tr.Handle(failed("1"))
	assertIdleWithin(t, tr, 10*quiet)
}

func TestIdleTracker_NoRequestsAtAll(t *testing.T) {
	tr := newIdleTracker(quiet)
	tr.Arm()
	assertIdleWithin(t, tr, 10*quiet)
}
