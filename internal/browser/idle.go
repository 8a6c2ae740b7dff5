package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// quietWindow is how long the network must stay silent before the page
// counts as settled.
const quietWindow = 500 * time.Millisecond

// activityTracker counts in-flight requests from CDP network events.
type activityTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
	now      func() time.Time
}

func newActivityTracker() *activityTracker {
	return &activityTracker{
		inflight: make(map[network.RequestID]struct{}),
		now:      time.Now,
	}
}

// observe is registered with chromedp.ListenTarget.
func (t *activityTracker) observe(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.started(e.RequestID)
	case *network.EventLoadingFinished:
		t.finished(e.RequestID)
	case *network.EventLoadingFailed:
		t.finished(e.RequestID)
	}
}

func (t *activityTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.last = t.now()
}

func (t *activityTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.last = t.now()
}

// quietSince reports whether nothing is in flight and nothing has happened
// since max(from, last activity) + quietWindow.
func (t *activityTracker) quietSince(from time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inflight) > 0 {
		return false
	}
	ref := from
	if t.last.After(ref) {
		ref = t.last
	}
	return t.now().Sub(ref) >= quietWindow
}

// wait polls until quiet or timeout.
func (t *activityTracker) wait(ctx context.Context, timeout time.Duration) error {
	start := t.now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		if t.quietSince(start) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrSettleTimeout
		case <-tick.C:
		}
	}
}
