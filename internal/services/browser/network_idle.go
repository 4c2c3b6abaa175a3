package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const (
	// networkQuietWindow is how long the page must have no requests in flight
	networkQuietWindow        = 500 * time.Millisecond
	networkIdleCheckFrequency = 100 * time.Millisecond
)

// idleTracker counts in-flight requests from CDP network events
type idleTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	quiet        time.Duration
	now          func() time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
		quiet:        networkQuietWindow,
		now:          time.Now,
	}
}

// handle is registered with chromedp.ListenTarget
func (t *idleTracker) handle(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.started(ev.RequestID)
	case *network.EventLoadingFinished:
		t.finished(ev.RequestID)
	case *network.EventLoadingFailed:
		t.finished(ev.RequestID)
	}
}

func (t *idleTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Redirects reuse the request ID, so the set keeps the count honest
	t.inflight[id] = struct{}{}
	t.lastActivity = t.now()
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.lastActivity = t.now()
}

// idle reports whether nothing is in flight and the quiet window has passed
func (t *idleTracker) idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && t.now().Sub(t.lastActivity) >= t.quiet
}

func (t *idleTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// wait blocks until idle, ctx is done or timeout elapses
func (t *idleTracker) wait(ctx context.Context, timeout time.Duration) error {
	if t.idle() {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("network not idle after %s (%d requests pending)", timeout, t.pending())
		case <-ticker.C:
			if t.idle() {
				return nil
			}
		}
	}
}
