// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"sync"
	"sync/atomic"
)

// aggregator delivers the flattened sources exactly once, the first time
// every category is observed done.
type aggregator struct {
	tracker    *Tracker
	onComplete CompletionFunc
	once       sync.Once
	done       atomic.Bool
}

func newAggregator(t *Tracker, fn CompletionFunc) *aggregator {
	return &aggregator{tracker: t, onComplete: fn}
}

// check delivers when the current snapshot is complete. Done flags never
// revert, so a complete snapshot stays complete.
func (a *aggregator) check() {
	snap := a.tracker.Snapshot()
	if !snap.AllDone() {
		return
	}
	a.once.Do(func() {
		a.done.Store(true)
		if a.onComplete != nil {
			a.onComplete(snap.Flatten())
		}
	})
}

func (a *aggregator) delivered() bool { return a.done.Load() }
