// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/alif/pkg/types"
)

// Tracker holds the progress of one run. Readers load an immutable snapshot
// without locking; writers serialize on mu, copy the snapshot, change only
// their own category entry, and swap it in. Every change is also published
// as an ordered ProgressEvent to each subscriber.
type Tracker struct {
	runID  string
	logger *zap.Logger

	mu     sync.Mutex
	snap   atomic.Pointer[types.RunSnapshot]
	subs   []*subscriber
	closed bool
}

// NewTracker returns a tracker with every category in order pending.
func NewTracker(runID string, order []string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &types.RunSnapshot{
		RunID:      runID,
		Order:      append([]string(nil), order...),
		Categories: make(map[string]types.CategoryState, len(order)),
	}
	for _, key := range order {
		s.Categories[key] = types.CategoryState{Phase: types.PhasePending}
	}
	t := &Tracker{runID: runID, logger: logger}
	t.snap.Store(s)
	return t
}

// Snapshot returns the current immutable state.
func (t *Tracker) Snapshot() types.RunSnapshot {
	return *t.snap.Load()
}

// Subscribe returns a channel that receives every event published from now
// on, in order. Delivery never blocks the pipeline; undelivered events queue
// until read. The channel is closed after the run ends and the queue drains,
// or when ctx is done.
func (t *Tracker) Subscribe(ctx context.Context) <-chan types.ProgressEvent {
	sub := newSubscriber()
	t.mu.Lock()
	if t.closed {
		sub.close()
	} else {
		t.subs = append(t.subs, sub)
	}
	t.mu.Unlock()
	go sub.forward(ctx)
	return sub.out
}

// update applies fn to a copy of key's state and publishes ev. It refuses
// to touch a category that is already done, so the done flag is monotonic.
func (t *Tracker) update(key string, ev types.ProgressEvent, fn func(*types.CategoryState)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.snap.Load()
	st, ok := cur.Categories[key]
	if !ok || st.Done {
		return false
	}
	if fn != nil {
		st.Sources = append([]types.ScrapedSource(nil), st.Sources...)
		fn(&st)
	}
	t.store(cur, key, st)

	ev.Category = key
	if ev.Phase == "" {
		ev.Phase = st.Phase
	}
	t.publishLocked(ev)
	return true
}

// forceDone marks every unfinished category done and returns the keys it
// changed.
func (t *Tracker) forceDone() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []string
	for _, key := range t.snap.Load().Order {
		cur := t.snap.Load()
		st := cur.Categories[key]
		if st.Done {
			continue
		}
		st.Done = true
		st.Phase = types.PhaseDone
		st.Current = ""
		t.store(cur, key, st)
		changed = append(changed, key)
		t.publishLocked(types.ProgressEvent{Category: key, Kind: types.EventTimeout, Phase: types.PhaseDone, Detail: "Timed out"})
	}
	return changed
}

// store swaps in a new snapshot with key set to st. Callers hold mu.
func (t *Tracker) store(cur *types.RunSnapshot, key string, st types.CategoryState) {
	next := &types.RunSnapshot{
		RunID:      cur.RunID,
		Order:      cur.Order,
		Categories: make(map[string]types.CategoryState, len(cur.Categories)),
	}
	for k, v := range cur.Categories {
		next.Categories[k] = v
	}
	next.Categories[key] = st
	t.snap.Store(next)
}

func (t *Tracker) publishLocked(ev types.ProgressEvent) {
	if t.closed {
		return
	}
	ev.RunID = t.runID
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	t.logger.Debug("progress",
		zap.String("run", t.runID),
		zap.String("category", ev.Category),
		zap.String("kind", string(ev.Kind)),
		zap.String("phase", string(ev.Phase)),
		zap.String("engine", ev.Engine),
		zap.String("detail", ev.Detail),
	)
	for _, s := range t.subs {
		s.push(ev)
	}
}

// close ends every subscription once its queue drains. Later events are
// discarded.
func (t *Tracker) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, s := range t.subs {
		s.close()
	}
}

// subscriber is an unbounded FIFO between the tracker and one reader.
type subscriber struct {
	out  chan types.ProgressEvent
	wake chan struct{}

	mu     sync.Mutex
	queue  []types.ProgressEvent
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		out:  make(chan types.ProgressEvent),
		wake: make(chan struct{}, 1),
	}
}

func (s *subscriber) push(ev types.ProgressEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) forward(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}
