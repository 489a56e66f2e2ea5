package model

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// PushMode mirrors wire.SubscribeOptions.Mode ("Full"/"Patch") without the
// fanout package depending on wire; the subscribe processor translates
// between them.
type PushMode int

const (
	PushFull PushMode = iota
	PushPatch
)

// Frame is what the fanout hands the subscribe processor to push: either a
// full snapshot or a merge-patch.
type Frame struct {
	Mode  PushMode
	Value any // Snapshot (full) or map[string]any (patch)
}

// Subscriber is one Subscribe-mode connection's fanout registration.
type Subscriber struct {
	id      uint32
	mode    PushMode
	filter  []string
	limiter *rate.Limiter

	mu        sync.Mutex
	last      Snapshot // base for the next diff: what was actually last delivered
	latest    Snapshot // most recently published snapshot, may be ahead of last
	dirty     bool     // latest may differ from last, a frame may be owed
	sentFirst bool     // frame 0 (always the subscribe-time snapshot) has been delivered
	notify    chan struct{}
	closed    bool
}

// Fanout is the publish point described in spec §4.9: "model changed, here
// is the new snapshot." Subscribers register and unregister as their
// connections open and close.
type Fanout struct {
	mu   sync.Mutex
	subs map[uint32]*Subscriber
}

// NewFanout builds an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{subs: make(map[uint32]*Subscriber)}
}

// Subscribe registers connID with the given mode and key filter; initial is
// the base snapshot delivered as frame 0 by the caller (spec §4.5).
// limiterRate/burst throttle how often a Full-mode subscriber is handed a
// fresh complete snapshot under rapid churn (SPEC_FULL domain-stack
// addition); Patch frames are never throttled away, only coalesced into the
// latest snapshot, so no key is ever silently dropped.
func (f *Fanout) Subscribe(connID uint32, mode PushMode, filter []string, initial Snapshot, limiterRate rate.Limit, burst int) *Subscriber {
	s := &Subscriber{
		id:      connID,
		mode:    mode,
		filter:  filter,
		limiter: rate.NewLimiter(limiterRate, burst),
		last:    initial.Clone(),
		latest:  initial.Clone(),
		notify:  make(chan struct{}, 1),
		// Frame 0 is always the subscribe-time snapshot, in both Full and
		// Patch mode (spec §4.5: "on init: deliver a full object-model
		// snapshot"), so a subscriber that connects to an already-idle
		// printer still gets its baseline immediately instead of waiting
		// for the next model mutation. sentFirst drives that first
		// delivery; dirty starts false so nothing further is owed until a
		// Publish actually changes latest.
		dirty: false,
	}
	f.mu.Lock()
	f.subs[connID] = s
	f.mu.Unlock()
	return s
}

// Unsubscribe removes connID's registration, freeing its pending slot.
func (f *Fanout) Unsubscribe(connID uint32) {
	f.mu.Lock()
	s, ok := f.subs[connID]
	delete(f.subs, connID)
	f.mu.Unlock()
	if ok {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
}

// Publish records next as every subscriber's most recently known snapshot
// (spec §4.9). The patch or full frame actually delivered is computed
// lazily by Next, against whatever is current at send time — see enqueue.
func (f *Fanout) Publish(next Snapshot) {
	f.mu.Lock()
	subs := make([]*Subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.enqueue(next)
	}
}

// enqueue records next as the subscriber's latest known snapshot,
// overwriting whatever was recorded before. It intentionally does NOT
// compute a patch here: diffing against a fixed base at enqueue time and
// merging successive diffs can leave a stale value in the pending slot
// when an intermediate change is later reverted (spec §8 invariant 8) —
// e.g. idle → printing → idle collapses the "idle → printing" and
// "printing → idle" diffs into a spurious patch instead of the empty one
// the true net change implies. Deferring the diff to Next, computed
// against the latest snapshot at the moment it is actually sent, is
// always correct because it only ever compares two real snapshots, never
// two patches.
func (s *Subscriber) enqueue(next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.latest = next.Clone()
	s.dirty = true
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until the subscriber's latest snapshot differs from what it
// last delivered (or ctx is cancelled), then returns the frame to push.
// The caller (the subscribe processor's sender loop) must wait for the
// client's ack frame before calling Next again — that is the backpressure
// contract: "the server must not push frame N+1 before acknowledge-N is
// received." Full-mode pushes are additionally rate-limited so a storm of
// model updates doesn't re-send the whole model on every tick; Patch-mode
// pushes are never delayed, and an empty diff (the net change across the
// collapsed window was a no-op) is skipped rather than sent.
func (s *Subscriber) Next(ctx context.Context) (Frame, bool) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Frame{}, false
		}

		// Frame 0 is always the snapshot frozen at Subscribe time (s.last,
		// which enqueue never touches), not whatever has accumulated in
		// s.latest since — a subscriber must see the baseline it connected
		// to first, even if the model already moved on before it read.
		if !s.sentFirst {
			baseline := s.last.Clone()
			s.sentFirst = true
			s.mu.Unlock()
			if s.mode == PushFull {
				if err := s.limiter.Wait(ctx); err != nil {
					return Frame{}, false
				}
			}
			return Frame{Mode: PushFull, Value: baseline}, true
		}

		if !s.dirty {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-ctx.Done():
				return Frame{}, false
			}
		}

		latest := s.latest
		s.dirty = false
		if s.mode == PushFull {
			s.last = latest.Clone()
			s.mu.Unlock()
			if err := s.limiter.Wait(ctx); err != nil {
				return Frame{}, false
			}
			return Frame{Mode: PushFull, Value: latest.Clone()}, true
		}

		last := s.last
		s.mu.Unlock()

		patch := DiffMergePatch(last, latest, s.filter)
		s.mu.Lock()
		s.last = latest.Clone()
		s.mu.Unlock()
		if patch == nil {
			continue // net change since last delivery was empty
		}
		return Frame{Mode: PushPatch, Value: patch}, true
	}
}

// applyTopLevel applies a top-level RFC 7396 merge patch to a Snapshot,
// recursing into nested objects via ApplyMergePatch.
func applyTopLevel(s Snapshot, patch map[string]any) Snapshot {
	result := s.Clone()
	for k, v := range patch {
		if v == nil {
			delete(result, k)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			result[k] = ApplyMergePatch(result[k], sub)
		} else {
			result[k] = v
		}
	}
	return result
}
