// Package model implements the object-model store, its FIFO exclusive
// lock (spec §4.8), and the subscription fanout that diffs and delivers
// snapshots (spec §4.9). The model itself is kept as opaque, schemaless
// JSON (spec §9 "Dynamic typing at model edges") — only top-level keys are
// ever inspected, for the patch-key namespace and subscribe filters.
package model

import "github.com/segmentio/encoding/json"

// Snapshot is the top-level key namespace of the object model: "state",
// "move", "heat", "sensors", "job", etc. Values are left as decoded `any`
// (map[string]any / []any / scalars) so merge-patch diffing can recurse
// without knowing the printer's schema.
type Snapshot map[string]any

// Clone performs a structural deep-enough copy for snapshot isolation: the
// JSON decode tree is immutable in practice (nobody mutates a decoded
// map[string]any in place here), so Clone just needs to protect the
// top-level map from concurrent mutation by Store.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// DecodeSnapshot parses a full object-model JSON document into a Snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode serializes the snapshot back to a JSON object.
func (s Snapshot) Encode() (json.RawMessage, error) {
	return json.Marshal(map[string]any(s))
}

// DiffMergePatch computes the minimum RFC 7396 JSON merge patch that turns
// old into next, restricted to the given top-level keys (nil/empty means
// all keys). Returns nil if there is nothing to report (no restricted key
// changed).
func DiffMergePatch(old, next Snapshot, keys []string) map[string]any {
	var keySet map[string]struct{}
	if len(keys) > 0 {
		keySet = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			keySet[k] = struct{}{}
		}
	}

	patch := map[string]any{}
	for k, nv := range next {
		if keySet != nil {
			if _, ok := keySet[k]; !ok {
				continue
			}
		}
		ov, existed := old[k]
		if !existed {
			patch[k] = nv
			continue
		}
		if d := diffValue(ov, nv); d != noDiff {
			patch[k] = d
		}
	}
	for k := range old {
		if keySet != nil {
			if _, ok := keySet[k]; !ok {
				continue
			}
		}
		if _, stillPresent := next[k]; !stillPresent {
			patch[k] = nil // RFC 7396: null deletes the key
		}
	}

	if len(patch) == 0 {
		return nil
	}
	return patch
}

// noDiff is a sentinel returned by diffValue when two values are equal and
// nothing should be emitted for this key.
var noDiff = struct{}{}

// diffValue returns the RFC 7396 patch fragment for turning ov into nv, or
// noDiff if they are already equal. Only map[string]any recurses — arrays
// and scalars are always replaced wholesale, per RFC 7396 §2.
func diffValue(ov, nv any) any {
	om, oIsMap := ov.(map[string]any)
	nm, nIsMap := nv.(map[string]any)
	if !oIsMap || !nIsMap {
		if jsonEqual(ov, nv) {
			return noDiff
		}
		return nv
	}

	sub := map[string]any{}
	for k, nsub := range nm {
		osub, existed := om[k]
		if !existed {
			sub[k] = nsub
			continue
		}
		if d := diffValue(osub, nsub); d != noDiff {
			sub[k] = d
		}
	}
	for k := range om {
		if _, stillPresent := nm[k]; !stillPresent {
			sub[k] = nil
		}
	}
	if len(sub) == 0 {
		return noDiff
	}
	return sub
}

// ApplyMergePatch applies an RFC 7396 merge patch to a copy of target and
// returns that copy; target itself is left unchanged. Used by the store's
// patch path (applyTopLevel) and by tests verifying subscribe monotonicity
// (spec §8, invariant 7).
func ApplyMergePatch(target any, patch any) any {
	pm, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	tm, ok := target.(map[string]any)
	if !ok {
		tm = map[string]any{}
	} else {
		cloned := make(map[string]any, len(tm))
		for k, v := range tm {
			cloned[k] = v
		}
		tm = cloned
	}
	for k, v := range pm {
		if v == nil {
			delete(tm, k)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			tm[k] = ApplyMergePatch(tm[k], sub)
		} else {
			tm[k] = v
		}
	}
	return tm
}

// jsonEqual compares two decoded JSON values structurally by re-marshaling.
// The model tree is small enough per top-level key that this is simpler and
// safer than hand-rolling equality across map/slice/scalar/float edge cases.
func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
