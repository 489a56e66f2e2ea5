package wire

import "github.com/segmentio/encoding/json"

// SubscribeModeFull and SubscribeModePatch are the two subscribe-options
// modes (spec §4.5).
const (
	SubscribeModeFull  = "Full"
	SubscribeModePatch = "Patch"
)

// ModelUpdate is a push frame on a Subscribe connection: either a full
// snapshot (first frame, and every frame in Full mode) or a JSON
// merge-patch (Patch mode, every frame after the first).
type ModelUpdate = json.RawMessage

// Ack is the frame a Subscribe client writes after processing a pushed
// update, gating the next push (spec §4.5 backpressure).
type Ack struct {
	Ack bool `json:"ack"`
}
