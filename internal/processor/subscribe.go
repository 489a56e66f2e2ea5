package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/model"
	"github.com/duet3d/dcsd/internal/wire"
)

// Subscribe drives one Subscribe-mode connection: push the current frame
// (full snapshot or merge-patch, per spec §4.5), wait for the client's ack,
// push the next pending frame, repeat. Exactly one frame is ever
// outstanding per subscriber — the ack gate is the backpressure mechanism
// spec §4.5 and §8 invariant 8 describe.
type Subscribe struct {
	conn *connection.Connection
	sub  *model.Subscriber
	log  *slog.Logger
}

// NewSubscribe builds a Subscribe-mode processor over an already-registered
// fanout subscription.
func NewSubscribe(conn *connection.Connection, sub *model.Subscriber, log *slog.Logger) *Subscribe {
	return &Subscribe{conn: conn, sub: sub, log: log}
}

func (p *Subscribe) Mode() connection.Mode { return connection.ModeSubscribe }

// Run pushes frames until the connection closes. The first frame is always
// whatever the fanout registration seeded as the subscriber's baseline
// (spec §4.5: "the first frame delivered is always a full snapshot").
func (p *Subscribe) Run(ctx context.Context) error {
	for {
		frame, ok := p.sub.Next(ctx)
		if !ok {
			return ctx.Err()
		}

		if err := p.conn.WriteFrame(frame.Value); err != nil {
			return dcserr.New(dcserr.IoError, "write model update: %v", err)
		}

		var ack wire.Ack
		if err := p.conn.ReadFrame(&ack); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return dcserr.New(dcserr.ProtocolError, "read ack: %v", err)
		}
		if !ack.Ack && p.log != nil {
			p.log.Warn("subscriber sent negative ack", "connection", p.conn.ID)
		}
	}
}
