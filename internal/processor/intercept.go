package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/segmentio/encoding/json"
	"golang.org/x/time/rate"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/dispatcher"
	"github.com/duet3d/dcsd/internal/intercept"
	"github.com/duet3d/dcsd/internal/wire"
)

var verdictKinds = map[string]struct{}{
	string(wire.VerdictIgnore):  {},
	string(wire.VerdictCancel):  {},
	string(wire.VerdictResolve): {},
}

// Intercept drives one Intercept-mode connection through the
// Idle/Offered/AwaitingVerdict/Resolving cycle of spec §4.4. While
// awaiting a verdict the connection may also submit auxiliary commands
// (any ordinary CommandEnvelope frame); no frames are read in Idle. They are
// dispatched normally but rate-limited so a client can't use the window to
// flood the dispatcher.
type Intercept struct {
	conn        *connection.Connection
	d           *dispatcher.Dispatcher
	interceptor *intercept.Interceptor
	auxLimiter  *rate.Limiter
	log         *slog.Logger
}

// NewIntercept builds an Intercept-mode processor. auxRate/auxBurst bound
// the auxiliary-command rate during AwaitingVerdict (spec §4.4, SPEC_FULL
// domain-stack addition grounded on x/time/rate).
func NewIntercept(conn *connection.Connection, d *dispatcher.Dispatcher, interceptor *intercept.Interceptor, auxRate rate.Limit, auxBurst int, log *slog.Logger) *Intercept {
	return &Intercept{
		conn: conn, d: d, interceptor: interceptor,
		auxLimiter: rate.NewLimiter(auxRate, auxBurst),
		log:        log,
	}
}

func (p *Intercept) Mode() connection.Mode { return connection.ModeIntercept }

// Run blocks in Idle waiting for the broker to offer a code, writes the
// offer, then alternates between reading auxiliary commands and watching
// for the client's verdict frame until one arrives, and repeats.
func (p *Intercept) Run(ctx context.Context) error {
	for {
		code, ok := p.interceptor.NextOffer(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := p.conn.WriteFrame(code); err != nil {
			return dcserr.New(dcserr.IoError, "write code offer: %v", err)
		}
		p.interceptor.AwaitingVerdict()

		if err := p.awaitVerdict(ctx); err != nil {
			return err
		}
	}
}

// awaitVerdict reads frames until one is a Verdict, dispatching every other
// frame as an auxiliary command.
func (p *Intercept) awaitVerdict(ctx context.Context) error {
	for {
		var raw json.RawMessage
		if err := p.conn.ReadFrame(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				// spec §4.4: disconnect while awaiting a verdict resolves as
				// Ignore so the broker's Offer call doesn't block forever.
				p.interceptor.SubmitVerdict(wire.Verdict{Command: wire.VerdictIgnore})
				return nil
			}
			return dcserr.New(dcserr.ProtocolError, "read frame: %v", err)
		}

		var disc struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(raw, &disc); err != nil {
			return dcserr.New(dcserr.ProtocolError, "malformed frame: %v", err)
		}

		if _, isVerdict := verdictKinds[disc.Command]; isVerdict {
			var v wire.Verdict
			if err := json.Unmarshal(raw, &v); err != nil {
				return dcserr.New(dcserr.DeserializationError, "malformed verdict: %v", err)
			}
			p.interceptor.SubmitVerdict(v)
			return nil
		}

		if err := p.auxLimiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		var env wire.CommandEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return dcserr.New(dcserr.DeserializationError, "malformed auxiliary command: %v", err)
		}
		resp := p.d.Dispatch(ctx, p.conn, env)
		if err := p.conn.WriteFrame(resp); err != nil {
			return dcserr.New(dcserr.IoError, "write auxiliary response: %v", err)
		}
	}
}
