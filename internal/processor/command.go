// Package processor implements the per-mode connection loops described in
// spec §4.3–§4.6, generalized from the teacher's handleConn switch: each
// mode gets its own Processor implementation driven by the accept loop
// until the connection closes or a fatal protocol error occurs.
package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/dispatcher"
	"github.com/duet3d/dcsd/internal/wire"
)

// Command implements the strict serial request/response loop of spec §4.3:
// read one command, dispatch it, write its response, repeat. No
// pipelining, no correlation id — exactly one in-flight request per
// connection (spec.md's resolved Open Question).
type Command struct {
	conn *connection.Connection
	d    *dispatcher.Dispatcher
	log  *slog.Logger
}

// NewCommand builds a Command-mode processor.
func NewCommand(conn *connection.Connection, d *dispatcher.Dispatcher, log *slog.Logger) *Command {
	return &Command{conn: conn, d: d, log: log}
}

func (c *Command) Mode() connection.Mode { return connection.ModeCommand }

// Run loops until the peer disconnects or a malformed frame forces a
// ProtocolError close (spec §7: ProtocolError is fatal, every other error
// type is reported and the connection stays open).
func (c *Command) Run(ctx context.Context) error {
	for {
		var env wire.CommandEnvelope
		if err := c.conn.ReadFrame(&env); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return dcserr.New(dcserr.ProtocolError, "read command frame: %v", err)
		}

		resp := c.d.Dispatch(ctx, c.conn, env)
		if err := c.conn.WriteFrame(resp); err != nil {
			return dcserr.New(dcserr.IoError, "write response: %v", err)
		}
		if c.log != nil && !resp.Success {
			c.log.Debug("command failed", "connection", c.conn.ID, "command", env.Command, "errorType", resp.ErrorType)
		}
	}
}
