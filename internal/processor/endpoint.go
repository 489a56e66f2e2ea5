package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/endpoint"
	"github.com/duet3d/dcsd/internal/wire"
)

// Endpoint drives a PluginHttpEndpoint-mode connection (spec §4.6): the
// plugin first registers the route it wants to own, then the processor
// bridges every HTTP request the (external) web front-end sends on the
// dedicated socket to the plugin over this connection, one request at a
// time — the same strict-serial discipline as Command mode, since there is
// no correlation id to multiplex concurrent requests.
type Endpoint struct {
	conn      *connection.Connection
	endpoints *endpoint.Registry
	log       *slog.Logger

	reg *endpoint.Registration
}

// NewEndpoint builds a PluginHttpEndpoint processor.
func NewEndpoint(conn *connection.Connection, endpoints *endpoint.Registry, log *slog.Logger) *Endpoint {
	return &Endpoint{conn: conn, endpoints: endpoints, log: log}
}

func (p *Endpoint) Mode() connection.Mode { return connection.ModePluginHttpEndpoint }

// Run reads the registration frame, creates the bridge socket, and then
// accepts and bridges requests until the connection closes.
func (p *Endpoint) Run(ctx context.Context) error {
	var reg wire.EndpointRegistration
	if err := p.conn.ReadFrame(&reg); err != nil {
		return dcserr.New(dcserr.ProtocolError, "read endpoint registration: %v", err)
	}

	registration, err := p.endpoints.Register(p.conn.ID, reg.HTTPMethod, reg.Namespace, reg.Path, reg.IsUpload)
	if err != nil {
		_ = p.conn.WriteFrame(wire.Err(string(dcserr.AsWireError(err).Kind), err.Error()))
		return dcserr.New(dcserr.ProtocolError, "endpoint registration rejected: %v", err)
	}
	p.reg = registration
	p.conn.OnClose(func() { p.endpoints.UnregisterByConnection(p.conn.ID) })

	if err := p.conn.WriteFrame(wire.OK(registration.SocketPath)); err != nil {
		return dcserr.New(dcserr.IoError, "write registration ack: %v", err)
	}

	for {
		front, err := registration.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return dcserr.New(dcserr.IoError, "accept bridged request: %v", err)
		}
		if err := p.bridgeOne(ctx, front); err != nil {
			if p.log != nil {
				p.log.Warn("http bridge request failed", "connection", p.conn.ID, "error", err)
			}
		}
	}
}

// bridgeOne relays one HTTP request/response pair between the front-end's
// bridge socket connection and the plugin's main connection. Bodies are
// copied through each side's buffered frame reader (wire.Reader.Buffered /
// Connection.RawBody), not the raw socket directly, since the frame
// decoder may have already read ahead past the JSON value into the body
// that immediately follows it on the wire.
func (p *Endpoint) bridgeOne(ctx context.Context, front net.Conn) error {
	defer front.Close()

	frontReader := wire.NewReader(front)
	var reqFrame wire.HTTPRequestFrame
	if err := frontReader.Decode(&reqFrame); err != nil {
		return dcserr.New(dcserr.ProtocolError, "read bridged request: %v", err)
	}

	if err := p.conn.WriteFrame(reqFrame); err != nil {
		return dcserr.New(dcserr.IoError, "forward request to plugin: %v", err)
	}
	if reqFrame.BodyLength > 0 {
		if _, err := io.CopyN(p.conn.Conn(), frontReader.Buffered(), reqFrame.BodyLength); err != nil {
			return dcserr.New(dcserr.IoError, "forward request body: %v", err)
		}
	}

	var respFrame wire.HTTPResponseFrame
	if err := p.conn.ReadFrame(&respFrame); err != nil {
		return dcserr.New(dcserr.ProtocolError, "read plugin response: %v", err)
	}
	if err := wire.NewWriter(front).Encode(respFrame); err != nil {
		return dcserr.New(dcserr.IoError, "forward response to front-end: %v", err)
	}
	if respFrame.ContentLength > 0 {
		if _, err := io.CopyN(front, p.conn.RawBody(), respFrame.ContentLength); err != nil {
			return dcserr.New(dcserr.IoError, "forward response body: %v", err)
		}
	}
	return nil
}
