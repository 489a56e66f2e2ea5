package main

import (
	"fmt"
	"net"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/wire"
)

// client is a thin handshake+frame wrapper around a dialed command socket,
// the dcsctl equivalent of grove's writeRequest/readResponse pair.
type client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func dial(socketPath string) (*client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (c *client) Close() error { return c.conn.Close() }

// handshake performs the client-hello/init-response exchange and returns
// the session id assigned by the daemon.
func (c *client) handshake(mode string, perms []string, sub *wire.SubscribeOptions, intercept *wire.InterceptOptions) (uint32, error) {
	var hello wire.ServerHello
	if err := c.dec.Decode(&hello); err != nil {
		return 0, fmt.Errorf("read server-hello: %w", err)
	}

	if err := c.enc.Encode(wire.ClientHello{
		Mode:             mode,
		Version:          hello.Version,
		Permissions:      perms,
		SubscribeOptions: sub,
		InterceptOptions: intercept,
	}); err != nil {
		return 0, fmt.Errorf("write client-hello: %w", err)
	}

	var resp wire.InitResponse
	if err := c.dec.Decode(&resp); err != nil {
		return 0, fmt.Errorf("read init-response: %w", err)
	}
	if !resp.Success {
		return 0, fmt.Errorf("handshake rejected: %s", resp.ErrorMessage)
	}
	return resp.SessionID, nil
}

// command sends a single Command-mode request and returns its response.
// payload's fields are flattened alongside the command discriminator, per
// the CommandEnvelope shape every handler decodes from (nil payload sends
// a bare discriminator, for commands that take no arguments).
func (c *client) command(name string, payload any) (wire.Response, error) {
	env := map[string]any{"command": name}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return wire.Response{}, err
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return wire.Response{}, err
		}
		env["command"] = name
	}
	if err := c.enc.Encode(env); err != nil {
		return wire.Response{}, fmt.Errorf("write command: %w", err)
	}

	var resp wire.Response
	if err := c.dec.Decode(&resp); err != nil {
		return wire.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

func responseErr(resp wire.Response) error {
	if resp.Success {
		return nil
	}
	return fmt.Errorf("%s: %s", resp.ErrorType, resp.ErrorMessage)
}
