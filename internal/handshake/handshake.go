// Package handshake implements the server-hello / client-hello exchange
// (spec §4.2): write server-hello, read and validate client-hello, and
// hand back everything the caller needs to construct the mode's processor
// and write the init-response.
package handshake

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/wire"
)

// Result is the validated outcome of a successful handshake.
type Result struct {
	Hello       wire.ClientHello
	Permissions connection.Set
}

// Perform writes the server-hello, reads the client-hello, and validates
// it against protocolVersion and authorized (the permission set a
// connecting process is allowed to request; the server passes the same
// daemon-wide configured set for every connection, not a per-peer
// lookup). It does not write the init-response; the
// caller does that once it knows whether processor construction also
// succeeded, so a processor-construction failure can still produce a
// clean `{success:false}` instead of a half-initialized connection.
func Perform(conn *connection.Connection, protocolVersion uint32, authorized connection.Set) (*Result, error) {
	if err := conn.WriteFrame(wire.ServerHello{Version: protocolVersion}); err != nil {
		return nil, dcserr.New(dcserr.IoError, "write server-hello: %v", err)
	}

	var hello wire.ClientHello
	if err := conn.ReadFrame(&hello); err != nil {
		return nil, dcserr.New(dcserr.ProtocolError, "read client-hello: %v", err)
	}

	if hello.Version != protocolVersion {
		return nil, dcserr.New(dcserr.ProtocolError, "unsupported protocol version %d (server is %d)", hello.Version, protocolVersion)
	}

	mode := connection.Mode(hello.Mode)
	if !mode.Valid() {
		return nil, dcserr.New(dcserr.ProtocolError, "unrecognized mode %q", hello.Mode)
	}

	requested := stringsToPermissions(hello.Permissions)
	if !requested.IsSubsetOf(authorized) {
		missing := authorized.Missing(requested.Slice()...)
		return nil, dcserr.New(dcserr.PermissionDenied, "requested permissions exceed authorization: %v", missing)
	}

	if hello.SubscribeOptions != nil {
		if err := validateOptions(subscribeOptionsSchema, hello.SubscribeOptions); err != nil {
			return nil, dcserr.New(dcserr.ProtocolError, "invalid subscribe-options: %v", err)
		}
	}
	if hello.InterceptOptions != nil {
		if err := validateOptions(interceptOptionsSchema, hello.InterceptOptions); err != nil {
			return nil, dcserr.New(dcserr.ProtocolError, "invalid intercept-options: %v", err)
		}
	}

	conn.SetMode(mode)
	conn.SetPermissions(requested)

	return &Result{Hello: hello, Permissions: requested}, nil
}

func stringsToPermissions(ss []string) connection.Set {
	perms := make([]connection.Permission, len(ss))
	for i, s := range ss {
		perms[i] = connection.Permission(s)
	}
	return connection.NewSet(perms...)
}

// validateOptions re-marshals a typed options struct back to a generic
// document so the jsonschema validator can inspect it structurally (enum
// membership, required fields) in a way a plain Unmarshal into the typed
// struct never checks.
func validateOptions(schema *jsonschema.Schema, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("remarshal options: %w", err)
	}
	return validateJSON(schema, doc)
}
