package handshake

import (
	"net"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/wire"
)

func pipe(t *testing.T) (server *connection.Connection, client net.Conn) {
	t.Helper()
	s, c := net.Pipe()
	t.Cleanup(func() { s.Close(); c.Close() })
	return connection.New(s), c
}

func readServerHello(t *testing.T, client net.Conn) {
	t.Helper()
	var hello wire.ServerHello
	require.NoError(t, json.NewDecoder(client).Decode(&hello))
	assert.Equal(t, wire.ProtocolVersion, hello.Version)
}

func writeClientHello(t *testing.T, client net.Conn, hello wire.ClientHello) {
	t.Helper()
	data, err := json.Marshal(hello)
	require.NoError(t, err)
	_, err = client.Write(data)
	require.NoError(t, err)
}

func TestPerformSuccess(t *testing.T) {
	conn, client := pipe(t)
	authorized := connection.NewSet(connection.ObjectModelRead, connection.CommandExecution)

	done := make(chan *Result, 1)
	errc := make(chan error, 1)
	go func() {
		res, err := Perform(conn, wire.ProtocolVersion, authorized)
		done <- res
		errc <- err
	}()

	readServerHello(t, client)
	writeClientHello(t, client, wire.ClientHello{
		Mode:        string(connection.ModeCommand),
		Version:     wire.ProtocolVersion,
		Permissions: []string{string(connection.ObjectModelRead)},
	})

	require.NoError(t, <-errc)
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, connection.ModeCommand, conn.Mode())
	assert.True(t, conn.Permissions().Has(connection.ObjectModelRead))
	assert.False(t, conn.Permissions().Has(connection.CommandExecution))
}

func TestPerformPermissionExceedsAuthorization(t *testing.T) {
	conn, client := pipe(t)
	authorized := connection.NewSet(connection.ObjectModelRead)

	done := make(chan error, 1)
	go func() {
		_, err := Perform(conn, wire.ProtocolVersion, authorized)
		done <- err
	}()

	readServerHello(t, client)
	writeClientHello(t, client, wire.ClientHello{
		Mode:        string(connection.ModeCommand),
		Version:     wire.ProtocolVersion,
		Permissions: []string{string(connection.ManagePlugins)},
	})

	err := <-done
	require.Error(t, err)
	assert.Equal(t, dcserr.PermissionDenied, err.(*dcserr.Error).Kind)
}

func TestPerformUnsupportedVersion(t *testing.T) {
	conn, client := pipe(t)

	done := make(chan error, 1)
	go func() {
		_, err := Perform(conn, wire.ProtocolVersion, connection.NewSet())
		done <- err
	}()

	readServerHello(t, client)
	writeClientHello(t, client, wire.ClientHello{
		Mode:    string(connection.ModeCommand),
		Version: wire.ProtocolVersion + 1,
	})

	err := <-done
	require.Error(t, err)
	assert.Equal(t, dcserr.ProtocolError, err.(*dcserr.Error).Kind)
}

func TestPerformUnrecognizedMode(t *testing.T) {
	conn, client := pipe(t)

	done := make(chan error, 1)
	go func() {
		_, err := Perform(conn, wire.ProtocolVersion, connection.NewSet())
		done <- err
	}()

	readServerHello(t, client)
	writeClientHello(t, client, wire.ClientHello{
		Mode:    "NotAMode",
		Version: wire.ProtocolVersion,
	})

	err := <-done
	require.Error(t, err)
	assert.Equal(t, dcserr.ProtocolError, err.(*dcserr.Error).Kind)
}

func TestPerformInvalidSubscribeOptions(t *testing.T) {
	conn, client := pipe(t)

	done := make(chan error, 1)
	go func() {
		_, err := Perform(conn, wire.ProtocolVersion, connection.NewSet())
		done <- err
	}()

	readServerHello(t, client)
	writeClientHello(t, client, wire.ClientHello{
		Mode:             string(connection.ModeSubscribe),
		Version:          wire.ProtocolVersion,
		SubscribeOptions: &wire.SubscribeOptions{Mode: "NotAMode"},
	})

	err := <-done
	require.Error(t, err)
	assert.Equal(t, dcserr.ProtocolError, err.(*dcserr.Error).Kind)
}

func TestPerformValidInterceptOptions(t *testing.T) {
	conn, client := pipe(t)

	done := make(chan *Result, 1)
	errc := make(chan error, 1)
	go func() {
		res, err := Perform(conn, wire.ProtocolVersion, connection.NewSet())
		done <- res
		errc <- err
	}()

	readServerHello(t, client)
	writeClientHello(t, client, wire.ClientHello{
		Mode:    string(connection.ModeIntercept),
		Version: wire.ProtocolVersion,
		InterceptOptions: &wire.InterceptOptions{
			Stage:    "PreCode",
			Channels: []string{"HTTP"},
		},
	})

	require.NoError(t, <-errc)
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, "PreCode", res.Hello.InterceptOptions.Stage)
}
