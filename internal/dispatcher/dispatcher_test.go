package dispatcher

import (
	"context"
	"net"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/endpoint"
	"github.com/duet3d/dcsd/internal/model"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/session"
	"github.com/duet3d/dcsd/internal/wire"
)

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	store := model.NewStore(model.Snapshot{"state": map[string]any{"status": "idle"}}, model.NewFanout())
	lock := model.NewLockManager()
	source := modelsource.NewFake(model.Snapshot{})
	sessions := session.NewManager()
	endpoints := endpoint.NewRegistry(t.TempDir())
	return New(store, lock, model.NewFanout(), source, sessions, nil, endpoints, nil, nil)
}

func testConnection(t *testing.T, mode connection.Mode, perms connection.Set) *connection.Connection {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	conn := connection.New(server)
	conn.SetMode(mode)
	conn.SetPermissions(perms)
	return conn
}

func envelope(t *testing.T, command string, fields map[string]any) wire.CommandEnvelope {
	t.Helper()
	fields["command"] = command
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	var env wire.CommandEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := testDispatcher(t)
	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.CommandExecution))

	resp := d.Dispatch(context.Background(), conn, envelope(t, "NoSuchThing", map[string]any{}))
	assert.False(t, resp.Success)
	assert.Equal(t, "UnknownCommand", resp.ErrorType)
}

func TestDispatchWrongMode(t *testing.T) {
	d := testDispatcher(t)
	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.RegisterHttpEndpoints))

	resp := d.Dispatch(context.Background(), conn, envelope(t, "AddHttpEndpoint", map[string]any{
		"httpMethod": "GET", "namespace": "x", "path": "y",
	}))
	assert.False(t, resp.Success)
	assert.Equal(t, "WrongMode", resp.ErrorType)
}

func TestDispatchPermissionDenied(t *testing.T) {
	d := testDispatcher(t)
	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.CommandExecution))

	resp := d.Dispatch(context.Background(), conn, envelope(t, "InstallPlugin", map[string]any{"dir": "/tmp/x"}))
	assert.False(t, resp.Success)
	assert.Equal(t, "PermissionDenied", resp.ErrorType)
}

func TestDispatchLockLifecycle(t *testing.T) {
	d := testDispatcher(t)
	connA := testConnection(t, connection.ModeCommand, connection.NewSet(connection.ObjectModelReadWrite))
	connB := testConnection(t, connection.ModeCommand, connection.NewSet(connection.ObjectModelReadWrite))

	resp := d.Dispatch(context.Background(), connA, envelope(t, "LockObjectModel", map[string]any{}))
	require.True(t, resp.Success)
	assert.True(t, connA.HoldsModelLock())

	// B's lock attempt must block; run it in a goroutine and assert it
	// only completes after A unlocks.
	done := make(chan wire.Response, 1)
	go func() {
		done <- d.Dispatch(context.Background(), connB, envelope(t, "LockObjectModel", map[string]any{}))
	}()

	select {
	case <-done:
		t.Fatal("B's LockObjectModel must not complete while A holds the lock")
	default:
	}

	resp = d.Dispatch(context.Background(), connA, envelope(t, "UnlockObjectModel", map[string]any{}))
	require.True(t, resp.Success)
	assert.False(t, connA.HoldsModelLock())

	resp = <-done
	require.True(t, resp.Success)
	assert.True(t, connB.HoldsModelLock())
}

func TestDispatchGetObjectModel(t *testing.T) {
	d := testDispatcher(t)
	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.ObjectModelRead))

	resp := d.Dispatch(context.Background(), conn, envelope(t, "GetObjectModel", map[string]any{}))
	require.True(t, resp.Success)
	snap, ok := resp.Result.(model.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "idle", snap["state"].(map[string]any)["status"])
}

func TestDispatchPatchObjectModelIsLockImplicit(t *testing.T) {
	d := testDispatcher(t)
	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.ObjectModelReadWrite))

	resp := d.Dispatch(context.Background(), conn, envelope(t, "PatchObjectModel", map[string]any{
		"patch": map[string]any{"state": map[string]any{"status": "printing"}},
	}))
	require.True(t, resp.Success)
	assert.False(t, conn.HoldsModelLock(), "lock-implicit commands release automatically")

	snap := d.Store.Get()
	assert.Equal(t, "printing", snap["state"].(map[string]any)["status"])
}
