package processor

import (
	"context"
	"net"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dispatcher"
	"github.com/duet3d/dcsd/internal/endpoint"
	"github.com/duet3d/dcsd/internal/model"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/session"
	"github.com/duet3d/dcsd/internal/wire"
)

func testDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	store := model.NewStore(model.Snapshot{"state": map[string]any{"status": "idle"}}, model.NewFanout())
	lock := model.NewLockManager()
	source := modelsource.NewFake(model.Snapshot{})
	return dispatcher.New(store, lock, model.NewFanout(), source, session.NewManager(), nil, endpoint.NewRegistry(t.TempDir()), nil, nil)
}

func TestCommandProcessorRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	conn := connection.New(server)
	conn.SetMode(connection.ModeCommand)
	conn.SetPermissions(connection.NewSet(connection.ObjectModelRead))

	d := testDispatcher(t)
	p := NewCommand(conn, d, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	req, err := json.Marshal(map[string]any{"command": "GetObjectModel"})
	require.NoError(t, err)
	_, err = client.Write(req)
	require.NoError(t, err)

	var resp wire.Response
	require.NoError(t, json.NewDecoder(client).Decode(&resp))
	assert.True(t, resp.Success)

	client.Close()
	<-done
}
