package processor

import (
	"context"
	"net"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/endpoint"
	"github.com/duet3d/dcsd/internal/wire"
)

func TestEndpointProcessorRegisterAndBridge(t *testing.T) {
	server, pluginSide := net.Pipe()

	conn := connection.New(server)
	conn.SetMode(connection.ModePluginHttpEndpoint)
	registry := endpoint.NewRegistry(t.TempDir())

	p := NewEndpoint(conn, registry, nil)
	ctx := context.Background()

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	reg, err := json.Marshal(wire.EndpointRegistration{HTTPMethod: "GET", Namespace: "myplugin", Path: "/status"})
	require.NoError(t, err)
	_, err = pluginSide.Write(reg)
	require.NoError(t, err)

	var ack wire.Response
	require.NoError(t, json.NewDecoder(pluginSide).Decode(&ack))
	require.True(t, ack.Success)
	socketPath, ok := ack.Result.(string)
	require.True(t, ok)
	require.NotEmpty(t, socketPath)

	front, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer front.Close()

	reqFrame, err := json.Marshal(wire.HTTPRequestFrame{Method: "GET"})
	require.NoError(t, err)
	_, err = front.Write(reqFrame)
	require.NoError(t, err)

	var forwarded wire.HTTPRequestFrame
	require.NoError(t, json.NewDecoder(pluginSide).Decode(&forwarded))
	assert.Equal(t, "GET", forwarded.Method)

	respFrame, err := json.Marshal(wire.HTTPResponseFrame{StatusCode: 200})
	require.NoError(t, err)
	_, err = pluginSide.Write(respFrame)
	require.NoError(t, err)

	var gotResp wire.HTTPResponseFrame
	require.NoError(t, json.NewDecoder(front).Decode(&gotResp))
	assert.Equal(t, 200, gotResp.StatusCode)

	conn.Close()
	pluginSide.Close()
	<-runDone
}
