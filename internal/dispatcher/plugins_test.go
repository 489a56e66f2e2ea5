package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/endpoint"
	"github.com/duet3d/dcsd/internal/model"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/plugin"
	"github.com/duet3d/dcsd/internal/session"
)

func testDispatcherWithPlugins(t *testing.T) *Dispatcher {
	t.Helper()
	store := model.NewStore(model.Snapshot{}, model.NewFanout())
	lock := model.NewLockManager()
	source := modelsource.NewFake(model.Snapshot{})
	sessions := session.NewManager()
	endpoints := endpoint.NewRegistry(t.TempDir())
	plugins, err := plugin.NewRegistry(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(plugins.Close)
	return New(store, lock, model.NewFanout(), source, sessions, plugins, endpoints, nil, nil)
}

func installFakePlugin(t *testing.T, d *Dispatcher, id string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := "id: " + id + "\nname: " + id + "\ncommand: /bin/echo\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0o644))

	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.ManagePlugins, connection.FileSystemAccess))
	resp := d.Dispatch(context.Background(), conn, envelope(t, "InstallPlugin", map[string]any{"dir": dir}))
	require.True(t, resp.Success, resp.ErrorMessage)
}

func TestDispatchGetPluginLogUnstartedIsEmpty(t *testing.T) {
	d := testDispatcherWithPlugins(t)
	installFakePlugin(t, d, "logtest")

	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.ManagePlugins))
	resp := d.Dispatch(context.Background(), conn, envelope(t, "GetPluginLog", map[string]any{"pluginId": "logtest"}))
	require.True(t, resp.Success, resp.ErrorMessage)
	assert.Equal(t, "", resp.Result)
}

func TestDispatchGetPluginLogUnknownPlugin(t *testing.T) {
	d := testDispatcherWithPlugins(t)
	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.ManagePlugins))

	resp := d.Dispatch(context.Background(), conn, envelope(t, "GetPluginLog", map[string]any{"pluginId": "nope"}))
	assert.False(t, resp.Success)
	assert.Equal(t, "NotFound", resp.ErrorType)
}
