package dispatcher

import (
	"context"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
)

type installPluginRequest struct {
	Dir string `json:"dir"`
}

type pluginIDRequest struct {
	PluginID string `json:"pluginId"`
}

type setPluginDataRequest struct {
	PluginID string `json:"pluginId"`
	Data     any    `json:"data"`
}

func (d *Dispatcher) registerPluginKinds() {
	commandOnly := modes(connection.ModeCommand)

	d.register(&Kind{
		Name: "InstallPlugin", AllowedModes: commandOnly,
		Permissions: []connection.Permission{connection.ManagePlugins, connection.FileSystemAccess},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req installPluginRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad InstallPlugin request: %v", err)
			}
			manifest, err := d.Plugins.Install(req.Dir)
			if err != nil {
				return nil, err
			}
			return manifest.ID, nil
		},
	})

	d.register(&Kind{
		Name: "StartPlugin", AllowedModes: commandOnly, ResultVoid: true,
		Permissions: []connection.Permission{connection.ManagePlugins},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req pluginIDRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad StartPlugin request: %v", err)
			}
			return nil, d.Plugins.Start(req.PluginID)
		},
	})

	d.register(&Kind{
		Name: "StopPlugin", AllowedModes: commandOnly, ResultVoid: true,
		Permissions: []connection.Permission{connection.ManagePlugins},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req pluginIDRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad StopPlugin request: %v", err)
			}
			return nil, d.Plugins.Stop(req.PluginID)
		},
	})

	d.register(&Kind{
		Name: "UninstallPlugin", AllowedModes: commandOnly, ResultVoid: true,
		Permissions: []connection.Permission{connection.ManagePlugins, connection.FileSystemAccess},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req pluginIDRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad UninstallPlugin request: %v", err)
			}
			return nil, d.Plugins.Uninstall(req.PluginID)
		},
	})

	d.register(&Kind{
		Name: "SetPluginData", AllowedModes: commandOnly, ResultVoid: true,
		Permissions: []connection.Permission{connection.ManagePlugins},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req setPluginDataRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad SetPluginData request: %v", err)
			}
			return nil, d.Plugins.SetData(req.PluginID, req.Data)
		},
	})

	d.register(&Kind{
		Name: "GetPluginLog", AllowedModes: commandOnly,
		Permissions: []connection.Permission{connection.ManagePlugins},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req pluginIDRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad GetPluginLog request: %v", err)
			}
			log, err := d.Plugins.Log(req.PluginID)
			if err != nil {
				return nil, err
			}
			return string(log), nil
		},
	})
}
