package dispatcher

import (
	"context"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
)

type addHTTPEndpointRequest struct {
	HTTPMethod string `json:"httpMethod"`
	Namespace  string `json:"namespace"`
	Path       string `json:"path"`
	IsUpload   bool   `json:"isUpload"`
}

type removeHTTPEndpointRequest struct {
	HTTPMethod string `json:"httpMethod"`
	Namespace  string `json:"namespace"`
	Path       string `json:"path"`
}

// registerEndpointKinds registers AddHttpEndpoint/RemoveHttpEndpoint as
// PluginHttpEndpoint-mode-only, matching scenario S2: a Command-mode
// connection issuing either gets WrongMode. In practice the
// PluginHttpEndpoint processor performs the registration itself during
// its init step (spec §4.6) using the same Endpoints registry these
// handlers call; these kinds exist for the dispatcher's mode-enforcement
// contract and for any future auxiliary-command path that needs to
// re-register after a transient failure.
func (d *Dispatcher) registerEndpointKinds() {
	endpointOnly := modes(connection.ModePluginHttpEndpoint)

	d.register(&Kind{
		Name: "AddHttpEndpoint", AllowedModes: endpointOnly,
		Permissions: []connection.Permission{connection.RegisterHttpEndpoints},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req addHTTPEndpointRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad AddHttpEndpoint request: %v", err)
			}
			reg, err := d.Endpoints.Register(conn.ID, req.HTTPMethod, req.Namespace, req.Path, req.IsUpload)
			if err != nil {
				return nil, err
			}
			return reg.SocketPath, nil
		},
	})

	d.register(&Kind{
		Name: "RemoveHttpEndpoint", AllowedModes: endpointOnly, ResultVoid: true,
		Permissions: []connection.Permission{connection.RegisterHttpEndpoints},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req removeHTTPEndpointRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad RemoveHttpEndpoint request: %v", err)
			}
			return nil, d.Endpoints.Unregister(req.HTTPMethod, req.Namespace, req.Path)
		},
	})
}
