package dispatcher

import (
	"context"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
)

type addUserSessionRequest struct {
	Origin string `json:"origin"`
}

type removeUserSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (d *Dispatcher) registerSessionKinds() {
	commandOnly := modes(connection.ModeCommand)

	d.register(&Kind{
		Name: "AddUserSession", AllowedModes: commandOnly,
		Permissions: []connection.Permission{connection.ManageUserSessions},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req addUserSessionRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad AddUserSession request: %v", err)
			}
			s := d.Sessions.Add(req.Origin)
			return s.ID, nil
		},
	})

	d.register(&Kind{
		Name: "RemoveUserSession", AllowedModes: commandOnly, ResultVoid: true,
		Permissions: []connection.Permission{connection.ManageUserSessions},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req removeUserSessionRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad RemoveUserSession request: %v", err)
			}
			return nil, d.Sessions.Remove(req.SessionID)
		},
	})
}
