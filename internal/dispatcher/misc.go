package dispatcher

import (
	"context"
	"log/slog"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
)

type writeMessageRequest struct {
	MessageType string `json:"messageType"` // "Success" | "Warning" | "Error"
	Content     string `json:"content"`
}

type setUpdateStatusRequest struct {
	Updating bool `json:"updating"`
}

func (d *Dispatcher) registerMiscKinds() {
	miscModes := modes(connection.ModeCommand, connection.ModeIntercept)

	d.register(&Kind{
		Name: "WriteMessage", AllowedModes: miscModes, ResultVoid: true,
		Permissions: []connection.Permission{connection.CommandExecution},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req writeMessageRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad WriteMessage request: %v", err)
			}
			if d.Log != nil {
				level := slog.LevelInfo
				switch req.MessageType {
				case "Warning":
					level = slog.LevelWarn
				case "Error":
					level = slog.LevelError
				}
				d.Log.Log(ctx, level, req.Content, "connection", conn.ID)
			}
			return nil, nil
		},
	})

	d.register(&Kind{
		Name: "SetUpdateStatus", AllowedModes: miscModes, ResultVoid: true,
		Permissions: []connection.Permission{connection.CommandExecution},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req setUpdateStatusRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad SetUpdateStatus request: %v", err)
			}
			d.Store.ApplyPatch(map[string]any{"state": map[string]any{"updating": req.Updating}})
			return nil, nil
		},
	})
}
