package dispatcher

import (
	"context"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/model"
)

type patchModelRequest struct {
	Patch map[string]any `json:"patch"`
}

type setModelRequest struct {
	Model map[string]any `json:"model"`
}

func (d *Dispatcher) registerModelKinds() {
	modelModes := modes(connection.ModeCommand, connection.ModeIntercept)

	d.register(&Kind{
		Name: "GetObjectModel", AllowedModes: modelModes,
		Permissions: []connection.Permission{connection.ObjectModelRead},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			return d.Store.Get(), nil
		},
	})

	// LockObjectModel and UnlockObjectModel drive the lock manager
	// directly — they are deliberately NOT LockImplicit, since that flag
	// means "auto acquire, run, auto release," the opposite of what an
	// explicit multi-command hold requires.
	d.register(&Kind{
		Name: "LockObjectModel", AllowedModes: modelModes, ResultVoid: true,
		Permissions: []connection.Permission{connection.ObjectModelReadWrite},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			if err := d.Lock.Lock(ctx, conn.ID); err != nil {
				return nil, err
			}
			conn.SetHoldsModelLock(true)
			return nil, nil
		},
	})

	d.register(&Kind{
		Name: "UnlockObjectModel", AllowedModes: modelModes, ResultVoid: true,
		Permissions: []connection.Permission{connection.ObjectModelReadWrite},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			if err := d.Lock.Unlock(conn.ID); err != nil {
				return nil, err
			}
			conn.SetHoldsModelLock(false)
			return nil, nil
		},
	})

	d.register(&Kind{
		Name: "PatchObjectModel", AllowedModes: modelModes, ResultVoid: true, LockImplicit: true,
		Permissions: []connection.Permission{connection.ObjectModelReadWrite},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req patchModelRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad PatchObjectModel request: %v", err)
			}
			d.Store.ApplyPatch(req.Patch)
			return nil, nil
		},
	})

	d.register(&Kind{
		Name: "SetObjectModel", AllowedModes: modelModes, ResultVoid: true, LockImplicit: true,
		Permissions: []connection.Permission{connection.ObjectModelReadWrite},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req setModelRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad SetObjectModel request: %v", err)
			}
			d.Store.SetFull(model.Snapshot(req.Model))
			return nil, nil
		},
	})

	d.register(&Kind{
		Name: "SyncObjectModel", AllowedModes: modelModes, ResultVoid: true, LockImplicit: true,
		Permissions: []connection.Permission{connection.ObjectModelReadWrite},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			snap, err := d.Source.Snapshot(ctx)
			if err != nil {
				return nil, err
			}
			d.Store.SetFull(snap)
			return nil, nil
		},
	})
}
