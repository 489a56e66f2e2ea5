// Package dispatcher maps a decoded command to its implementation,
// enforces the caller's permission set, and serializes lock-implicit
// commands through the object-model lock manager (spec §4.7).
package dispatcher

import (
	"context"
	"log/slog"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/endpoint"
	"github.com/duet3d/dcsd/internal/intercept"
	"github.com/duet3d/dcsd/internal/model"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/plugin"
	"github.com/duet3d/dcsd/internal/session"
	"github.com/duet3d/dcsd/internal/wire"
)

// Handler implements one command kind's behavior. raw is the full
// command frame's bytes, for the handler to decode its own fields from.
type Handler func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error)

// Kind describes one registered command: its handler, required
// permissions, whether it takes the model lock implicitly, and which
// connection modes may issue it (spec §4.3: "Only a whitelisted subset of
// command kinds is accepted in this mode").
type Kind struct {
	Name         string
	Handler      Handler
	ResultVoid   bool
	Permissions  []connection.Permission
	LockImplicit bool
	AllowedModes map[connection.Mode]struct{}
}

func modes(ms ...connection.Mode) map[connection.Mode]struct{} {
	set := make(map[connection.Mode]struct{}, len(ms))
	for _, m := range ms {
		set[m] = struct{}{}
	}
	return set
}

// Dispatcher owns the kind table and every collaborator a handler needs.
type Dispatcher struct {
	Store     *model.Store
	Lock      *model.LockManager
	Fanout    *model.Fanout
	Source    modelsource.Source
	Sessions  *session.Manager
	Plugins   *plugin.Registry
	Endpoints *endpoint.Registry
	Intercept *intercept.Broker
	Log       *slog.Logger

	kinds map[string]*Kind
}

// New builds a Dispatcher with every command kind registered. broker may be
// nil, in which case Code/SimpleCode never offer to an intercepting
// connection and always execute directly against source.
func New(store *model.Store, lock *model.LockManager, fanout *model.Fanout, source modelsource.Source,
	sessions *session.Manager, plugins *plugin.Registry, endpoints *endpoint.Registry, broker *intercept.Broker, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		Store: store, Lock: lock, Fanout: fanout, Source: source,
		Sessions: sessions, Plugins: plugins, Endpoints: endpoints, Intercept: broker, Log: log,
		kinds: make(map[string]*Kind),
	}
	d.registerCodeKinds()
	d.registerModelKinds()
	d.registerFileKinds()
	d.registerSessionKinds()
	d.registerEndpointKinds()
	d.registerPluginKinds()
	d.registerMiscKinds()
	return d
}

func (d *Dispatcher) register(k *Kind) {
	d.kinds[k.Name] = k
}

// Dispatch resolves env.Command, enforces mode and permissions, and
// invokes the handler — the sole authority that reads the permission set
// (spec §4.7: "handlers trust it").
func (d *Dispatcher) Dispatch(ctx context.Context, conn *connection.Connection, env wire.CommandEnvelope) wire.Response {
	kind, ok := d.kinds[env.Command]
	if !ok {
		return wire.Err(string(dcserr.UnknownCommand), "unknown command: "+env.Command)
	}

	if _, allowed := kind.AllowedModes[conn.Mode()]; !allowed {
		return wire.Err(string(dcserr.WrongMode), "command "+env.Command+" is not valid in "+string(conn.Mode())+" mode")
	}

	perms := conn.Permissions()
	if missing := perms.Missing(kind.Permissions...); len(missing) > 0 {
		return wire.Err(string(dcserr.PermissionDenied), permissionDeniedMessage(missing))
	}

	result, err := d.invoke(ctx, kind, conn, env.Raw)
	if err != nil {
		de := dcserr.AsWireError(err)
		return wire.Err(string(de.Kind), de.Message)
	}
	if kind.ResultVoid {
		return wire.Response{Success: true}
	}
	return wire.OK(result)
}

// invoke runs kind.Handler, wrapping it in the object-model lock when the
// kind is lock-implicit and the caller doesn't already hold an explicit
// lock (LockObjectModel takes the lock directly in its own handler and is
// never itself lock-implicit, so this never double-acquires).
func (d *Dispatcher) invoke(ctx context.Context, kind *Kind, conn *connection.Connection, raw json.RawMessage) (any, error) {
	if !kind.LockImplicit || conn.HoldsModelLock() {
		return kind.Handler(ctx, d, conn, raw)
	}

	if err := d.Lock.Lock(ctx, conn.ID); err != nil {
		return nil, err
	}
	defer func() {
		_ = d.Lock.Unlock(conn.ID)
	}()
	return kind.Handler(ctx, d, conn, raw)
}

func permissionDeniedMessage(missing []connection.Permission) string {
	msg := "missing permission"
	if len(missing) > 1 {
		msg += "s"
	}
	msg += ":"
	for i, p := range missing {
		if i > 0 {
			msg += ","
		}
		msg += " " + string(p)
	}
	return msg
}
