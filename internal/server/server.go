// Package server ties every collaborator together into the accept loop
// described in spec §2–§4: listen on the command socket, handshake each
// connection into a mode, construct that mode's processor, and run it
// until the connection closes. Generalized from the teacher's
// daemon.Daemon/Run/handleConn.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/duet3d/dcsd/internal/config"
	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dispatcher"
	"github.com/duet3d/dcsd/internal/endpoint"
	"github.com/duet3d/dcsd/internal/intercept"
	"github.com/duet3d/dcsd/internal/model"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/handshake"
	"github.com/duet3d/dcsd/internal/plugin"
	"github.com/duet3d/dcsd/internal/processor"
	"github.com/duet3d/dcsd/internal/session"
	"github.com/duet3d/dcsd/internal/wire"
)

// Daemon is the central supervisor: one listener, one shared object model,
// one lock manager, one fanout, one dispatcher, shared across every
// accepted connection (spec §5: "the object model is a single shared
// mutable structure").
type Daemon struct {
	cfg config.Config
	log *slog.Logger

	Store      *model.Store
	Lock       *model.LockManager
	Fanout     *model.Fanout
	Source     modelsource.Source
	Sessions   *session.Manager
	Plugins    *plugin.Registry
	Endpoints  *endpoint.Registry
	Intercepts *intercept.Broker
	Dispatch   *dispatcher.Dispatcher

	authorized connection.Set

	listener net.Listener
}

// New builds a Daemon from cfg, wiring every collaborator (spec §1's
// "everything else is glue or a collaborator"). The shared store starts as
// an empty snapshot and GetObjectModel reads the store; source is consulted
// by SyncObjectModel (which copies its snapshot into the store) and by the
// code-submission commands. A BreakerSource-wrapped instance is the
// expected production value, a Fake is typical in tests.
func New(cfg config.Config, source modelsource.Source, log *slog.Logger) (*Daemon, error) {
	fanout := model.NewFanout()
	store := model.NewStore(model.Snapshot{}, fanout)
	lock := model.NewLockManager()
	sessions := session.NewManager()
	endpoints := endpoint.NewRegistry(cfg.EndpointSocketDir)
	broker := intercept.NewBroker()

	plugins, err := plugin.NewRegistry(cfg.PluginDir)
	if err != nil {
		return nil, err
	}

	authorized := make([]connection.Permission, 0, len(cfg.DefaultPermissions))
	for _, p := range cfg.DefaultPermissions {
		authorized = append(authorized, connection.Permission(p))
	}

	disp := dispatcher.New(store, lock, fanout, source, sessions, plugins, endpoints, broker, log)

	return &Daemon{
		cfg: cfg, log: log,
		Store: store, Lock: lock, Fanout: fanout, Source: source,
		Sessions: sessions, Plugins: plugins, Endpoints: endpoints, Intercepts: broker,
		Dispatch:   disp,
		authorized: connection.NewSet(authorized...),
	}, nil
}

// Serve removes any stale socket, starts listening, and accepts connections
// until ctx is cancelled or the listener errors.
func (d *Daemon) Serve(ctx context.Context) error {
	os.Remove(d.cfg.SocketPath)

	l, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return err
	}
	d.listener = l

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	if d.log != nil {
		d.log.Info("listening", "socket", d.cfg.SocketPath)
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go d.handleConn(ctx, conn)
	}
}

// Close stops accepting new connections and tears down the plugin
// registry's filesystem watcher.
func (d *Daemon) Close() error {
	d.Plugins.Close()
	if d.listener != nil {
		return d.listener.Close()
	}
	return nil
}

func (d *Daemon) handleConn(ctx context.Context, raw net.Conn) {
	conn := connection.New(raw)
	conn.PeerPID = peerPID(raw)
	defer conn.Close()

	result, err := handshake.Perform(conn, wire.ProtocolVersion, d.authorized)
	if err != nil {
		_ = conn.WriteFrame(wire.InitResponse{Success: false, ErrorMessage: err.Error()})
		if d.log != nil {
			d.log.Warn("handshake failed", "connection", conn.ID, "error", err)
		}
		return
	}

	proc, err := d.buildProcessor(conn, result)
	if err != nil {
		_ = conn.WriteFrame(wire.InitResponse{Success: false, ErrorMessage: err.Error()})
		return
	}
	conn.SetProcessor(proc)

	if err := conn.WriteFrame(wire.InitResponse{Success: true, SessionID: conn.ID}); err != nil {
		return
	}

	if d.log != nil {
		d.log.Info("connection established", "connection", conn.ID, "mode", proc.Mode(), "peerPID", conn.PeerPID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-conn.Context().Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := proc.Run(runCtx); err != nil && d.log != nil {
		d.log.Info("connection closed", "connection", conn.ID, "error", err)
	}
}

// buildProcessor constructs the mode-specific Processor negotiated at
// handshake, registering it with whatever shared collaborator owns that
// mode's state (the lock manager subscribes to close events, the fanout
// registers a Subscriber, the intercept broker registers an Interceptor).
func (d *Daemon) buildProcessor(conn *connection.Connection, result *handshake.Result) (connection.Processor, error) {
	conn.OnClose(func() { d.Lock.ForceRelease(conn.ID) })

	switch connection.Mode(result.Hello.Mode) {
	case connection.ModeCommand:
		return processor.NewCommand(conn, d.Dispatch, d.log), nil

	case connection.ModeIntercept:
		i := intercept.NewInterceptor(conn.ID, result.Hello.InterceptOptions)
		d.Intercepts.Register(i)
		conn.OnClose(func() { d.Intercepts.Unregister(i) })
		return processor.NewIntercept(conn, d.Dispatch, i, rate.Limit(20), 5, d.log), nil

	case connection.ModeSubscribe:
		opts := result.Hello.SubscribeOptions
		mode := model.PushFull
		if opts != nil && opts.Mode == wire.SubscribeModePatch {
			mode = model.PushPatch
		}
		var filter []string
		if opts != nil {
			filter = opts.Filter
		}
		initial := d.Store.Get()
		sub := d.Fanout.Subscribe(conn.ID, mode, filter, initial, rate.Limit(4), 2)
		conn.OnClose(func() { d.Fanout.Unsubscribe(conn.ID) })
		return processor.NewSubscribe(conn, sub, d.log), nil

	case connection.ModePluginHttpEndpoint:
		return processor.NewEndpoint(conn, d.Endpoints, d.log), nil

	case connection.ModePluginService:
		// A plugin-owned Command-mode connection in every respect except
		// that it identifies its owning plugin at handshake (hello.Plugin);
		// it shares the Command processor rather than needing its own.
		return processor.NewCommand(conn, d.Dispatch, d.log), nil

	default:
		return nil, errors.New("unreachable: handshake already validated mode")
	}
}

// peerPID reads SO_PEERCRED off a UNIX socket connection (spec §4.2:
// "PeerPID is read via SO_PEERCRED"). Returns 0 if conn isn't a UNIX
// socket or the credential lookup fails, which only degrades diagnostics,
// never authorization (authorization uses the daemon's configured default
// permission set — see DESIGN.md).
func peerPID(conn net.Conn) int32 {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0
	}
	var pid int32
	_ = raw.Control(func(fd uintptr) {
		cred, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err == nil {
			pid = cred.Pid
		}
	})
	return pid
}
