// Package endpoint implements the HTTP endpoint registry described in
// spec §4.6: plugins register a {httpMethod, namespace, path, isUpload}
// tuple and get back the filesystem path of a dedicated UNIX socket the
// (external) web front-end bridges HTTP requests through.
package endpoint

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/duet3d/dcsd/internal/dcserr"
)

// reservedNamespaces mirrors the core's own reserved HTTP prefixes that a
// plugin may never claim.
var reservedNamespaces = map[string]struct{}{
	"dsf":     {},
	"machine": {},
	"rr":      {},
}

// Registration is one registered endpoint tuple plus its bridge socket.
type Registration struct {
	HTTPMethod string
	Namespace  string
	Path       string
	IsUpload   bool
	SocketPath string

	listener net.Listener
	connID   uint32
}

func (r *Registration) key() string {
	return r.HTTPMethod + " " + r.Namespace + r.Path
}

// Registry is the map of live endpoint registrations, guarded by an
// internal mutex; reads are lock-free under copy-on-write (spec §5).
type Registry struct {
	socketDir string

	mu    sync.Mutex
	byKey map[string]*Registration
	view  atomicView
}

type atomicView struct {
	p atomic.Pointer[[]*Registration]
}

func (v *atomicView) set(regs []*Registration) {
	v.p.Store(&regs)
}

func (v *atomicView) get() []*Registration {
	if p := v.p.Load(); p != nil {
		return *p
	}
	return nil
}

// NewRegistry builds an empty registry whose bridge sockets are created
// under socketDir.
func NewRegistry(socketDir string) *Registry {
	return &Registry{socketDir: socketDir, byKey: make(map[string]*Registration)}
}

// Register creates the dedicated bridge socket and adds the tuple to the
// registry, atomically. A reserved namespace fails InvalidArgument, an
// already-registered tuple fails AlreadyExists, and a socket that cannot be
// created fails IoError.
func (r *Registry) Register(connID uint32, httpMethod, namespace, path string, isUpload bool) (*Registration, error) {
	if _, reserved := reservedNamespaces[namespace]; reserved {
		return nil, dcserr.New(dcserr.InvalidArgument, "namespace %q is reserved", namespace)
	}

	reg := &Registration{HTTPMethod: httpMethod, Namespace: namespace, Path: path, IsUpload: isUpload, connID: connID}

	r.mu.Lock()
	if _, exists := r.byKey[reg.key()]; exists {
		r.mu.Unlock()
		return nil, dcserr.New(dcserr.AlreadyExists, "endpoint %s %s%s already registered", httpMethod, namespace, path)
	}

	socketName := fmt.Sprintf("%s-%s-%s.sock", namespace, httpMethod, uuid.NewString())
	socketPath := filepath.Join(r.socketDir, socketName)
	os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		r.mu.Unlock()
		return nil, dcserr.New(dcserr.IoError, "create endpoint socket: %v", err)
	}
	reg.SocketPath = socketPath
	reg.listener = l

	r.byKey[reg.key()] = reg
	r.refreshView()
	r.mu.Unlock()
	return reg, nil
}

// Unregister removes the registration matching the tuple, whichever
// connection owns it, and closes its socket, atomically.
func (r *Registry) Unregister(httpMethod, namespace, path string) error {
	key := httpMethod + " " + namespace + path
	r.mu.Lock()
	reg, ok := r.byKey[key]
	if !ok {
		r.mu.Unlock()
		return dcserr.New(dcserr.NotFound, "no such endpoint: %s %s%s", httpMethod, namespace, path)
	}
	delete(r.byKey, key)
	r.refreshView()
	r.mu.Unlock()

	reg.listener.Close()
	os.Remove(reg.SocketPath)
	return nil
}

// UnregisterByConnection removes every registration owned by connID — the
// "on disconnect, the registry entry and its socket are removed
// atomically" rule in spec §4.6.
func (r *Registry) UnregisterByConnection(connID uint32) {
	r.mu.Lock()
	var owned []*Registration
	for key, reg := range r.byKey {
		if reg.connID == connID {
			owned = append(owned, reg)
			delete(r.byKey, key)
		}
	}
	if len(owned) > 0 {
		r.refreshView()
	}
	r.mu.Unlock()

	for _, reg := range owned {
		reg.listener.Close()
		os.Remove(reg.SocketPath)
	}
}

// refreshView rebuilds the copy-on-write read snapshot. Caller must hold
// r.mu.
func (r *Registry) refreshView() {
	regs := make([]*Registration, 0, len(r.byKey))
	for _, reg := range r.byKey {
		regs = append(regs, reg)
	}
	r.view.set(regs)
}

// List returns a lock-free snapshot of all live registrations, for the
// (external) web front-end's route table.
func (r *Registry) List() []*Registration {
	return r.view.get()
}

// Accept blocks for the next bridged HTTP request on reg's socket.
func (reg *Registration) Accept() (net.Conn, error) {
	return reg.listener.Accept()
}
