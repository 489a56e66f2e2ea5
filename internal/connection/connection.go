// Package connection owns the per-socket session: identity, permissions,
// mode, liveness, and the write-serialization and cancellation discipline
// every processor depends on (spec §3, §4.2, §5).
package connection

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/duet3d/dcsd/internal/wire"
)

// Processor drives one connection's per-mode frame loop until the
// connection closes or a fatal protocol error occurs.
type Processor interface {
	Mode() Mode
	Run(ctx context.Context) error
}

var nextID uint32

// NextID returns a fresh, process-wide unique connection id, the same
// atomic-counter idiom the teacher uses for instance ids.
func NextID() uint32 {
	return atomic.AddUint32(&nextID, 1)
}

// Connection is one accepted UNIX socket, past the handshake.
type Connection struct {
	ID      uint32
	PeerPID int32

	conn   net.Conn
	reader *wire.Reader
	writer *wire.Writer

	// writeMu serializes frame writes; a single reader goroutine per
	// connection means reads need no mutex (spec §5).
	writeMu sync.Mutex

	mu             sync.Mutex
	permissions    Set
	mode           Mode
	connected      bool
	holdsModelLock bool
	processor      Processor

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	onClose   []func()
}

// New wraps an accepted socket. The handshake fills in permissions, mode
// and processor once negotiation succeeds.
func New(conn net.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:        NextID(),
		conn:      conn,
		reader:    wire.NewReader(conn),
		writer:    wire.NewWriter(conn),
		connected: true,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context is cancelled the moment the connection starts closing, so every
// suspension point (read, lock acquire, code submit, model-update wait)
// observes it promptly (spec §5, §9).
func (c *Connection) Context() context.Context { return c.ctx }

// Conn exposes the underlying socket for components (e.g. the HTTP endpoint
// processor's request-body forwarding) that need raw access.
func (c *Connection) Conn() net.Conn { return c.conn }

// ReadFrame decodes the next JSON value from the socket.
func (c *Connection) ReadFrame(v any) error {
	return c.reader.Decode(v)
}

// RawBody returns an io.Reader over whatever bytes follow the last decoded
// frame, accounting for the decoder's internal read-ahead buffering (spec
// §4.6: an HTTP bridge request/response body immediately follows its
// framing JSON with no delimiter).
func (c *Connection) RawBody() io.Reader {
	return c.reader.Buffered()
}

// WriteFrame serializes and writes v as a single frame under the
// connection's write mutex (spec §4.1, §5).
func (c *Connection) WriteFrame(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.Encode(v)
}

func (c *Connection) SetPermissions(p Set) {
	c.mu.Lock()
	c.permissions = p
	c.mu.Unlock()
}

func (c *Connection) Permissions() Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permissions
}

func (c *Connection) SetMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}

func (c *Connection) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Connection) SetProcessor(p Processor) {
	c.mu.Lock()
	c.processor = p
	c.mu.Unlock()
}

func (c *Connection) Processor() Processor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processor
}

func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetHoldsModelLock is called by the dispatcher's LockObjectModel and
// UnlockObjectModel handlers.
func (c *Connection) SetHoldsModelLock(held bool) {
	c.mu.Lock()
	c.holdsModelLock = held
	c.mu.Unlock()
}

func (c *Connection) HoldsModelLock() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdsModelLock
}

// OnClose registers a cleanup callback invoked exactly once when the
// connection closes, in registration order. The model lock manager,
// intercept offer queue, subscription fanout, and http endpoint registry
// all hook this to release resources they hold for the connection
// (spec §7: "All resources owned by a closing connection ... are released
// before the connection object is destroyed").
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// Close tears the connection down idempotently: cancels the context, runs
// close hooks in registration order, then closes the socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		hooks := c.onClose
		c.mu.Unlock()

		c.cancel()
		for _, fn := range hooks {
			fn()
		}
		err = c.conn.Close()
	})
	return err
}
