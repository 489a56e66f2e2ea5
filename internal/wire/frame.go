// Package wire implements the framing and codec layer described in spec
// §4.1: frames are UTF-8 JSON values concatenated with no delimiter and no
// length prefix. The boundary between frames is whatever the JSON decoder
// consumed to produce one value — the parser, not a length header, decides
// where a frame ends.
package wire

import (
	"bufio"
	"io"

	"github.com/segmentio/encoding/json"
)

// Reader streams discrete JSON frames off a byte source. It wraps a
// bufio.Reader feeding a json.Decoder in a loop; the decoder tracks its own
// read cursor across calls, which is what gives unprefixed frames their
// "shortest valid prefix" boundary semantics.
type Reader struct {
	buf *bufio.Reader
	dec *json.Decoder
}

// NewReader builds a frame Reader over r.
func NewReader(r io.Reader) *Reader {
	buf := bufio.NewReader(r)
	return &Reader{buf: buf, dec: json.NewDecoder(buf)}
}

// Decode reads the next frame and unmarshals it into v. Returns io.EOF when
// the peer has cleanly closed with no partial frame pending.
func (r *Reader) Decode(v any) error {
	return r.dec.Decode(v)
}

// Buffered returns an io.Reader over whatever raw bytes follow the last
// decoded frame. The json.Decoder may itself read ahead past the frame
// boundary into its own internal buffer before Decode returns, so those
// bytes are gone from buf by the time Buffered is called; dec.Buffered
// surfaces exactly that internal leftover, and chaining buf after it
// picks up anything the decoder hadn't pulled yet. Any non-JSON payload
// that follows a frame on the wire (an HTTP bridge request/response body,
// spec §4.6) must be read through this reader rather than the raw socket,
// or bytes already consumed into one of these two buffers would be
// silently skipped.
func (r *Reader) Buffered() io.Reader {
	return io.MultiReader(r.dec.Buffered(), r.buf)
}

// Writer serializes frames to a byte sink. Each Encode call does exactly one
// underlying Write, so callers serializing concurrently must hold their own
// mutex around it (Connection.WriteFrame does this).
type Writer struct {
	w io.Writer
}

// NewWriter builds a frame Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Encode marshals v and writes it as a single frame with no trailing
// delimiter, matching the concatenated-JSON-values wire format.
func (w *Writer) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}
