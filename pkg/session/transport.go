package session

import "context"

// Frame is one decoded request or encoded response. The concrete wire
// format (spec.md §6: a varint length prefix followed by a protobuf-style
// record) is explicitly out of scope; Frame only carries the already
// decoded/to-be-encoded payload bytes so pkg/session's dispatch logic does
// not depend on any particular codec.
type Frame struct {
	Payload []byte
}

// Transport is the contract a concrete wire codec implements against one
// client connection. A codec reads length-prefixed frames from the
// connection, enforces the configured maximum message length (oversized
// requests fail with a typed Unknown error per spec.md §6), and writes
// framed responses back.
type Transport interface {
	// ReadFrame blocks until a complete frame has been received or ctx is
	// cancelled. It returns a typed Unknown error for a frame exceeding the
	// configured maximum length.
	ReadFrame(ctx context.Context) (Frame, error)
	// WriteFrame writes one response frame.
	WriteFrame(ctx context.Context, f Frame) error
	// Close releases the underlying connection.
	Close() error
}

// MaxMessageLen is the default maximum frame payload length; daemon
// configuration may override it per spec.md §6.
const MaxMessageLen = 4 << 20
