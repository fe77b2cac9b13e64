package wire

import "errors"

// Sentinel errors for the frame codec, matching the error taxonomy the
// session handler dispatches on. Wrap with fmt.Errorf("%w: ...") at the
// call site, never redefine new sentinels per call site.
var (
	// ErrInvalidLength: negative or disagreeing frame length.
	ErrInvalidLength = errors.New("wire: invalid length")
	// ErrLengthMismatch: body parse left bytes unread, or tried to read past body.
	ErrLengthMismatch = errors.New("wire: length mismatch")
	// ErrInvalidBody: malformed substructure (bad n_pairs, missing key, bad string).
	ErrInvalidBody = errors.New("wire: invalid body")
	// ErrInvalidOpcode: unknown opcode byte.
	ErrInvalidOpcode = errors.New("wire: invalid opcode")
	// ErrPeerClosed: stream ended mid-frame. A close at a frame boundary
	// is reported as io.EOF, not as this error.
	ErrPeerClosed = errors.New("wire: peer closed connection")
	// ErrTransport: OS-level I/O failure, timeout, or locally closed socket.
	ErrTransport = errors.New("wire: transport error")
)
