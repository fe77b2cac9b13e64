// Package wire implements the length-prefixed, little-endian framed
// protocol described in spec.md §4.1: it is the only place that knows
// how bytes map to messages. It is stateless and safe to share across
// connections; all state it touches (the "remaining" byte budget) lives
// on the stack of a single Decode call.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Codec reads and writes frames on one connection at a time. It carries
// no state itself; the zero value is ready to use.
type Codec struct{}

// recvExactly reads exactly n bytes from r, retrying on nothing but
// genuinely transient errors (io.ErrNoProgress never happens for a
// correctly implemented net.Conn, so the one retry case that matters in
// practice is a short read, which the loop already absorbs). A read
// that returns (0, io.EOF) before n bytes have accumulated is a peer
// close mid-frame; a read that returns (0, io.EOF) on the very first
// byte of a fresh frame is the caller's job to treat as a clean
// boundary, not this function's.
func recvExactly(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative read size %d", ErrInvalidLength, n)
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		nr, err := r.Read(buf[read:])
		if nr > 0 {
			read += nr
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if read == 0 {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("%w: got %d of %d bytes", ErrPeerClosed, read, n)
			}
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	return buf, nil
}

func readU8(r io.Reader) (byte, error) {
	b, err := recvExactly(r, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readI32 reads a little-endian signed 32-bit integer, charging 4 bytes
// against remaining. remaining itself is not validated against the
// underlying stream length, only against the declared body length.
func readI32(r io.Reader, remaining *int) (int32, error) {
	if *remaining < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes, %d remaining", ErrLengthMismatch, *remaining)
	}
	b, err := recvExactly(r, 4)
	if err != nil {
		return 0, err
	}
	*remaining -= 4
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// readString reads a [length:i32][utf8 bytes] pair, charging the total
// against remaining. A non-positive length or invalid UTF-8 is
// InvalidBody; a length that would overrun remaining is LengthMismatch.
func readString(r io.Reader, remaining *int) (string, error) {
	length, err := readI32(r, remaining)
	if err != nil {
		return "", err
	}
	if length <= 0 {
		return "", fmt.Errorf("%w: non-positive string length %d", ErrInvalidBody, length)
	}
	if *remaining < int(length) {
		return "", fmt.Errorf("%w: string of length %d exceeds remaining %d", ErrLengthMismatch, length, *remaining)
	}
	b, err := recvExactly(r, int(length))
	if err != nil {
		return "", err
	}
	*remaining -= int(length)
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: non-UTF-8 string", ErrInvalidBody)
	}
	return string(b), nil
}

// Frame is the decoded envelope before the body is interpreted: callers
// that only need the opcode+length (e.g. to dispatch) can stop here.
type Frame struct {
	Opcode Opcode
	Length int32
}

// readFrameHeader reads opcode and body length, validating length >= 0.
func readFrameHeader(r io.Reader) (Frame, error) {
	op, err := readU8(r)
	if err != nil {
		return Frame{}, err
	}
	lb, err := recvExactly(r, 4)
	if err != nil {
		return Frame{}, err
	}
	length := int32(binary.LittleEndian.Uint32(lb))
	if length < 0 {
		return Frame{}, fmt.Errorf("%w: negative body length %d", ErrInvalidLength, length)
	}
	return Frame{Opcode: Opcode(op), Length: length}, nil
}

// Decode reads exactly one frame from r and returns its decoded body as
// one of *NewBetsMsg, *FinishedMsg or *RequestWinnersMsg.
//
// On a decode error raised with remaining body bytes still unread, the
// codec drains those bytes before returning, so the stream stays
// frame-aligned for whatever the caller does next (spec.md §4.1's
// drain-before-raise contract). The caller is still expected to close
// the session on any error; draining only protects callers that choose
// not to.
func (c *Codec) Decode(r io.Reader) (any, error) {
	hdr, err := readFrameHeader(r)
	if err != nil {
		return nil, err
	}
	switch hdr.Opcode {
	case OpNewBets:
		return c.decodeNewBets(r, int(hdr.Length))
	case OpFinished:
		return c.decodeFinished(r, int(hdr.Length))
	case OpRequestWinners:
		return c.decodeRequestWinners(r, int(hdr.Length))
	default:
		if hdr.Length > 0 {
			_, _ = recvExactly(r, int(hdr.Length))
		}
		return nil, fmt.Errorf("%w: opcode %d", ErrInvalidOpcode, hdr.Opcode)
	}
}

func (c *Codec) decodeNewBets(r io.Reader, length int) (*NewBetsMsg, error) {
	if length == 0 {
		return nil, fmt.Errorf("%w: NEW_BETS requires a body, got length 0", ErrInvalidBody)
	}
	remaining := length
	msg, err := c.readNewBetsBody(r, &remaining)
	if err != nil {
		if remaining > 0 {
			_, _ = recvExactly(r, remaining)
		}
		return nil, err
	}
	if remaining != 0 {
		if remaining > 0 {
			_, _ = recvExactly(r, remaining)
		}
		return nil, fmt.Errorf("%w: %d bytes left over after NEW_BETS body", ErrLengthMismatch, remaining)
	}
	return msg, nil
}

func (c *Codec) readNewBetsBody(r io.Reader, remaining *int) (*NewBetsMsg, error) {
	nBets, err := readI32(r, remaining)
	if err != nil {
		return nil, err
	}
	// Capacity is not pre-sized to nBets: a malicious frame can declare an
	// enormous count while the actual body is small, and *remaining bounds
	// how many bets can possibly be read before readBet starts failing, so
	// an upfront allocation sized to the declared count would let a single
	// frame header trigger an out-of-memory allocation before any body
	// bytes are even validated.
	msg := &NewBetsMsg{Amount: nBets, Bets: nil}
	for i := int32(0); i < nBets; i++ {
		bet, err := c.readBet(r, remaining)
		if err != nil {
			return nil, err
		}
		msg.Bets = append(msg.Bets, bet)
	}
	return msg, nil
}

func (c *Codec) readBet(r io.Reader, remaining *int) (RawBet, error) {
	nPairs, err := readI32(r, remaining)
	if err != nil {
		return RawBet{}, err
	}
	if nPairs != int32(len(requiredKeys)) {
		return RawBet{}, fmt.Errorf("%w: expected %d key/value pairs, got %d", ErrInvalidBody, len(requiredKeys), nPairs)
	}
	pairs := make(map[string]string, nPairs)
	for i := int32(0); i < nPairs; i++ {
		key, err := readString(r, remaining)
		if err != nil {
			return RawBet{}, err
		}
		value, err := readString(r, remaining)
		if err != nil {
			return RawBet{}, err
		}
		pairs[key] = value
	}
	for _, k := range requiredKeys {
		if _, ok := pairs[k]; !ok {
			return RawBet{}, fmt.Errorf("%w: missing key %s", ErrInvalidBody, k)
		}
	}
	return RawBet{
		Agency:    pairs["AGENCIA"],
		FirstName: pairs["NOMBRE"],
		LastName:  pairs["APELLIDO"],
		Document:  pairs["DOCUMENTO"],
		Birthdate: pairs["NACIMIENTO"],
		Number:    pairs["NUMERO"],
	}, nil
}

func (c *Codec) decodeFinished(r io.Reader, length int) (*FinishedMsg, error) {
	if length != 4 {
		if length > 0 {
			_, _ = recvExactly(r, length)
		}
		return nil, fmt.Errorf("%w: FINISHED body must be 4 bytes, got %d", ErrInvalidLength, length)
	}
	remaining := length
	id, err := readI32(r, &remaining)
	if err != nil {
		return nil, err
	}
	return &FinishedMsg{AgencyID: id}, nil
}

func (c *Codec) decodeRequestWinners(r io.Reader, length int) (*RequestWinnersMsg, error) {
	if length != 4 {
		if length > 0 {
			_, _ = recvExactly(r, length)
		}
		return nil, fmt.Errorf("%w: REQUEST_WINNERS body must be 4 bytes, got %d", ErrInvalidLength, length)
	}
	remaining := length
	id, err := readI32(r, &remaining)
	if err != nil {
		return nil, err
	}
	return &RequestWinnersMsg{AgencyID: id}, nil
}

// sendAll writes all of b to w, retrying on short writes until complete
// or failing with ErrTransport.
func sendAll(w io.Writer, b []byte) error {
	written := 0
	for written < len(b) {
		n, err := w.Write(b[written:])
		written += n
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	return nil
}

func putI32(dst []byte, v int32) {
	binary.LittleEndian.PutUint32(dst, uint32(v))
}

// WriteBetsRecvSuccess writes an empty-body BETS_RECV_SUCCESS frame.
func (c *Codec) WriteBetsRecvSuccess(w io.Writer) error {
	return c.writeEmptyFrame(w, OpBetsRecvSuccess)
}

// WriteBetsRecvFail writes an empty-body BETS_RECV_FAIL frame.
func (c *Codec) WriteBetsRecvFail(w io.Writer) error {
	return c.writeEmptyFrame(w, OpBetsRecvFail)
}

func (c *Codec) writeEmptyFrame(w io.Writer, op Opcode) error {
	buf := make([]byte, 5)
	buf[0] = byte(op)
	putI32(buf[1:5], 0)
	return sendAll(w, buf)
}

// WriteWinners writes a WINNERS frame. The body length is precomputed
// from the document list so the frame is self-consistent by
// construction: count:i32 followed by count strings.
func (c *Codec) WriteWinners(w io.Writer, msg WinnersMsg) error {
	bodyLen := 4
	for _, d := range msg.Documents {
		bodyLen += 4 + len(d)
	}
	buf := make([]byte, 0, 5+bodyLen)
	buf = append(buf, byte(OpWinners))
	var lenBuf [4]byte
	putI32(lenBuf[:], int32(bodyLen))
	buf = append(buf, lenBuf[:]...)
	var countBuf [4]byte
	putI32(countBuf[:], int32(len(msg.Documents)))
	buf = append(buf, countBuf[:]...)
	for _, d := range msg.Documents {
		var strLenBuf [4]byte
		putI32(strLenBuf[:], int32(len(d)))
		buf = append(buf, strLenBuf[:]...)
		buf = append(buf, d...)
	}
	return sendAll(w, buf)
}
