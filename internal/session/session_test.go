package session

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/fedepagnotta/lottery-server/internal/betting"
	"github.com/fedepagnotta/lottery-server/internal/draw"
	"github.com/fedepagnotta/lottery-server/internal/raffle"
	"github.com/fedepagnotta/lottery-server/internal/storage"
	"github.com/fedepagnotta/lottery-server/internal/wire"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// frame assembles a raw [opcode][length][body] frame.
func frame(op wire.Opcode, body []byte) []byte {
	buf := make([]byte, 5+len(body))
	buf[0] = byte(op)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(body)))
	copy(buf[5:], body)
	return buf
}

func i32(v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return b[:]
}

func str(s string) []byte {
	var buf bytes.Buffer
	buf.Write(i32(int32(len(s))))
	buf.WriteString(s)
	return buf.Bytes()
}

func newBetsFrame(t *testing.T, amount int32, bets []wire.RawBet) []byte {
	t.Helper()
	var body bytes.Buffer
	body.Write(i32(amount))
	for _, b := range bets {
		body.Write(i32(6))
		body.Write(str("AGENCIA"))
		body.Write(str(b.Agency))
		body.Write(str("NOMBRE"))
		body.Write(str(b.FirstName))
		body.Write(str("APELLIDO"))
		body.Write(str(b.LastName))
		body.Write(str("DOCUMENTO"))
		body.Write(str(b.Document))
		body.Write(str("NACIMIENTO"))
		body.Write(str(b.Birthdate))
		body.Write(str("NUMERO"))
		body.Write(str(b.Number))
	}
	return frame(wire.OpNewBets, body.Bytes())
}

func finishedFrame(agencyID int32) []byte {
	return frame(wire.OpFinished, i32(agencyID))
}

func requestWinnersFrame(agencyID int32) []byte {
	return frame(wire.OpRequestWinners, i32(agencyID))
}

// runSession wires a Session around one end of a net.Pipe and returns the
// peer end the test drives directly; Run executes on its own goroutine and
// the pipe's synchronous semantics keep every write/read pair lockstep.
func runSession(store storage.Store, coord *raffle.Coordinator) (peer net.Conn, done chan struct{}) {
	server, client := net.Pipe()
	s := New(server, &wire.Codec{}, store, coord, silentLogger())
	done = make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()
	return client, done
}

func TestSession_NewBetsSuccessThenClose(t *testing.T) {
	store := storage.NewMemoryStore()
	coord := raffle.New(1, store, draw.FixedDrawer{Number: "1"}, silentLogger())
	peer, done := runSession(store, coord)
	defer peer.Close()

	bets := []wire.RawBet{{Agency: "1", FirstName: "A", LastName: "B", Document: "111", Birthdate: "2000-01-01", Number: "5"}}
	if _, err := peer.Write(newBetsFrame(t, 1, bets)); err != nil {
		t.Fatalf("write NEW_BETS: %v", err)
	}

	hdr := make([]byte, 5)
	if _, err := io.ReadFull(peer, hdr); err != nil {
		t.Fatalf("read reply header: %v", err)
	}
	if wire.Opcode(hdr[0]) != wire.OpBetsRecvSuccess {
		t.Fatalf("expected BETS_RECV_SUCCESS, got opcode %d", hdr[0])
	}
	if n := binary.LittleEndian.Uint32(hdr[1:5]); n != 0 {
		t.Fatalf("expected empty body, got length %d", n)
	}

	stored, err := store.LoadBets()
	if err != nil {
		t.Fatalf("load bets: %v", err)
	}
	if len(stored) != 1 || stored[0].Document != "111" {
		t.Fatalf("unexpected stored bets: %+v", stored)
	}

	peer.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("session did not exit after peer close")
	}
}

func TestSession_NewBetsStorageFailureKeepsReading(t *testing.T) {
	store := failingStore{}
	coord := raffle.New(1, store, draw.FixedDrawer{Number: "1"}, silentLogger())
	peer, done := runSession(store, coord)
	defer peer.Close()

	bets := []wire.RawBet{{Agency: "1", FirstName: "A", LastName: "B", Document: "111", Birthdate: "2000-01-01", Number: "5"}}
	if _, err := peer.Write(newBetsFrame(t, 1, bets)); err != nil {
		t.Fatalf("write NEW_BETS: %v", err)
	}

	hdr := make([]byte, 5)
	if _, err := io.ReadFull(peer, hdr); err != nil {
		t.Fatalf("read reply header: %v", err)
	}
	if wire.Opcode(hdr[0]) != wire.OpBetsRecvFail {
		t.Fatalf("expected BETS_RECV_FAIL, got opcode %d", hdr[0])
	}

	// The session must still be reading: a second, well-formed batch gets
	// its own reply rather than the connection having been dropped.
	if _, err := peer.Write(newBetsFrame(t, 1, bets)); err != nil {
		t.Fatalf("write second NEW_BETS: %v", err)
	}
	if _, err := io.ReadFull(peer, hdr); err != nil {
		t.Fatalf("read second reply header: %v", err)
	}
	if wire.Opcode(hdr[0]) != wire.OpBetsRecvFail {
		t.Fatalf("expected second BETS_RECV_FAIL, got opcode %d", hdr[0])
	}

	peer.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("session did not exit after peer close")
	}
}

func TestSession_FinishedClosesConnection(t *testing.T) {
	store := storage.NewMemoryStore()
	coord := raffle.New(2, store, draw.FixedDrawer{Number: "1"}, silentLogger())
	peer, done := runSession(store, coord)
	defer peer.Close()

	if _, err := peer.Write(finishedFrame(1)); err != nil {
		t.Fatalf("write FINISHED: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("session did not close after FINISHED")
	}
	if !coord.HasFinished(1) {
		t.Fatalf("expected agency 1 recorded as finished")
	}
}

func TestSession_RequestWinnersBeforeFinishedIsRejected(t *testing.T) {
	store := storage.NewMemoryStore()
	coord := raffle.New(2, store, draw.FixedDrawer{Number: "1"}, silentLogger())
	peer, done := runSession(store, coord)
	defer peer.Close()

	if _, err := peer.Write(requestWinnersFrame(1)); err != nil {
		t.Fatalf("write REQUEST_WINNERS: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("session did not close after rejected REQUEST_WINNERS")
	}
}

func TestSession_RequestWinnersAfterRaffleDeliversWinners(t *testing.T) {
	store := storage.NewMemoryStore()
	_ = store.StoreBets([]betting.Bet{
		{AgencyID: "1", Document: "999", Number: "42"},
		{AgencyID: "1", Document: "998", Number: "0"},
	})
	coord := raffle.New(1, store, draw.FixedDrawer{Number: "42"}, silentLogger())

	// One connection signals FINISHED and drives the raffle to completion.
	finPeer, finDone := runSession(store, coord)
	if _, err := finPeer.Write(finishedFrame(1)); err != nil {
		t.Fatalf("write FINISHED: %v", err)
	}
	select {
	case <-finDone:
	case <-time.After(time.Second):
		t.Fatalf("FINISHED session did not close")
	}
	finPeer.Close()

	// A fresh connection retrieves the winners.
	peer, done := runSession(store, coord)
	defer peer.Close()
	if _, err := peer.Write(requestWinnersFrame(1)); err != nil {
		t.Fatalf("write REQUEST_WINNERS: %v", err)
	}

	hdr := make([]byte, 5)
	if _, err := io.ReadFull(peer, hdr); err != nil {
		t.Fatalf("read WINNERS header: %v", err)
	}
	if wire.Opcode(hdr[0]) != wire.OpWinners {
		t.Fatalf("expected WINNERS, got opcode %d", hdr[0])
	}
	bodyLen := binary.LittleEndian.Uint32(hdr[1:5])
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(peer, body); err != nil {
		t.Fatalf("read WINNERS body: %v", err)
	}
	count := binary.LittleEndian.Uint32(body[0:4])
	if count != 1 {
		t.Fatalf("expected 1 winner, got %d", count)
	}
	docLen := binary.LittleEndian.Uint32(body[4:8])
	doc := string(body[8 : 8+docLen])
	if doc != "999" {
		t.Fatalf("expected winning document 999, got %q", doc)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("session did not close after WINNERS")
	}
}

func TestSession_MalformedFrameGetsBetsRecvFailThenCloses(t *testing.T) {
	store := storage.NewMemoryStore()
	coord := raffle.New(1, store, draw.FixedDrawer{Number: "1"}, silentLogger())
	peer, done := runSession(store, coord)
	defer peer.Close()

	// FINISHED body must be exactly 4 bytes; send 2 instead.
	if _, err := peer.Write(frame(wire.OpFinished, []byte{1, 2})); err != nil {
		t.Fatalf("write malformed FINISHED: %v", err)
	}

	hdr := make([]byte, 5)
	if _, err := io.ReadFull(peer, hdr); err != nil {
		t.Fatalf("read reply header: %v", err)
	}
	if wire.Opcode(hdr[0]) != wire.OpBetsRecvFail {
		t.Fatalf("expected best-effort BETS_RECV_FAIL, got opcode %d", hdr[0])
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("session did not close after malformed frame")
	}
}

type failingStore struct{}

func (failingStore) StoreBets([]betting.Bet) error   { return io.ErrUnexpectedEOF }
func (failingStore) LoadBets() ([]betting.Bet, error) { return nil, io.ErrUnexpectedEOF }
