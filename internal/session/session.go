// Package session implements the per-connection state machine of
// spec.md §4.2: decode one message, react to it, decide whether to keep
// reading. It is grounded on the teacher's per-connection reader
// goroutine (internal/server/reader.go), generalized from "decode a CAN
// frame and forward it to a backend" into "decode a lottery message and
// forward it to storage or the raffle coordinator".
package session

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime"

	"github.com/fedepagnotta/lottery-server/internal/betting"
	"github.com/fedepagnotta/lottery-server/internal/metrics"
	"github.com/fedepagnotta/lottery-server/internal/raffle"
	"github.com/fedepagnotta/lottery-server/internal/storage"
	"github.com/fedepagnotta/lottery-server/internal/wire"
)

// Session owns exactly one client connection, from accept to close.
type Session struct {
	conn        net.Conn
	codec       *wire.Codec
	store       storage.Store
	coordinator *raffle.Coordinator
	logger      *slog.Logger
}

// New constructs a Session for an already-accepted connection. logger
// should already carry connection-scoped attrs (conn_id, remote).
func New(conn net.Conn, codec *wire.Codec, store storage.Store, coordinator *raffle.Coordinator, logger *slog.Logger) *Session {
	return &Session{conn: conn, codec: codec, store: store, coordinator: coordinator, logger: logger}
}

// Run drives the read loop until the connection closes, a protocol
// error ends it, or a message handler decides the session is done. The
// socket is closed exactly once, on return.
func (s *Session) Run() {
	defer func() { _ = s.conn.Close() }()
	for {
		msg, err := s.codec.Decode(s.conn)
		if err != nil {
			s.handleDecodeError(err)
			return
		}
		if !s.dispatch(msg) {
			return
		}
	}
}

// handleDecodeError classifies a Decode error and reacts per spec.md
// §7's propagation policy. A clean peer close at a frame boundary
// (io.EOF) is normal and not logged at all; a peer close mid-frame is
// logged at info level; everything else is logged as an error.
func (s *Session) handleDecodeError(err error) {
	if errors.Is(err, io.EOF) {
		return
	}
	if errors.Is(err, wire.ErrPeerClosed) {
		s.logger.Info("receive_message", "result", "fail", "error", "peer closed mid-frame")
		return
	}
	label := mapWireErrToMetric(err)
	metrics.IncError(label)
	s.logger.Error("receive_message", "result", "fail", "error", err)
	if errors.Is(err, wire.ErrTransport) {
		// The connection is already broken; a response write would only
		// fail again.
		return
	}
	if label == metrics.ErrFraming {
		metrics.IncMalformed()
	}
	// Best-effort BETS_RECV_FAIL: the reference design converts any
	// other decode failure (InvalidLength, LengthMismatch, InvalidBody,
	// InvalidOpcode) into this response before closing.
	if werr := s.codec.WriteBetsRecvFail(s.conn); werr != nil {
		s.logger.Error("send_message", "result", "fail", "error", werr)
	}
}

// dispatch reacts to one decoded message and reports whether the
// session should keep reading.
func (s *Session) dispatch(msg any) bool {
	switch m := msg.(type) {
	case *wire.NewBetsMsg:
		s.logger.Info("receive_message", "result", "success", "opcode", wire.OpNewBets)
		return s.handleNewBets(m)
	case *wire.FinishedMsg:
		s.logger.Info("receive_message", "result", "success", "opcode", wire.OpFinished, "agencia", m.AgencyID)
		return s.handleFinished(m)
	case *wire.RequestWinnersMsg:
		s.logger.Info("receive_message", "result", "success", "opcode", wire.OpRequestWinners, "agencia", m.AgencyID)
		return s.handleRequestWinners(m)
	default:
		// Decode never returns a type outside this set; guard anyway.
		s.logger.Error("receive_message", "result", "fail", "error", "unexpected decoded message type")
		return false
	}
}

// handleNewBets implements spec.md §4.2's NEW_BETS contract: storage
// failure yields BETS_RECV_FAIL and the session continues; storage
// success yields BETS_RECV_SUCCESS. The store's own internal mutex is
// what serializes concurrent handlers against the (assumed
// non-thread-safe) persistence collaborator.
func (s *Session) handleNewBets(m *wire.NewBetsMsg) bool {
	bets := make([]betting.Bet, len(m.Bets))
	for i, rb := range m.Bets {
		bets[i] = betting.Bet{
			AgencyID:  rb.Agency,
			FirstName: rb.FirstName,
			LastName:  rb.LastName,
			Document:  rb.Document,
			Birthdate: rb.Birthdate,
			Number:    rb.Number,
		}
	}

	if err := s.store.StoreBets(bets); err != nil {
		metrics.IncBatchFailed()
		metrics.IncError(metrics.ErrStorage)
		s.logger.Error("apuesta_recibida", "result", "fail", "cantidad", m.Amount, "error", err)
		if werr := s.codec.WriteBetsRecvFail(s.conn); werr != nil {
			s.logger.Error("send_message", "result", "fail", "error", werr)
			return false
		}
		return true
	}

	for _, b := range bets {
		s.logger.Info("apuesta_almacenada", "result", "success", "dni", b.Document, "numero", b.Number)
	}
	metrics.AddBetsStored(len(bets))
	metrics.IncBatchReceived()
	s.logger.Info("apuesta_recibida", "result", "success", "cantidad", m.Amount)
	if werr := s.codec.WriteBetsRecvSuccess(s.conn); werr != nil {
		s.logger.Error("send_message", "result", "fail", "error", werr)
		return false
	}
	return true
}

// handleFinished records the agency as done and closes the session.
// Two-phase mode: FINISHED never itself carries a WINNERS reply. The
// barrier wait runs on its own goroutine (the last agency to signal
// runs the raffle there); this session only waits until the agency is
// recorded as finished, then closes, and the agency retrieves its
// winners on a fresh connection via REQUEST_WINNERS.
func (s *Session) handleFinished(m *wire.FinishedMsg) bool {
	go s.coordinator.SignalFinished(m.AgencyID)
	for !s.coordinator.HasFinished(m.AgencyID) {
		runtime.Gosched()
	}
	return false
}

// handleRequestWinners implements the two-phase retrieval half:
// REQUEST_WINNERS is only honored for an agency_id already recorded as
// finished; it blocks until the raffle has run, then delivers the
// winners and closes, exactly once per spec.md §3's invariant.
func (s *Session) handleRequestWinners(m *wire.RequestWinnersMsg) bool {
	if !s.coordinator.HasFinished(m.AgencyID) {
		s.logger.Error("enviar_ganadores", "result", "fail", "agencia", m.AgencyID, "error", "agency has not signaled FINISHED")
		return false
	}
	s.coordinator.AwaitRaffleDone()
	docs := s.coordinator.WinnersFor(m.AgencyID)
	if err := s.codec.WriteWinners(s.conn, wire.WinnersMsg{Documents: docs}); err != nil {
		metrics.IncError(metrics.ErrConnWrite)
		s.logger.Error("enviar_ganadores", "result", "fail", "agencia", m.AgencyID, "error", err)
		return false
	}
	metrics.IncWinnersSent()
	s.logger.Info("enviar_ganadores", "result", "success", "agencia", m.AgencyID)
	return false
}
