// Package sender drives one outbound transfer: handshake, windowed
// Go-Back-N transmission, and teardown, against a peer speaking the
// wire protocol in internal/wire.
package sender

import (
	"net"
	"time"

	"reliudp/internal/rerr"
	"reliudp/internal/rulog"
	"reliudp/internal/transport"
	"reliudp/internal/wire"

	"github.com/sirupsen/logrus"
)

// pollInterval is the sleep between empty non-blocking polls, matching
// the ~5ms cadence the spec calls out to avoid busy-spin while keeping
// sub-timeout latency.
const pollInterval = 5 * time.Millisecond

// Sender owns one transfer's lifecycle.
type Sender struct {
	tr     transport.Transport
	peer   *net.UDPAddr
	params Params

	filename string
	log      *logrus.Entry

	// pollSleep is swapped out in tests to avoid real wall-clock delay.
	pollSleep func(time.Duration)
}

// New constructs a Sender for the given transport, peer, and source
// filename (already basenamed per §4.2).
func New(tr transport.Transport, peer *net.UDPAddr, filename string, params Params) *Sender {
	return &Sender{
		tr:        tr,
		peer:      peer,
		params:    params,
		filename:  filename,
		log:       rulog.Log.WithField("role", "sender").WithField("peer", peer.String()),
		pollSleep: time.Sleep,
	}
}

// Transfer runs the full handshake -> windowed send -> teardown sequence
// for data, returning a rerr-wrapped error on any phase's retry
// exhaustion.
func (s *Sender) Transfer(data []byte) error {
	chunks := chunkify(data, s.params.ChunkSize)
	total := uint32(len(chunks))

	if err := s.handshake(total, uint64(len(data))); err != nil {
		return err
	}

	state := newSendState(chunks, s.params.Window)
	if err := s.transmit(state); err != nil {
		return err
	}

	return s.teardown()
}

func chunkify(data []byte, size int) [][]byte {
	if size <= 0 {
		size = 1
	}
	if len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

// handshake implements Phase 1 (§4.2): send HANDSHAKE until
// HANDSHAKE_ACK, up to MaxRetries attempts.
func (s *Sender) handshake(total uint32, filesize uint64) error {
	payload := wire.EncodeHandshake(wire.HandshakeInfo{
		Filename: s.filename,
		Filesize: filesize,
		Total:    total,
		Chunk:    uint32(s.params.ChunkSize),
		Window:   uint16(s.params.Window),
	})
	pkt := wire.Packet{Type: wire.Handshake, Total: total, Window: uint16(s.params.Window), Payload: payload}

	ok, err := s.sendAndAwait(pkt, func(p wire.Packet) bool { return p.Type == wire.HandshakeAck })
	if err != nil {
		return rerr.Wrap(err, "handshake")
	}
	if !ok {
		s.log.Error("handshake: retries exhausted")
		return rerr.Wrap(rerr.ErrHandshakeFailed, "no HANDSHAKE_ACK after max retries")
	}
	s.log.Info("handshake complete")
	return nil
}

// teardown implements Phase 3 (§4.2): send FIN until FIN_ACK.
func (s *Sender) teardown() error {
	pkt := wire.Packet{Type: wire.Fin}
	ok, err := s.sendAndAwait(pkt, func(p wire.Packet) bool { return p.Type == wire.FinAck })
	if err != nil {
		return rerr.Wrap(err, "teardown")
	}
	if !ok {
		s.log.Error("teardown: retries exhausted")
		return rerr.Wrap(rerr.ErrFinFailed, "no FIN_ACK after max retries")
	}
	s.log.Info("transfer complete")
	return nil
}

// sendAndAwait retransmits pkt up to MaxRetries+1 total attempts,
// waiting up to Timeout for a reply satisfying accept on each attempt.
// Used by both the handshake and teardown phases, which share the same
// retry/timeout discipline (§4.2).
func (s *Sender) sendAndAwait(pkt wire.Packet, accept func(wire.Packet) bool) (bool, error) {
	raw := wire.Encode(pkt)
	for attempt := 0; attempt <= s.params.MaxRetries; attempt++ {
		if err := s.tr.Send(raw, s.peer); err != nil {
			return false, err
		}
		deadline := time.Now().Add(s.params.Timeout)
		for time.Now().Before(deadline) {
			payload, _, ok, err := s.tr.TryRecv()
			if err != nil {
				return false, err
			}
			if !ok {
				s.pollSleep(pollInterval)
				continue
			}
			reply, err := wire.Decode(payload)
			if err != nil {
				continue // codec error: drop silently
			}
			if reply.Type == wire.Error {
				s.log.WithField("message", string(reply.Payload)).Error("peer sent ERROR")
				continue
			}
			if accept(reply) {
				return true, nil
			}
		}
		s.log.WithField("attempt", attempt+1).Warn("retry: no reply within timeout")
	}
	return false, nil
}

// transmit implements Phase 2 (§4.2): the windowed Go-Back-N send loop.
func (s *Sender) transmit(state *sendState) error {
	total := state.total()
	if total == 0 {
		return nil
	}

	for state.base < total {
		s.fillWindow(state)

		gotDatagram, err := s.drainInbound(state)
		if err != nil {
			return err
		}
		if !gotDatagram {
			s.pollSleep(pollInterval)
		}

		if err := s.checkTimer(state); err != nil {
			return err
		}

		if state.retryCount > s.params.MaxRetries {
			s.log.Error("transfer: retries exhausted")
			return rerr.Wrap(rerr.ErrTransferFailed, "retransmission retries exhausted")
		}
	}
	return nil
}

func (s *Sender) fillWindow(state *sendState) {
	end := state.windowEnd()
	for state.nextSeq < end {
		if state.base == state.nextSeq && !state.timerRunning {
			state.armTimer(time.Now(), s.params.Timeout)
		}
		s.sendData(state, state.nextSeq)
		state.nextSeq++
	}
}

func (s *Sender) sendData(state *sendState, seq uint32) {
	pkt := wire.Packet{
		Type:    wire.Data,
		Seq:     seq,
		Total:   state.total(),
		Window:  uint16(state.window),
		Payload: state.chunks[seq],
	}
	if err := s.tr.Send(wire.Encode(pkt), s.peer); err != nil {
		s.log.WithField("seq", seq).WithError(err).Warn("send failed")
	}
}

// drainInbound reads at most one datagram and applies it if it is a
// cumulative ACK, per §4.2 step 2. gotDatagram reports whether a
// datagram was available at all, independent of whether it advanced the
// window; only an empty poll warrants the anti-busy-spin sleep.
func (s *Sender) drainInbound(state *sendState) (gotDatagram bool, err error) {
	payload, _, ok, err := s.tr.TryRecv()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	pkt, err := wire.Decode(payload)
	if err != nil {
		return true, nil // codec error: drop silently
	}
	if pkt.Type == wire.Error {
		s.log.WithField("message", string(pkt.Payload)).Error("peer sent ERROR, aborting")
		return true, rerr.Wrap(rerr.ErrTransferFailed, string(pkt.Payload))
	}
	if pkt.Type != wire.Ack {
		return true, nil
	}

	accepted, progressed := state.advanceBase(pkt.Seq)
	if !accepted {
		return true, nil // stale ACK
	}
	if state.base == state.nextSeq {
		state.cancelTimer()
	} else if progressed {
		state.armTimer(time.Now(), s.params.Timeout)
	}
	return true, nil
}

// checkTimer retransmits the outstanding window on timer expiry, per
// §4.2 step 3 (strict Go-Back-N: nextSeq itself is not rewound).
func (s *Sender) checkTimer(state *sendState) error {
	if !state.timerRunning || time.Now().Before(state.deadline) {
		return nil
	}

	state.retryCount++
	if state.retryCount > s.params.MaxRetries {
		return nil
	}

	base, next := state.outstanding()
	s.log.WithField("base", base).WithField("next", next).WithField("retry", state.retryCount).Warn("retransmit timeout")
	for seq := base; seq < next; seq++ {
		s.sendData(state, seq)
	}
	state.armTimer(time.Now(), s.params.Timeout)
	return nil
}
