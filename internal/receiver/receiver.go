// Package receiver implements the session-table + in-order-delivery
// state machine that reassembles one or more concurrent inbound
// transfers (one per peer) onto durable storage.
package receiver

import (
	"net"
	"time"

	"reliudp/internal/rulog"
	"reliudp/internal/sessionid"
	"reliudp/internal/transport"
	"reliudp/internal/wire"

	"github.com/sirupsen/logrus"
)

const (
	// defaultCapacity is the recommended session table bound (§3).
	defaultCapacity = 100
	// idleSweepInterval is the cadence at which idle sessions are
	// evicted (§4.3).
	idleSweepInterval = 10 * time.Second
	// idleTimeout is how long a session may go quiet before eviction.
	idleTimeout = 30 * time.Second
	// pollInterval mirrors the sender's anti-busy-spin poll cadence.
	pollInterval = 5 * time.Millisecond
)

// Config bundles the receiver's operator-configured knobs (§6.2).
type Config struct {
	OutDir   string
	Window   uint16
	Capacity int
	IDSource sessionid.Source
}

// Receiver owns the session table and ingress loop for one bound port.
type Receiver struct {
	tr     transport.Transport
	cfg    Config
	table  *sessionTable
	log    *logrus.Entry
	nowFn  func() time.Time
	sleep  func(time.Duration)
}

// New constructs a Receiver. cfg.Capacity defaults to 100 and
// cfg.IDSource to the millisecond-clock source when left zero/nil.
func New(tr transport.Transport, cfg Config) *Receiver {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.IDSource == nil {
		cfg.IDSource = sessionid.NewClock()
	}
	return &Receiver{
		tr:    tr,
		cfg:   cfg,
		table: newSessionTable(cfg.Capacity),
		log:   rulog.Log.WithField("role", "receiver"),
		nowFn: time.Now,
		sleep: time.Sleep,
	}
}

// Run drives the ingress loop until stop is closed, then closes every
// open sink (flush best-effort) before returning, per the signal
// shutdown contract in §5.
func (r *Receiver) Run(stop <-chan struct{}) error {
	lastSweep := r.nowFn()
	for {
		select {
		case <-stop:
			r.log.Info("shutting down, closing open sessions")
			r.table.closeAll()
			return nil
		default:
		}

		payload, peer, ok, err := r.tr.TryRecv()
		if err != nil {
			return err
		}
		if ok {
			r.handleDatagram(payload, peer)
		} else {
			r.sleep(pollInterval)
		}

		if r.nowFn().Sub(lastSweep) >= idleSweepInterval {
			r.evictIdle()
			lastSweep = r.nowFn()
		}
	}
}

func (r *Receiver) handleDatagram(payload []byte, peer *net.UDPAddr) {
	pkt, err := wire.Decode(payload)
	if err != nil {
		return // codec error: drop silently
	}

	switch pkt.Type {
	case wire.Handshake:
		r.onHandshake(pkt, peer)
	case wire.Data:
		r.onData(pkt, peer)
	case wire.Fin:
		r.onFin(peer)
	default:
		// ACK/HANDSHAKE_ACK/FIN_ACK/ERROR arriving at a receiver are
		// not meaningful; drop silently.
	}
}

func (r *Receiver) send(pkt wire.Packet, peer *net.UDPAddr) {
	if err := r.tr.Send(wire.Encode(pkt), peer); err != nil {
		r.log.WithField("peer", peer.String()).WithError(err).Warn("send failed")
	}
}

func (r *Receiver) sendError(message string, peer *net.UDPAddr) {
	r.send(wire.Packet{Type: wire.Error, Payload: []byte(message)}, peer)
}

// onHandshake implements §4.3 "On HANDSHAKE".
func (r *Receiver) onHandshake(pkt wire.Packet, peer *net.UDPAddr) {
	hs, err := wire.DecodeHandshake(pkt.Payload)
	if err != nil {
		r.sendError("bad handshake", peer)
		return
	}

	peerKey := peer.String()
	now := r.nowFn()

	if r.table.full() {
		if _, exists := r.table.get(peerKey); !exists {
			r.log.WithField("peer", peerKey).Warn("session table at capacity, dropping handshake")
			return
		}
	}

	id := r.cfg.IDSource.Next()
	sess, err := openSession(r.cfg.OutDir, hs.Filename, id, peerKey, hs.Total, now)
	if err != nil {
		r.log.WithField("peer", peerKey).WithError(err).Error("failed to open sink")
		r.sendError("could not open sink", peer)
		return
	}

	r.table.replace(peerKey, sess)
	r.log.WithField("peer", peerKey).WithField("session_id", id).WithField("filename", hs.Filename).
		WithField("total", hs.Total).Info("session created")

	r.send(wire.Packet{Type: wire.HandshakeAck, Total: hs.Total, Window: r.cfg.Window}, peer)
}

// onData implements §4.3 "On DATA".
func (r *Receiver) onData(pkt wire.Packet, peer *net.UDPAddr) {
	peerKey := peer.String()
	sess, ok := r.table.get(peerKey)
	if !ok {
		r.sendError("no session", peer)
		return
	}

	now := r.nowFn()
	sess.touch(now)

	if wire.Checksum(pkt.Payload) != pkt.Checksum {
		r.log.WithField("peer", peerKey).WithField("seq", pkt.Seq).Warn("checksum mismatch, dropping")
		r.send(wire.Packet{Type: wire.Ack, Seq: sess.ackSeq()}, peer)
		return
	}

	if pkt.Seq == sess.expected {
		n, err := sess.sink.Write(pkt.Payload)
		if err != nil || n != len(pkt.Payload) {
			r.log.WithField("peer", peerKey).WithError(err).Error("short write, aborting session")
			r.sendError("short write", peer)
			r.table.remove(peerKey)
			return
		}
		sess.expected++
		sess.received++
	}
	// seq != expected: out of order, payload dropped (no buffering); the
	// ACK below repeats the last in-order seq.

	r.send(wire.Packet{Type: wire.Ack, Seq: sess.ackSeq()}, peer)
}

// onFin implements §4.3 "On FIN".
func (r *Receiver) onFin(peer *net.UDPAddr) {
	peerKey := peer.String()
	if sess, ok := r.table.get(peerKey); ok {
		r.log.WithField("peer", peerKey).WithField("session_id", sess.id).
			WithField("received", sess.received).Info("transfer complete")
		r.table.remove(peerKey)
	}
	r.send(wire.Packet{Type: wire.FinAck}, peer)
}

// evictIdle sweeps the session table for peers quiet longer than
// idleTimeout (§4.3 "Idle eviction").
func (r *Receiver) evictIdle() {
	now := r.nowFn()
	for _, sess := range r.table.all() {
		if sess.idleSince(now, idleTimeout) {
			r.log.WithField("peer", sess.peerKey).WithField("session_id", sess.id).Warn("evicting idle session")
			r.table.remove(sess.peerKey)
		}
	}
}
