package receiver

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// session is the receiver-side per-peer state created by HANDSHAKE and
// destroyed by FIN, idle eviction, or re-handshake (§3).
type session struct {
	id       string
	peerKey  string
	filename string
	total    uint32
	expected uint32
	received uint32

	sink         *os.File
	lastActivity time.Time
}

// openSession creates the on-disk sink at
// <outDir>/<filename>_<id>_<peerKey> and returns a fresh session.
func openSession(outDir, filename, id, peerKey string, total uint32, now time.Time) (*session, error) {
	path := filepath.Join(outDir, filename+"_"+id+"_"+peerKey)
	sink, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "receiver: open sink")
	}
	return &session{
		id:           id,
		peerKey:      peerKey,
		filename:     filename,
		total:        total,
		sink:         sink,
		lastActivity: now,
	}, nil
}

// ackSeq computes the cumulative "last in-order" ACK value for the
// session's current expected sequence, per the wraparound convention
// decided in SPEC_FULL.md §9: seq = max(expected, 1) - 1.
func (s *session) ackSeq() uint32 {
	if s.expected == 0 {
		return 0
	}
	return s.expected - 1
}

// touch refreshes last_activity; called on any datagram from this peer.
func (s *session) touch(now time.Time) {
	s.lastActivity = now
}

// close flushes and closes the sink, best-effort.
func (s *session) close() {
	if s.sink != nil {
		s.sink.Sync()
		s.sink.Close()
	}
}

// idleSince reports whether the session has been quiet for at least d.
func (s *session) idleSince(now time.Time, d time.Duration) bool {
	return now.Sub(s.lastActivity) >= d
}
