package sender

import "time"

// Params bundles the sender's operator-configured knobs (§6.2).
type Params struct {
	ChunkSize  int
	Window     uint32
	Timeout    time.Duration
	MaxRetries int
}

// sendState is the sender-side sliding window (§3). base is the oldest
// unacknowledged sequence, nextSeq the next to transmit; the timer
// covers exactly the oldest outstanding packet.
type sendState struct {
	chunks [][]byte

	base    uint32
	nextSeq uint32
	window  uint32

	timerRunning bool
	deadline     time.Time
	retryCount   int
}

func newSendState(chunks [][]byte, window uint32) *sendState {
	return &sendState{chunks: chunks, window: window}
}

func (s *sendState) total() uint32 { return uint32(len(s.chunks)) }

// windowEnd is the exclusive upper bound on the sequences the sender may
// have outstanding: min(base+window, total).
func (s *sendState) windowEnd() uint32 {
	end := s.base + s.window
	if t := s.total(); end > t {
		end = t
	}
	return end
}

func (s *sendState) armTimer(now time.Time, timeout time.Duration) {
	s.timerRunning = true
	s.deadline = now.Add(timeout)
}

func (s *sendState) cancelTimer() {
	s.timerRunning = false
}

// advanceBase applies a cumulative ACK for seq. accepted is false when
// the ACK is stale (seq < base) and must be ignored entirely. progressed
// is true when base actually increased, which resets retryCount and
// restarts the timer per the forward-progress invariant (§3).
func (s *sendState) advanceBase(seq uint32) (accepted, progressed bool) {
	if seq < s.base {
		return false, false
	}
	newBase := seq + 1
	if newBase > s.base {
		s.base = newBase
		s.retryCount = 0
		return true, true
	}
	return true, false
}

// outstanding returns the sequence range [base, nextSeq) still awaiting
// acknowledgment, for Go-Back-N retransmission.
func (s *sendState) outstanding() (uint32, uint32) {
	return s.base, s.nextSeq
}
