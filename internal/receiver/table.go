package receiver

// sessionTable is the fixed-capacity, peer-keyed session store (§3,
// §9: "array + linear scan" in spirit, implemented as a capacity-capped
// map since Go's map gives the same O(1) peer lookup without a
// manual scan, while still refusing new entries past
// capacity rather than evicting live transfers).
type sessionTable struct {
	capacity int
	byPeer   map[string]*session
}

func newSessionTable(capacity int) *sessionTable {
	return &sessionTable{capacity: capacity, byPeer: make(map[string]*session)}
}

func (t *sessionTable) get(peerKey string) (*session, bool) {
	s, ok := t.byPeer[peerKey]
	return s, ok
}

func (t *sessionTable) full() bool {
	return len(t.byPeer) >= t.capacity
}

// replace closes and discards any existing session for peerKey, then
// stores s in its place. Used by re-handshake (§3 invariant: at most
// one session per peer_key).
func (t *sessionTable) replace(peerKey string, s *session) {
	if old, ok := t.byPeer[peerKey]; ok {
		old.close()
	}
	t.byPeer[peerKey] = s
}

func (t *sessionTable) remove(peerKey string) {
	if s, ok := t.byPeer[peerKey]; ok {
		s.close()
		delete(t.byPeer, peerKey)
	}
}

// removeSilently deletes without closing again, for use after the
// caller has already closed s itself.
func (t *sessionTable) removeSilently(peerKey string) {
	delete(t.byPeer, peerKey)
}

func (t *sessionTable) all() []*session {
	out := make([]*session, 0, len(t.byPeer))
	for _, s := range t.byPeer {
		out = append(out, s)
	}
	return out
}

func (t *sessionTable) closeAll() {
	for peerKey := range t.byPeer {
		t.remove(peerKey)
	}
}
