// Package transporttest provides an in-process fake transport.Transport
// pair so the sender and receiver state machines can be exercised
// deterministically (packet drop/corruption injection) without real
// UDP sockets, per SPEC_FULL.md §8's note on avoiding localhost
// flakiness in the state-machine tests.
package transporttest

import (
	"net"
	"time"

	"reliudp/internal/transport"
)

type datagram struct {
	payload []byte
	from    *net.UDPAddr
}

// Fake is one end of an in-process link.
type Fake struct {
	self *net.UDPAddr
	peer *net.UDPAddr
	in   chan datagram
	out  chan datagram

	// Filter, if set, is consulted for every outbound Send; returning
	// false drops the datagram, and a non-nil returned byte slice
	// replaces the payload (for checksum-corruption injection).
	Filter func(payload []byte) (send bool, replacement []byte)
}

// NewLink creates two connected fakes, a addressed as selfA talking to
// peer selfB and vice versa.
func NewLink(selfA, selfB *net.UDPAddr) (a, b *Fake) {
	ab := make(chan datagram, 256)
	ba := make(chan datagram, 256)
	a = &Fake{self: selfA, peer: selfB, in: ba, out: ab}
	b = &Fake{self: selfB, peer: selfA, in: ab, out: ba}
	return a, b
}

var _ transport.Transport = (*Fake)(nil)

// Send implements transport.Transport.
func (f *Fake) Send(payload []byte, peer *net.UDPAddr) error {
	send, replacement := true, payload
	if f.Filter != nil {
		var r []byte
		send, r = f.Filter(payload)
		if r != nil {
			replacement = r
		}
	}
	if !send {
		return nil
	}
	cp := append([]byte(nil), replacement...)
	f.out <- datagram{payload: cp, from: f.self}
	return nil
}

// TryRecv implements transport.Transport.
func (f *Fake) TryRecv() ([]byte, *net.UDPAddr, bool, error) {
	select {
	case d := <-f.in:
		return d.payload, d.from, true, nil
	default:
		return nil, nil, false, nil
	}
}

// NowMs implements transport.Transport.
func (f *Fake) NowMs() int64 { return time.Now().UnixMilli() }

// Close implements transport.Transport.
func (f *Fake) Close() error { return nil }
