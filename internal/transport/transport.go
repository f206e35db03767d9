// Package transport wraps a UDP socket as the non-blocking send/receive
// primitive the sender and receiver state machines poll, mirroring the
// teacher's single read-loop around net.DialUDP in udp/client.go but
// exposing try-receive instead of a blocking ReadFromUDP.
package transport

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// maxDatagram is sized above the largest datagram this protocol ever
// emits (20-octet header plus any reasonable --chunk value).
const maxDatagram = 65535

// Transport is the non-blocking datagram endpoint both state machines
// depend on. A fake implementation backs the deterministic state-machine
// tests described in SPEC_FULL.md §8.
type Transport interface {
	// Send transmits payload to peer. On a sender's connected socket,
	// peer is informational only; the datagram always goes to the
	// dialed remote address.
	Send(payload []byte, peer *net.UDPAddr) error
	// TryRecv reads at most one pending datagram without blocking. ok
	// is false (with a nil error) when nothing was available.
	TryRecv() (payload []byte, peer *net.UDPAddr, ok bool, err error)
	// NowMs returns the current wall-clock time in milliseconds since
	// the Unix epoch.
	NowMs() int64
	Close() error
}

// UDPTransport is the real Transport backed by a *net.UDPConn.
type UDPTransport struct {
	conn      *net.UDPConn
	connected bool
	peer      *net.UDPAddr
}

// Listen binds a receiver-side socket on 0.0.0.0:port.
func Listen(port int) (*UDPTransport, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen")
	}
	return &UDPTransport{conn: conn}, nil
}

// Dial opens a sender-side ephemeral socket connected to host:port.
func Dial(host string, port int) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrap(err, "transport: resolve")
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: dial")
	}
	return &UDPTransport{conn: conn, connected: true, peer: raddr}, nil
}

// Send implements Transport.
func (t *UDPTransport) Send(payload []byte, peer *net.UDPAddr) error {
	if t.connected {
		_, err := t.conn.Write(payload)
		return err
	}
	_, err := t.conn.WriteToUDP(payload, peer)
	return err
}

// TryRecv implements Transport using a near-zero read deadline to
// simulate a non-blocking socket without depending on OS-specific
// non-blocking-mode syscalls.
func (t *UDPTransport) TryRecv() ([]byte, *net.UDPAddr, bool, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return nil, nil, false, err
	}

	buf := make([]byte, maxDatagram)
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	if t.connected {
		addr = t.peer
	}
	return buf[:n], addr, true, nil
}

// NowMs implements Transport.
func (t *UDPTransport) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Close releases the underlying socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// LocalAddr reports the bound local address, useful for logging the
// sender's ephemeral port.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RemoteAddr reports the resolved remote address a Dial-ed socket is
// connected to, for logging the real peer instead of re-resolving the
// --host flag's string form.
func (t *UDPTransport) RemoteAddr() *net.UDPAddr {
	return t.peer
}
