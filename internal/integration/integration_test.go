// Package integration wires a Sender and a Receiver together over the
// in-process fake transport to exercise the concrete end-to-end
// scenarios without any real sockets.
package integration

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"reliudp/internal/receiver"
	"reliudp/internal/rerr"
	"reliudp/internal/sender"
	"reliudp/internal/sessionid"
	"reliudp/internal/transporttest"
	"reliudp/internal/wire"
)

func addrs() (senderAddr, receiverAddr *net.UDPAddr) {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 60000},
		&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 60001}
}

// runReceiver starts r.Run in the background and returns a stop function
// that signals shutdown and blocks until the goroutine has exited.
func runReceiver(r *receiver.Receiver) (stop func()) {
	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(stopCh)
	}()
	return func() {
		close(stopCh)
		<-done
	}
}

func singleFile(outDir string) (string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 {
		return "", os.ErrNotExist
	}
	return filepath.Join(outDir, entries[0].Name()), nil
}

// awaitReply polls tr for up to timeout for any datagram and decodes it.
func awaitReply(tr *transporttest.Fake, timeout time.Duration) (wire.Packet, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		payload, _, ok, err := tr.TryRecv()
		if err != nil {
			return wire.Packet{}, false
		}
		if ok {
			pkt, err := wire.Decode(payload)
			if err != nil {
				continue
			}
			return pkt, true
		}
		time.Sleep(time.Millisecond)
	}
	return wire.Packet{}, false
}

func TestEndToEndHappyPath(t *testing.T) {
	senderAddr, receiverAddr := addrs()
	senderTr, receiverTr := transporttest.NewLink(senderAddr, receiverAddr)

	outDir := t.TempDir()
	r := receiver.New(receiverTr, receiver.Config{OutDir: outDir, Window: 4, Capacity: 10, IDSource: sessionid.NewClock()})
	stop := runReceiver(r)

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	s := sender.New(senderTr, receiverAddr, "f.txt", sender.Params{ChunkSize: 256, Window: 4, Timeout: 200 * time.Millisecond, MaxRetries: 5})
	err := s.Transfer(data)
	stop()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	path, err := singleFile(outDir)
	if err != nil {
		t.Fatalf("singleFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("sink contents do not match source")
	}
}

func TestEndToEndZeroByteFile(t *testing.T) {
	senderAddr, receiverAddr := addrs()
	senderTr, receiverTr := transporttest.NewLink(senderAddr, receiverAddr)

	outDir := t.TempDir()
	r := receiver.New(receiverTr, receiver.Config{OutDir: outDir, Window: 4, Capacity: 10, IDSource: sessionid.NewClock()})
	stop := runReceiver(r)

	s := sender.New(senderTr, receiverAddr, "empty.txt", sender.Params{ChunkSize: 256, Window: 4, Timeout: 200 * time.Millisecond, MaxRetries: 5})
	err := s.Transfer(nil)
	stop()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	path, err := singleFile(outDir)
	if err != nil {
		t.Fatalf("singleFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("sink has %d bytes, want 0", len(got))
	}
}

// TestEndToEndSingleDataLoss drops exactly one DATA datagram (seq=1) on
// its first transmission; the sender's timer must recover it.
func TestEndToEndSingleDataLoss(t *testing.T) {
	senderAddr, receiverAddr := addrs()
	senderTr, receiverTr := transporttest.NewLink(senderAddr, receiverAddr)

	var mu sync.Mutex
	seq1Dropped := false
	senderTr.Filter = func(payload []byte) (bool, []byte) {
		if len(payload) < 20 || payload[3] != byte(wire.Data) {
			return true, payload
		}
		pkt, err := wire.Decode(payload)
		if err != nil {
			return true, payload
		}
		mu.Lock()
		defer mu.Unlock()
		if pkt.Seq == 1 && !seq1Dropped {
			seq1Dropped = true
			return false, nil
		}
		return true, payload
	}

	outDir := t.TempDir()
	r := receiver.New(receiverTr, receiver.Config{OutDir: outDir, Window: 4, Capacity: 10, IDSource: sessionid.NewClock()})
	stop := runReceiver(r)

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	s := sender.New(senderTr, receiverAddr, "f.txt", sender.Params{ChunkSize: 256, Window: 4, Timeout: 100 * time.Millisecond, MaxRetries: 5})
	err := s.Transfer(data)
	stop()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	path, err := singleFile(outDir)
	if err != nil {
		t.Fatalf("singleFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("sink contents do not match source after a dropped DATA packet")
	}
}

// TestEndToEndChecksumCorruption flips a bit in seq=2's payload on its
// first transmission; the receiver must drop it and the sender must
// recover via retransmission.
func TestEndToEndChecksumCorruption(t *testing.T) {
	senderAddr, receiverAddr := addrs()
	senderTr, receiverTr := transporttest.NewLink(senderAddr, receiverAddr)

	var mu sync.Mutex
	corrupted := false
	senderTr.Filter = func(payload []byte) (bool, []byte) {
		if len(payload) < 21 || payload[3] != byte(wire.Data) {
			return true, payload
		}
		pkt, err := wire.Decode(payload)
		if err != nil {
			return true, payload
		}
		mu.Lock()
		defer mu.Unlock()
		if pkt.Seq == 2 && !corrupted {
			corrupted = true
			cp := append([]byte(nil), payload...)
			cp[20] ^= 0xFF
			return true, cp
		}
		return true, payload
	}

	outDir := t.TempDir()
	r := receiver.New(receiverTr, receiver.Config{OutDir: outDir, Window: 4, Capacity: 10, IDSource: sessionid.NewClock()})
	stop := runReceiver(r)

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	s := sender.New(senderTr, receiverAddr, "f.txt", sender.Params{ChunkSize: 256, Window: 4, Timeout: 100 * time.Millisecond, MaxRetries: 5})
	err := s.Transfer(data)
	stop()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	path, err := singleFile(outDir)
	if err != nil {
		t.Fatalf("singleFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("sink contents do not match source after a corrupted DATA packet")
	}
}

// TestEndToEndDuplicateHandshake drops the receiver's first
// HANDSHAKE_ACK, forcing the sender to retransmit HANDSHAKE; the
// receiver must discard its first session and create a fresh one with
// a distinct session id, leaving the stale sink file behind.
func TestEndToEndDuplicateHandshake(t *testing.T) {
	senderAddr, receiverAddr := addrs()
	senderTr, receiverTr := transporttest.NewLink(senderAddr, receiverAddr)

	var mu sync.Mutex
	dropped := false
	receiverTr.Filter = func(payload []byte) (bool, []byte) {
		if len(payload) < 20 || payload[3] != byte(wire.HandshakeAck) {
			return true, payload
		}
		mu.Lock()
		defer mu.Unlock()
		if !dropped {
			dropped = true
			return false, nil
		}
		return true, payload
	}

	outDir := t.TempDir()
	r := receiver.New(receiverTr, receiver.Config{OutDir: outDir, Window: 4, Capacity: 10, IDSource: sessionid.NewClock()})
	stop := runReceiver(r)

	s := sender.New(senderTr, receiverAddr, "f.txt", sender.Params{ChunkSize: 256, Window: 4, Timeout: 100 * time.Millisecond, MaxRetries: 5})
	err := s.Transfer([]byte("hello world"))
	stop()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d sink files, want 2 (stale session + final one)", len(entries))
	}
}

// TestEndToEndCapacityOverflow occupies the receiver's single session
// slot with a HANDSHAKE that is never torn down, then confirms a
// second peer's transfer fails with HandshakeFailed.
func TestEndToEndCapacityOverflow(t *testing.T) {
	senderAddr, receiverAddr := addrs()
	senderTr, receiverTr := transporttest.NewLink(senderAddr, receiverAddr)

	outDir := t.TempDir()
	r := receiver.New(receiverTr, receiver.Config{OutDir: outDir, Window: 4, Capacity: 1, IDSource: sessionid.NewClock()})
	stop := runReceiver(r)
	defer stop()

	occupantAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 60050}
	occupantTr, _ := transporttest.NewLink(occupantAddr, receiverAddr)
	hs := wire.EncodeHandshake(wire.HandshakeInfo{Filename: "occupant.txt", Total: 1, Chunk: 256, Window: 4})
	if err := occupantTr.Send(wire.Encode(wire.Packet{Type: wire.Handshake, Total: 1, Payload: hs}), receiverAddr); err != nil {
		t.Fatalf("occupant handshake send: %v", err)
	}
	if _, ok := awaitReply(occupantTr, time.Second); !ok {
		t.Fatal("occupant handshake was never acknowledged; table never became occupied")
	}

	s := sender.New(senderTr, receiverAddr, "blocked.txt", sender.Params{ChunkSize: 256, Window: 4, Timeout: 30 * time.Millisecond, MaxRetries: 2})
	err := s.Transfer([]byte("should be refused, table is full"))
	if err == nil {
		t.Fatal("expected HandshakeFailed while the table is at capacity")
	}
	if rerr.Cause(err) != rerr.ErrHandshakeFailed {
		t.Errorf("cause = %v, want ErrHandshakeFailed", rerr.Cause(err))
	}
}

// TestEndToEndReceiverRestartMidTransfer swaps in a fresh Receiver
// (empty session table, simulating a process restart) the moment the
// sender emits its first DATA packet. The restarted receiver has no
// session for this peer, so it replies ERROR and the sender must abort.
func TestEndToEndReceiverRestartMidTransfer(t *testing.T) {
	senderAddr, receiverAddr := addrs()
	senderTr, receiverTr := transporttest.NewLink(senderAddr, receiverAddr)

	outDir := t.TempDir()
	r1 := receiver.New(receiverTr, receiver.Config{OutDir: outDir, Window: 4, Capacity: 10, IDSource: sessionid.NewClock()})
	stop1 := runReceiver(r1)

	var stop2 func()
	restarted := false
	senderTr.Filter = func(payload []byte) (bool, []byte) {
		if !restarted && len(payload) >= 20 && payload[3] == byte(wire.Data) {
			restarted = true
			stop1()
			r2 := receiver.New(receiverTr, receiver.Config{OutDir: outDir, Window: 4, Capacity: 10, IDSource: sessionid.NewClock()})
			stop2 = runReceiver(r2)
		}
		return true, payload
	}

	s := sender.New(senderTr, receiverAddr, "f.txt", sender.Params{ChunkSize: 256, Window: 4, Timeout: 100 * time.Millisecond, MaxRetries: 3})
	err := s.Transfer(make([]byte, 1024))
	if stop2 != nil {
		stop2()
	} else {
		stop1()
	}

	if err == nil {
		t.Fatal("expected TransferFailed after the receiver restarted mid-transfer")
	}
	if rerr.Cause(err) != rerr.ErrTransferFailed {
		t.Errorf("cause = %v, want ErrTransferFailed", rerr.Cause(err))
	}
}
