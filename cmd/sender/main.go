// Command sender reads a file from disk and streams it to a receiver
// speaking the reliudp wire protocol, retrying each phase per its
// configured timeout and retry budget.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reliudp/internal/rerr"
	"reliudp/internal/rulog"
	"reliudp/internal/sender"
	"reliudp/internal/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	host := flag.String("host", "127.0.0.1", "receiver host")
	port := flag.Int("port", 9000, "receiver port")
	file := flag.String("file", "", "path of the file to send")
	chunk := flag.Int("chunk", 1024, "payload bytes per DATA packet")
	window := flag.Int("window", 8, "send window size in packets")
	timeoutMs := flag.Int("timeout", 300, "retransmit timeout in milliseconds")
	maxRetries := flag.Int("max-retries", 20, "max retransmit attempts before giving up")
	logLevel := flag.String("log-level", "info", "one of debug, info, warn, error")
	flag.Parse()

	rulog.SetLevel(*logLevel)
	log := rulog.Log.WithField("role", "sender")

	if *file == "" {
		fmt.Fprintln(os.Stderr, "sender: --file is required")
		return 1
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.WithError(err).Error("could not read source file")
		return 1
	}

	tr, err := transport.Dial(*host, *port)
	if err != nil {
		log.WithError(err).Error("could not dial receiver")
		return 1
	}
	defer tr.Close()

	peer := tr.RemoteAddr()
	s := sender.New(tr, peer, filepath.Base(*file), sender.Params{
		ChunkSize:  *chunk,
		Window:     uint32(*window),
		Timeout:    time.Duration(*timeoutMs) * time.Millisecond,
		MaxRetries: *maxRetries,
	})

	if err := s.Transfer(data); err != nil {
		log.WithError(err).Error("transfer did not complete")
		return exitCodeFor(err)
	}

	log.Info("transfer complete")
	return 0
}

// exitCodeFor maps a Transfer error's root cause to the process exit
// code contract: 2 handshake failure, 3 transfer retries exhausted,
// 4 FIN unacknowledged, 1 for anything else (I/O or transport error).
func exitCodeFor(err error) int {
	switch rerr.Cause(err) {
	case rerr.ErrHandshakeFailed:
		return 2
	case rerr.ErrTransferFailed:
		return 3
	case rerr.ErrFinFailed:
		return 4
	default:
		return 1
	}
}
