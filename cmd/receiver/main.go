// Command receiver binds a UDP port and reassembles every inbound
// transfer onto disk, one session per peer, until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reliudp/internal/receiver"
	"reliudp/internal/rulog"
	"reliudp/internal/sessionid"
	"reliudp/internal/transport"

	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
	port := flag.Int("port", 9000, "UDP port to listen on")
	outDir := flag.String("out", "./server_data", "directory to write received files into")
	window := flag.Int("window", 8, "advertised receive window size in packets")
	logLevel := flag.String("log-level", "info", "one of debug, info, warn, error")
	idSource := flag.String("session-id-source", "clock", "session id source: clock or uuid")
	flag.Parse()

	rulog.SetLevel(*logLevel)
	log := rulog.Log.WithField("role", "receiver")

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "receiver: could not create --out directory: %v\n", err)
		return 1
	}

	tr, err := transport.Listen(*port)
	if err != nil {
		log.WithError(err).Error("could not bind UDP port")
		return 1
	}
	defer tr.Close()

	r := receiver.New(tr, receiver.Config{
		OutDir:   *outDir,
		Window:   uint16(*window),
		IDSource: sessionid.FromFlag(*idSource),
	})

	stop := make(chan struct{})
	go awaitShutdownSignal(log, stop)

	log.WithField("port", *port).WithField("out", *outDir).Info("receiver listening")
	if err := r.Run(stop); err != nil {
		log.WithError(err).Error("receive loop exited with an error")
		return 1
	}
	return 0
}

// awaitShutdownSignal closes stop on SIGINT/SIGTERM, the same signal set
// the teacher's setupGracfulShutdown watches for, but here it lets
// Run's loop close every open sink instead of calling os.Exit directly.
func awaitShutdownSignal(log *logrus.Entry, stop chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down gracefully")
	close(stop)
}
