// Package rulog is the shared structured logger for the sender and
// receiver, playing the role the teacher's inline log.Printf calls did
// in udp/client.go, but with fields instead of %-formatted strings.
package rulog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the package-level logger, in the spirit of the single
// package-level *logrus.Logger wired up in other_examples'
// AzYet-uftp__common.go for this exact kind of UDP transfer protocol.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel parses one of debug/info/warn/error and applies it to Log,
// falling back to info on an unrecognized value.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}
