package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var _log = logrus.New()

// Init configures the shared logger. Debug builds get human-readable text
// output, everything else emits JSON lines suitable for shipping.
func Init(debug bool, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	_log.SetOutput(out)
	if debug {
		_log.SetLevel(logrus.DebugLevel)
		_log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		_log.SetLevel(logrus.InfoLevel)
		_log.SetFormatter(&logrus.JSONFormatter{})
	}
}

// Log returns a logger entry to use across packages.
func Log() *logrus.Entry {
	return logrus.NewEntry(_log)
}

// WithFields returns a logger entry with the provided fields attached.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}
