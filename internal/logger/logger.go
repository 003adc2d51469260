// Package logger constructs the process logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logger writing to stderr. The debug flag lowers the level to
// include per-event detail.
func New(debug bool) *logrus.Logger {
	return NewWithWriter(debug, os.Stderr)
}

// NewWithWriter creates a logger on an explicit writer. The watch command
// points it at a file while the TUI owns the terminal.
func NewWithWriter(debug bool, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
