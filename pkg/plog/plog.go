// Package plog is the daemon-wide structured logging wrapper. Every
// subsystem gets its own *logrus.Entry tagged with a "component" field so
// log lines can be filtered per C1-C8 component without grepping message
// text.
package plog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var root = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if isTerminal(os.Stderr) {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// SetLevel sets the daemon-wide minimum log level by name ("debug", "info",
// "warning", "error").
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	root.SetLevel(lvl)
	return nil
}

// SetOutput redirects where log lines are written, used when the daemon's
// config names an explicit log file instead of stderr.
func SetOutput(w io.Writer) {
	root.SetOutput(w)
	root.SetFormatter(&logrus.JSONFormatter{})
}

// For returns the logger for a named component, e.g. plog.For("cgroup").
func For(component string) *logrus.Entry {
	return root.WithField("component", component)
}
