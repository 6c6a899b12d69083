// Package logging provides a structured application logger and a
// separate access logger, both built on logrus.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures Init.
type Options struct {
	ApplicationLogOutput io.Writer
	AccessLogOutput      io.Writer
	AccessLogDisabled    bool
	AccessLogJSONEnabled bool
}

var accessLog = logrus.New()

// Init wires the application and access loggers per opts.
func Init(opts Options) {
	if opts.ApplicationLogOutput != nil {
		logrus.SetOutput(opts.ApplicationLogOutput)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if opts.AccessLogDisabled {
		accessLog.SetOutput(io.Discard)
		return
	}

	out := opts.AccessLogOutput
	if out == nil {
		out = os.Stderr
	}
	accessLog.SetOutput(out)
	if opts.AccessLogJSONEnabled {
		accessLog.SetFormatter(&logrus.JSONFormatter{})
	} else {
		accessLog.SetFormatter(&accessLogFormatter{})
	}
}
