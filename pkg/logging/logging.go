// Package logging centralizes logger construction for the bidoor services.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logger writing to stdout with full timestamps, at the given
// level. Unparsable levels fall back to info.
func New(levelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	log.SetLevel(level)

	return log
}
