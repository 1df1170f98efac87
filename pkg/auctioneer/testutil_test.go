package auctioneer

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func nopLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}
