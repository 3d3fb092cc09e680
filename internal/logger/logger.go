// Package logger builds the process-wide structured logger.
package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"fondos/internal/config"
)

// New returns a logger writing to out at the configured level. Format
// "json" selects JSON lines; anything else selects human-readable text.
func New(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}
