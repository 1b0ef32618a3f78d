// Package logger holds the default logrus logger used by easyduplex.
package logger

import (
	"fmt"
	"github.com/sirupsen/logrus"
	"strings"
)

// Default is the logger used when none is set.
var Default *logrus.Logger

func init() {
	Default = logrus.New()
	Default.SetLevel(logrus.InfoLevel)
	Default.SetFormatter(NewTextFormatter())
}

// New creates a logger at level, with the package's TextFormatter.
// An empty level means "info".
func New(level string) (*logrus.Logger, error) {
	lvl := logrus.InfoLevel
	if level = strings.TrimSpace(level); level != "" {
		var err error
		if lvl, err = logrus.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
	}
	lg := logrus.New()
	lg.SetLevel(lvl)
	lg.SetFormatter(NewTextFormatter())
	return lg, nil
}
