package easyduplex

import (
	"github.com/DarthPestilane/easyduplex/logger"
	"github.com/sirupsen/logrus"
	"io"
)

// Log is the package logger.
// Sessions derive their own entries from it, scoped by name.
var Log logrus.Ext1FieldLogger = logger.Default

// SetLogger sets the package logger.
func SetLogger(lg logrus.Ext1FieldLogger) {
	Log = lg
}

// MuteLogger returns a logger which discards everything.
func MuteLogger() logrus.Ext1FieldLogger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}
