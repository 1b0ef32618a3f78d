package logger

import (
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	assert.NotNil(t, Default)
	assert.IsType(t, &TextFormatter{}, Default.Formatter)
}

func TestNew(t *testing.T) {
	lg, err := New("")
	assert.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, lg.GetLevel())

	lg, err = New("trace")
	assert.NoError(t, err)
	assert.Equal(t, logrus.TraceLevel, lg.GetLevel())
	assert.IsType(t, &TextFormatter{}, lg.Formatter)

	_, err = New("loud")
	assert.Error(t, err)
}

func TestTextFormatter_Format(t *testing.T) {
	f := NewTextFormatter()
	f.WithColor = false
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Level:   logrus.WarnLevel,
		Time:    time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC),
		Message: "connection lost",
		Data: logrus.Fields{
			"scope": "session",
			"name":  "vm-1",
			"addr":  "127.0.0.1:4444",
		},
	}
	b, err := f.Format(entry)
	assert.NoError(t, err)
	assert.Equal(t, "WARNING [2021-01-02T03:04:05.000Z] [session] [vm-1] connection lost addr=127.0.0.1:4444\n", string(b))
}

func TestTextFormatter_formatLevel(t *testing.T) {
	f := NewTextFormatter()
	for _, lvl := range logrus.AllLevels {
		txt := f.formatLevel(lvl)
		assert.Contains(t, txt, "\u001b[") // colored
	}
	f.WithColor = false
	assert.Equal(t, "ERROR  ", f.formatLevel(logrus.ErrorLevel))
}
