package logger

import (
	"fmt"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"sort"
	"strings"
)

// TextFormatter formats entries like:
//
//	INFO    [2006-01-02T15:04:05.000Z07:00] [session] [name] message key=value
type TextFormatter struct {
	WithColor  bool
	TimeFormat string
}

var _ logrus.Formatter = &TextFormatter{}

func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		WithColor:  true,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

func (f *TextFormatter) levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgWhite)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

func (f *TextFormatter) formatLevel(level logrus.Level) string {
	levelTxt := fmt.Sprintf("%-7s", strings.ToUpper(level.String())) // align level
	if f.WithColor {
		c := f.levelColor(level)
		c.EnableColor()
		levelTxt = c.Sprint(levelTxt)
	}
	return levelTxt
}

func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(f.formatLevel(entry.Level))
	b.WriteString(fmt.Sprintf(" [%s]", entry.Time.Format(f.TimeFormat)))
	if scope, _ := entry.Data["scope"].(string); scope != "" {
		b.WriteString(fmt.Sprintf(" [%s]", scope))
	}
	if name, _ := entry.Data["name"].(string); name != "" {
		b.WriteString(fmt.Sprintf(" [%s]", name))
	}
	if entry.Message != "" {
		b.WriteString(" " + entry.Message)
	}

	// the rest of the fields, sorted
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "scope" || k == "name" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}
	b.WriteString("\n")
	return []byte(b.String()), nil
}
