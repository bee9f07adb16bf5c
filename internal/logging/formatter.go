package logging

import (
	"bytes"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

const timeFormat = "2006-01-02 15:04:05"

// ansi color codes per rendered level label.
const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorCyan   = "\x1b[36m"
	colorGray   = "\x1b[90m"
)

// Formatter renders "YYYY-MM-DD HH:MM:SS: LEVEL: component: message",
// matching the external-interfaces format exactly. Color is applied to the
// level label only, and only when Color is true.
type Formatter struct {
	Color bool
}

func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	label, color := levelLabel(entry)

	component, _ := entry.Data["component"].(string)
	if component == "" {
		component = "-"
	}

	var buf bytes.Buffer
	buf.WriteString(entry.Time.Format(timeFormat))
	buf.WriteString(": ")
	if f.Color && color != "" {
		fmt.Fprintf(&buf, "%s%s%s", color, label, colorReset)
	} else {
		buf.WriteString(label)
	}
	buf.WriteString(": ")
	buf.WriteString(component)
	buf.WriteString(": ")
	buf.WriteString(entry.Message)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func levelLabel(entry *log.Entry) (label, color string) {
	if notice, _ := entry.Data["notice"].(bool); notice && entry.Level == log.InfoLevel {
		return "NOTICE", colorCyan
	}
	switch entry.Level {
	case log.PanicLevel, log.FatalLevel:
		return "CRITICAL", colorRed
	case log.ErrorLevel:
		return "ERROR", colorRed
	case log.WarnLevel:
		return "WARNING", colorYellow
	case log.InfoLevel:
		return "INFO", ""
	default:
		return "DEBUG", colorGray
	}
}

// SupportsColor reports whether out is a terminal likely to render ANSI
// color, mirroring the TERM-based checks logrus's own default formatter
// uses internally (unexported there, so reimplemented here).
func SupportsColor(out *os.File) bool {
	term := os.Getenv("TERM")
	if term == "" || term == "dumb" {
		return false
	}
	fi, err := out.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
