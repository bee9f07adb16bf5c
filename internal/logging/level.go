// Package logging wires the six severity levels named in the external
// interfaces to logrus, adding the console/syslog sinks, the fixed
// timestamped format, and the critical-exit path this system needs beyond
// what logrus ships out of the box.
package logging

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Level is one of the six severities named in the CLI/logging surface.
// logrus has five; "notice" has no logrus equivalent and is carried as an
// Info-level entry tagged with a notice=true field.
type Level int

const (
	Critical Level = iota
	Error
	Warning
	Notice
	Info
	Debug
)

func (l Level) String() string {
	switch l {
	case Critical:
		return "critical"
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Notice:
		return "notice"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name, or the CLI's numeric 0..5 form
// (0=critical .. 5=debug, per --loglevel).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "0":
		return Critical, nil
	case "error", "1":
		return Error, nil
	case "warning", "warn", "2":
		return Warning, nil
	case "notice", "3":
		return Notice, nil
	case "info", "4":
		return Info, nil
	case "debug", "5":
		return Debug, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}

// logrusLevel maps l onto the logrus level that produces the right
// verbosity threshold and the right label, after the formatter rewrites
// notice-tagged Info entries.
func (l Level) logrusLevel() log.Level {
	switch l {
	case Critical:
		return log.FatalLevel
	case Error:
		return log.ErrorLevel
	case Warning:
		return log.WarnLevel
	case Notice, Info:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}
