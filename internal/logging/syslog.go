//go:build !windows

package logging

import (
	"fmt"
	"log/syslog"
	"sync"

	log "github.com/sirupsen/logrus"
)

// SyslogHook forwards entries to the syslog DAEMON facility. No syslog-hook
// library exists anywhere in the retrieval pack, so this wraps stdlib
// log/syslog directly behind the logrus.Hook interface. The connection is
// opened lazily on the first Fire call rather than at construction, so a
// daemon that never logs anything above its configured level never touches
// /dev/log.
type SyslogHook struct {
	mu       sync.Mutex
	writer   *syslog.Writer
	minLevel log.Level
}

// NewSyslogHook builds a hook that fires for entries at minLevel or more
// severe (lower numeric logrus level).
func NewSyslogHook(minLevel log.Level) *SyslogHook {
	return &SyslogHook{minLevel: minLevel}
}

func (h *SyslogHook) Levels() []log.Level {
	levels := make([]log.Level, 0, h.minLevel+1)
	for l := log.PanicLevel; l <= h.minLevel; l++ {
		levels = append(levels, l)
	}
	return levels
}

func (h *SyslogHook) Fire(entry *log.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.writer == nil {
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "fanetwxd")
		if err != nil {
			return fmt.Errorf("logging: failed to open syslog: %w", err)
		}
		h.writer = w
	}

	line, err := entry.String()
	if err != nil {
		line = entry.Message
	}

	switch entry.Level {
	case log.PanicLevel, log.FatalLevel:
		return h.writer.Crit(line)
	case log.ErrorLevel:
		return h.writer.Err(line)
	case log.WarnLevel:
		return h.writer.Warning(line)
	case log.InfoLevel:
		return h.writer.Info(line)
	default:
		return h.writer.Debug(line)
	}
}

// Close releases the underlying syslog connection, if one was opened.
func (h *SyslogHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writer == nil {
		return nil
	}
	err := h.writer.Close()
	h.writer = nil
	return err
}
