package effects

import (
	"sync"

	"github.com/koustreak/dbbrowse/internal/logger"
)

// Level is the severity of a user-visible notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier receives user-visible messages. The UI decides how to show them.
type Notifier interface {
	Notify(level Level, msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, msg string)

func (f NotifierFunc) Notify(level Level, msg string) { f(level, msg) }

// LogNotifier writes notices to a logger, for headless use.
func LogNotifier(log *logger.Logger) Notifier {
	log = logger.OrNop(log)
	return NotifierFunc(func(level Level, msg string) {
		switch level {
		case LevelError:
			log.Error(msg)
		case LevelWarning:
			log.Warn(msg)
		default:
			log.Info(msg)
		}
	})
}

// Notice is one recorded message.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Recorder keeps every notice in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Level: level, Message: msg})
}

// Notices returns the recorded notices in order.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Drain returns and forgets the recorded notices.
func (r *Recorder) Drain() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}
