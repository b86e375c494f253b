// Package logging is the process-wide log sink for byteweaver.
//
// Host applications that embed the library usually already have a logger; they
// can route everything through it with SetCallback. When no callback is
// installed, leveled lines go to the standard streams through gologger.
package logging

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Level identifies the severity of a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the conventional name for the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Callback receives every formatted log line together with its level.
type Callback func(level Level, message string)

var (
	callback atomic.Pointer[Callback]
	setOnce  sync.Once

	fallback = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "byteweaver"))
)

// SetCallback installs the process-wide log sink. The first call wins; later
// calls are ignored with a warning so a library consumer cannot silently
// re-route another consumer's diagnostics.
func SetCallback(fn Callback) {
	installed := false
	setOnce.Do(func() {
		callback.Store(&fn)
		installed = true
	})
	if !installed {
		Warnf("log callback already set, ignoring replacement")
	}
}

func emit(level Level, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	if fn := callback.Load(); fn != nil {
		(*fn)(level, message)
		return
	}

	switch level {
	case LevelDebug:
		fallback.Debugln(message)
	case LevelInfo:
		fallback.Infoln(message)
	case LevelWarn:
		fallback.Warn(message)
	default:
		fallback.Error(message)
	}
}

// Debugf logs a formatted line at debug level.
func Debugf(format string, args ...interface{}) { emit(LevelDebug, format, args...) }

// Infof logs a formatted line at info level.
func Infof(format string, args ...interface{}) { emit(LevelInfo, format, args...) }

// Warnf logs a formatted line at warn level.
func Warnf(format string, args ...interface{}) { emit(LevelWarn, format, args...) }

// Errorf logs a formatted line at error level.
func Errorf(format string, args ...interface{}) { emit(LevelError, format, args...) }
