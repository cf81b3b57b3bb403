package logger

import "sync/atomic"

var defLogger atomic.Pointer[Logger]

func init() {
	var l Logger = NewSlog(InfoLevel, false)
	defLogger.Store(&l)
}

// GetLogger returns the package default logger.
func GetLogger() Logger {
	return *defLogger.Load()
}

// SetLogger replaces the package default logger.
// Components created afterwards without WithLogger use l.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&l)
}

// SetLevel sets the level of the default logger.
func SetLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

// With returns a child of the default logger.
func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}

func Debug(msg string, keysAndValues ...any) { GetLogger().Debug(msg, keysAndValues...) }

func Info(msg string, keysAndValues ...any) { GetLogger().Info(msg, keysAndValues...) }

func Warn(msg string, keysAndValues ...any) { GetLogger().Warn(msg, keysAndValues...) }

func Error(msg string, keysAndValues ...any) { GetLogger().Error(msg, keysAndValues...) }

func Fatal(msg string, keysAndValues ...any) { GetLogger().Fatal(msg, keysAndValues...) }
